package apperrors

// Machine codes shared with the server. This set is closed; anything else
// classifies as CodeUnknown.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeSessionExpired  = "SESSION_EXPIRED"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeRoomNotFound    = "ROOM_NOT_FOUND"
	CodeRoomClosed      = "ROOM_CLOSED"
	CodeRoomFull        = "ROOM_FULL"
	CodeAlreadyJoined   = "ALREADY_JOINED"
	CodeNotAParticipant = "NOT_A_PARTICIPANT"
	CodeBanned          = "BANNED"
	CodeKicked          = "KICKED"
	CodeBlocked         = "BLOCKED"
	CodeAlreadyReported = "ALREADY_REPORTED"
	CodeAlreadyBlocked  = "ALREADY_BLOCKED"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeServerError     = "SERVER_ERROR"
	CodeConflict        = "CONFLICT"
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnknown         = "UNKNOWN"
)
