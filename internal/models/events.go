package models

import "time"

// Frame type names used on the persistent transport.
const (
	FrameAuthRequired = "auth_required"
	FrameAuth         = "auth"
	FrameAuthSuccess  = "auth_success"
	FrameAuthError    = "auth_error"
	FramePing         = "ping"
	FramePong         = "pong"
	FrameSubscribe    = "subscribe"
	FrameUnsubscribe  = "unsubscribe"

	EventRoomCreated      = "room.created"
	EventRoomUpdated      = "room.updated"
	EventRoomClosed       = "room.closed"
	EventRoomExpiring     = "room.expiring"
	EventParticipantCount = "room.participantCountUpdated"
	EventUserJoined       = "room.userJoined"
	EventUserLeft         = "room.userLeft"
	EventUserKicked       = "room.userKicked"
	EventUserBanned       = "room.userBanned"
	EventUserUnbanned     = "room.userUnbanned"

	// Published locally by the connection manager, never seen on the wire.
	EventConnectionState = "connection.stateChanged"
)

// AuthPayload is the client's reply to auth_required.
type AuthPayload struct {
	AccessToken string     `json:"accessToken"`
	ClientInfo  ClientInfo `json:"clientInfo"`
}

// ClientInfo identifies the client instance in the auth handshake.
type ClientInfo struct {
	InstanceID string `json:"instanceId"`
	Platform   string `json:"platform"`
	Version    string `json:"version"`
}

// AuthErrorPayload carries the server's handshake rejection.
type AuthErrorPayload struct {
	Message string `json:"message"`
}

// SubscriptionPayload is the body of subscribe/unsubscribe frames.
type SubscriptionPayload struct {
	RoomID string `json:"roomId"`
}

// RoomCreatedEvent announces a new room. CreatorID lets the client decide
// whether the room was authored by the current session.
type RoomCreatedEvent struct {
	Room      Room   `json:"room"`
	CreatorID string `json:"creatorId"`
}

func (e RoomCreatedEvent) EventRoomID() string { return e.Room.ID }

// RoomUpdatedEvent carries a partial patch for an existing room.
type RoomUpdatedEvent struct {
	RoomID string    `json:"roomId"`
	Patch  RoomPatch `json:"patch"`
}

func (e RoomUpdatedEvent) EventRoomID() string { return e.RoomID }

// RoomClosedEvent announces a room's terminal closure.
type RoomClosedEvent struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason,omitempty"`
}

func (e RoomClosedEvent) EventRoomID() string { return e.RoomID }

// RoomExpiringEvent announces imminent expiry with the updated deadline.
type RoomExpiringEvent struct {
	RoomID    string    `json:"roomId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (e RoomExpiringEvent) EventRoomID() string { return e.RoomID }

// ParticipantCountEvent carries the authoritative participant count.
type ParticipantCountEvent struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"participantCount"`
}

func (e ParticipantCountEvent) EventRoomID() string { return e.RoomID }

// MembershipEvent covers userJoined/userLeft: one user's membership change
// plus the resulting count.
type MembershipEvent struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Count  int    `json:"participantCount"`
}

func (e MembershipEvent) EventRoomID() string { return e.RoomID }

// ModerationEvent covers userKicked/userBanned/userUnbanned. The server may
// deliver kick/ban events more than once; consumers deduplicate.
type ModerationEvent struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Count  int    `json:"participantCount"`
}

func (e ModerationEvent) EventRoomID() string { return e.RoomID }

// DedupKey identifies a moderation delivery for duplicate suppression.
func (e ModerationEvent) DedupKey() string { return e.RoomID + "-" + e.UserID }
