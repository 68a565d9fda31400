package contextkey

type key int

const (
	// ContextKeyRequestID carries the per-request correlation ID.
	ContextKeyRequestID key = iota
	// ContextKeyUserID carries the authenticated session's user ID.
	ContextKeyUserID
)
