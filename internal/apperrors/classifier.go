// Package apperrors turns the heterogeneous failure shapes produced by the
// request layer and the transport into a closed taxonomy the store and the
// presentation layer act on.
package apperrors

import (
	"context"
	"errors"
	"net"
	"strings"
	"unicode"
)

// Category is the coarse failure class.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryAuth       Category = "auth"
	CategoryPermission Category = "permission"
	CategoryNotFound   Category = "notFound"
	CategoryConflict   Category = "conflict"
	CategoryServer     Category = "server"
	CategoryUnknown    Category = "unknown"
)

// Severity drives presentation weight.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HTTPError is the contract the request layer's failures must satisfy:
// a status, a machine code, and a message, already flattened out of
// whatever nesting the server used.
type HTTPError interface {
	error
	HTTPStatus() int
	ErrorCode() string
	ErrorMessage() string
}

// Classified is the classifier's output. It is built fresh on every
// failure and never cached.
type Classified struct {
	Category    Category
	Severity    Severity
	Message     string
	Code        string
	Recoverable bool
	Cause       error
}

func (c *Classified) Error() string { return c.Message }

func (c *Classified) Unwrap() error { return c.Cause }

// IsConflict reports whether the desired end state already holds
// server-side, so callers may treat the failure as success.
func (c *Classified) IsConflict() bool { return c.Category == CategoryConflict }

const genericMessage = "Something went wrong. Please try again."

// Classify maps err to the closed taxonomy. The check order is fixed and
// each check short-circuits: network, timeout, auth, banned, kicked,
// not-a-participant, room-closed, room-not-found, room-full, forbidden,
// conflict, server, validation, unknown. The order is load-bearing: a
// message matching both the "already" and "closed" probes must classify as
// room-closed, and a 403 carrying a specific code keeps that code.
func Classify(err error) *Classified {
	if err == nil {
		return nil
	}
	var already *Classified
	if errors.As(err, &already) {
		return already
	}

	status, code, msg := flatten(err)
	lower := strings.ToLower(msg)

	switch {
	case isNetwork(err, code, lower):
		return &Classified{
			Category: CategoryNetwork, Severity: SeverityHigh,
			Message: "Connection problem. Check your network and try again.",
			Code:    CodeNetworkError, Recoverable: true, Cause: err,
		}

	case isTimeout(err, code, lower):
		return &Classified{
			Category: CategoryNetwork, Severity: SeverityMedium,
			Message: "The request timed out. Please try again.",
			Code:    CodeTimeout, Recoverable: true, Cause: err,
		}

	case status == 401 || code == CodeUnauthorized || code == CodeSessionExpired ||
		code == CodeInvalidToken || strings.Contains(lower, "session expired") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid token"):
		return &Classified{
			Category: CategoryAuth, Severity: SeverityCritical,
			Message: "Your session has expired. Please sign in again.",
			Code:    pick(code, CodeSessionExpired), Recoverable: false, Cause: err,
		}

	case code == CodeBanned || strings.Contains(lower, "banned"):
		return &Classified{
			Category: CategoryPermission, Severity: SeverityHigh,
			Message: "You have been banned from this room.",
			Code:    CodeBanned, Recoverable: false, Cause: err,
		}

	case code == CodeKicked || strings.Contains(lower, "kicked"):
		return &Classified{
			Category: CategoryPermission, Severity: SeverityHigh,
			Message: "You have been removed from this room.",
			Code:    CodeKicked, Recoverable: false, Cause: err,
		}

	case code == CodeNotAParticipant || strings.Contains(lower, "not a participant"):
		return &Classified{
			Category: CategoryPermission, Severity: SeverityMedium,
			Message: "You are not a participant of this room.",
			Code:    CodeNotAParticipant, Recoverable: false, Cause: err,
		}

	case code == CodeRoomClosed || strings.Contains(lower, "closed"):
		return &Classified{
			Category: CategoryNotFound, Severity: SeverityMedium,
			Message: "This room has closed.",
			Code:    CodeRoomClosed, Recoverable: false, Cause: err,
		}

	case status == 404 || code == CodeRoomNotFound || strings.Contains(lower, "not found"):
		return &Classified{
			Category: CategoryNotFound, Severity: SeverityMedium,
			Message: "This room no longer exists.",
			Code:    CodeRoomNotFound, Recoverable: false, Cause: err,
		}

	case code == CodeRoomFull || strings.Contains(lower, "full"):
		return &Classified{
			Category: CategoryPermission, Severity: SeverityMedium,
			Message: "This room is full.",
			Code:    CodeRoomFull, Recoverable: false, Cause: err,
		}

	// Generic 403 comes after the specific permission shapes (banned,
	// kicked, not-a-participant, room-full) so those keep their codes.
	case status == 403 || code == CodeForbidden || code == CodeBlocked ||
		strings.Contains(lower, "forbidden") || strings.Contains(lower, "blocked"):
		return &Classified{
			Category: CategoryPermission, Severity: SeverityHigh,
			Message: "You don't have permission to do that.",
			Code:    pick(code, CodeForbidden), Recoverable: false, Cause: err,
		}

	case status == 409 || code == CodeConflict || code == CodeAlreadyJoined ||
		code == CodeAlreadyReported || code == CodeAlreadyBlocked ||
		strings.Contains(lower, "already"):
		return &Classified{
			Category: CategoryConflict, Severity: SeverityLow,
			Message: "Already done.",
			Code:    pick(code, CodeConflict), Recoverable: false, Cause: err,
		}

	case status >= 500 || code == CodeServerError || strings.Contains(lower, "internal server"):
		return &Classified{
			Category: CategoryServer, Severity: SeverityHigh,
			Message: "The server hit a problem. Please try again shortly.",
			Code:    CodeServerError, Recoverable: true, Cause: err,
		}

	case code == CodeValidation || status == 422:
		// A rejected request body will be rejected again; retrying is futile.
		return &Classified{
			Category: CategoryUnknown, Severity: SeverityMedium,
			Message: passthrough(msg),
			Code:    CodeValidation, Recoverable: false, Cause: err,
		}

	default:
		return &Classified{
			Category: CategoryUnknown, Severity: SeverityMedium,
			Message: passthrough(msg),
			Code:    pick(code, CodeUnknown), Recoverable: true, Cause: err,
		}
	}
}

func flatten(err error) (status int, code, msg string) {
	msg = err.Error()
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.HTTPStatus()
		code = httpErr.ErrorCode()
		if m := httpErr.ErrorMessage(); m != "" {
			msg = m
		}
	}
	return status, code, msg
}

func isNetwork(err error, code, lower string) bool {
	if code == CodeNetworkError {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network")
}

func isTimeout(err error, code, lower string) bool {
	if code == CodeTimeout {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout")
}

func pick(code, fallback string) string {
	if code != "" {
		return code
	}
	return fallback
}

// passthrough keeps a short, printable server message; anything else is
// replaced with the generic fallback.
func passthrough(msg string) string {
	if msg == "" || len(msg) > 120 {
		return genericMessage
	}
	for _, r := range msg {
		if !unicode.IsPrint(r) {
			return genericMessage
		}
	}
	return msg
}
