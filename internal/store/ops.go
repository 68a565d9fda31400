package store

import (
	"context"
	"fmt"

	"github.com/vicinity-chat/vicinity-go/internal/apperrors"
	"github.com/vicinity-chat/vicinity-go/internal/models"
)

// Op names the intent a room is locked under.
type Op string

const (
	OpJoin  Op = "join"
	OpLeave Op = "leave"
	OpClose Op = "close"
)

// GuardError is the synchronous rejection of an intent against a room that
// already has an operation in flight. It never reaches the network or the
// classifier.
type GuardError struct {
	RoomID  string
	Current Op
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("store: room %s is busy with a %s operation", e.RoomID, e.Current)
}

// command is one optimistic mutation: forward applied before the remote
// call, inverse applied only on non-conflict failure. Join and leave share
// this shape instead of duplicating the protocol.
type command struct {
	op     Op
	roomID string

	// satisfied short-circuits the whole command as an idempotent success.
	// It runs in the same critical section as the guard check.
	satisfied func() bool

	forward   func()                        // under the store lock, before any suspension
	inverse   func()                        // under the store lock, on rollback
	remote    func(ctx context.Context) error
	onSuccess func(ctx context.Context) // outside the lock, also on conflict
}

// run executes a command under the per-room lock protocol. The guard
// check, the satisfied check, the lock acquisition, and the forward
// mutation all happen in one critical section, before any suspension
// point, so two rapid intents can never both observe "unlocked". The lock
// is released unconditionally.
func (s *Store) run(ctx context.Context, cmd command) error {
	s.mu.Lock()
	if current, locked := s.lockedOpLocked(cmd.roomID); locked {
		s.mu.Unlock()
		s.metrics.SyncOps.WithLabelValues(string(cmd.op), "guarded").Inc()
		return &GuardError{RoomID: cmd.roomID, Current: current}
	}
	if cmd.satisfied != nil && cmd.satisfied() {
		s.mu.Unlock()
		s.metrics.SyncOps.WithLabelValues(string(cmd.op), "noop").Inc()
		return nil
	}
	s.lockSetLocked(cmd.op)[cmd.roomID] = struct{}{}
	if cmd.forward != nil {
		cmd.forward()
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.lockSetLocked(cmd.op), cmd.roomID)
		s.mu.Unlock()
	}()

	if err := cmd.remote(ctx); err != nil {
		classified := apperrors.Classify(err)
		if !classified.IsConflict() {
			s.mu.Lock()
			if cmd.inverse != nil {
				cmd.inverse()
			}
			s.mu.Unlock()
			s.metrics.SyncRollbacks.Inc()
			s.metrics.SyncOps.WithLabelValues(string(cmd.op), "failed").Inc()
			return classified
		}
		// Conflict: the desired end state already holds server-side.
		s.logger.Debug(ctx, "%s on %s conflicted, treating as success: %s", cmd.op, cmd.roomID, classified.Code)
	}

	if cmd.onSuccess != nil {
		cmd.onSuccess(ctx)
	}
	s.metrics.SyncOps.WithLabelValues(string(cmd.op), "ok").Inc()
	return nil
}

func (s *Store) lockSetLocked(op Op) map[string]struct{} {
	switch op {
	case OpJoin:
		return s.joining
	case OpLeave:
		return s.leaving
	default:
		return s.closing
	}
}

func (s *Store) lockedOpLocked(roomID string) (Op, bool) {
	if _, ok := s.joining[roomID]; ok {
		return OpJoin, true
	}
	if _, ok := s.leaving[roomID]; ok {
		return OpLeave, true
	}
	if _, ok := s.closing[roomID]; ok {
		return OpClose, true
	}
	return "", false
}

// LockedOp reports the operation currently holding a room, if any.
func (s *Store) LockedOp(roomID string) (Op, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockedOpLocked(roomID)
}

// Join optimistically joins a room. The location is the caller's current,
// already-snapped position, never the room's stored center: proximity is
// validated against where the user actually is. Joining a room the session
// is already in succeeds without a network call.
func (s *Store) Join(ctx context.Context, room *models.Room, loc models.Location) error {
	var snapshot *models.Room

	return s.run(ctx, command{
		op:     OpJoin,
		roomID: room.ID,
		satisfied: func() bool {
			_, ok := s.joined[room.ID]
			return ok
		},
		forward: func() {
			cached, ok := s.rooms[room.ID]
			if !ok {
				cached = room.Clone()
				s.rooms[room.ID] = cached
			}
			snapshot = cached.Clone()
			cached.HasJoined = true
			s.joined[room.ID] = struct{}{}
		},
		inverse: func() {
			s.rooms[room.ID] = snapshot
			delete(s.joined, room.ID)
		},
		remote: func(ctx context.Context) error {
			return s.svc.JoinRoom(ctx, room.ID, loc.Latitude, loc.Longitude, room.RadiusM)
		},
		onSuccess: func(ctx context.Context) {
			s.refreshRoom(ctx, room.ID)
			if err := s.conn.Subscribe(room.ID); err != nil {
				s.logger.Debug(ctx, "subscribe after join failed for %s: %v", room.ID, err)
			}
		},
	})
}

// Leave optimistically leaves a room. Leaving a room the session is not in
// succeeds without a network call.
func (s *Store) Leave(ctx context.Context, roomID string) error {
	var snapshot *models.Room

	return s.run(ctx, command{
		op:     OpLeave,
		roomID: roomID,
		satisfied: func() bool {
			_, joined := s.joined[roomID]
			_, known := s.rooms[roomID]
			return !joined || !known
		},
		forward: func() {
			room := s.rooms[roomID]
			snapshot = room.Clone()
			room.HasJoined = false
			delete(s.joined, roomID)
		},
		inverse: func() {
			s.rooms[roomID] = snapshot
			s.joined[roomID] = struct{}{}
		},
		remote: func(ctx context.Context) error {
			return s.svc.LeaveRoom(ctx, roomID)
		},
		onSuccess: func(ctx context.Context) {
			if err := s.conn.Unsubscribe(roomID); err != nil {
				s.logger.Debug(ctx, "unsubscribe after leave failed for %s: %v", roomID, err)
			}
		},
	})
}

// Close closes a room the session owns. There is no optimistic
// pre-mutation: closing is not reversible, so the status flips only after
// the authority confirms.
func (s *Store) Close(ctx context.Context, roomID string) error {
	return s.run(ctx, command{
		op:     OpClose,
		roomID: roomID,
		remote: func(ctx context.Context) error {
			return s.svc.CloseRoom(ctx, roomID)
		},
		onSuccess: func(ctx context.Context) {
			s.mu.Lock()
			if room, ok := s.rooms[roomID]; ok {
				room.Status = models.RoomClosed
			}
			s.mu.Unlock()
		},
	})
}

// refreshRoom replaces the cached record with the authoritative one,
// keeping the client-only flags. A refetch failure is non-fatal: the
// optimistic record stands.
func (s *Store) refreshRoom(ctx context.Context, roomID string) {
	fresh, err := s.svc.GetRoom(ctx, roomID)
	if err != nil {
		s.logger.Debug(ctx, "room refetch failed for %s, optimistic record stands: %v", roomID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := fresh.Clone()
	_, cp.HasJoined = s.joined[roomID]
	_, cp.IsCreator = s.created[roomID]
	if prev, ok := s.rooms[roomID]; ok {
		cp.IsNew = prev.IsNew
	}
	s.rooms[roomID] = cp
}
