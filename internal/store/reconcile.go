package store

import (
	"context"

	"github.com/vicinity-chat/vicinity-go/internal/models"
)

// Push-event reconciliation. Authoritative events always win and are
// applied regardless of operation-lock state: locks serialize local
// intent, they do not grant exclusive ownership of the cache. Duplicate
// deliveries must be idempotent.

func (s *Store) onRoomCreated(payload any) {
	e, ok := payload.(models.RoomCreatedEvent)
	if !ok {
		return
	}
	// Admit only rooms this session created or globally visible ones.
	// Nearby creations by other users are left to the discovery refresh.
	isCreator := e.CreatorID == s.userID
	if !isCreator && e.Room.RadiusM != 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	room := e.Room.Clone()
	room.IsCreator = isCreator
	room.IsNew = true
	_, room.HasJoined = s.joined[room.ID]
	s.rooms[room.ID] = room
	if isCreator {
		s.created[room.ID] = struct{}{}
	}
}

func (s *Store) onRoomUpdated(payload any) {
	e, ok := payload.(models.RoomUpdatedEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[e.RoomID]; ok {
		e.Patch.Apply(room)
	}
}

func (s *Store) onRoomClosed(payload any) {
	e, ok := payload.(models.RoomClosedEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.joined, e.RoomID)
	s.hidden[e.RoomID] = struct{}{}
	if room, ok := s.rooms[e.RoomID]; ok {
		room.Status = models.RoomClosed
		room.HasJoined = false
	}
	s.mu.Unlock()

	if err := s.conn.Unsubscribe(e.RoomID); err != nil {
		s.logger.Debug(context.Background(), "unsubscribe after close failed for %s: %v", e.RoomID, err)
	}
}

func (s *Store) onRoomExpiring(payload any) {
	e, ok := payload.(models.RoomExpiringEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[e.RoomID]; ok {
		room.Status = models.RoomExpiring
		room.ExpiresAt = e.ExpiresAt
	}
}

func (s *Store) onParticipantCount(payload any) {
	e, ok := payload.(models.ParticipantCountEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[e.RoomID]; ok {
		room.ParticipantCount = e.Count
	}
}

// onUserJoined keeps membership consistent across devices of the same
// account: a join performed elsewhere shows up here as a push event.
func (s *Store) onUserJoined(payload any) {
	e, ok := payload.(models.MembershipEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	room, known := s.rooms[e.RoomID]
	if known {
		room.ParticipantCount = e.Count
	}
	self := e.UserID == s.userID
	if self && known {
		s.joined[e.RoomID] = struct{}{}
		room.HasJoined = true
	}
	s.mu.Unlock()

	if self && known {
		if err := s.conn.Subscribe(e.RoomID); err != nil {
			s.logger.Debug(context.Background(), "subscribe for remote-device join failed for %s: %v", e.RoomID, err)
		}
	}
}

func (s *Store) onUserLeft(payload any) {
	e, ok := payload.(models.MembershipEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	if room, known := s.rooms[e.RoomID]; known {
		room.ParticipantCount = e.Count
		if e.UserID == s.userID {
			room.HasJoined = false
		}
	}
	self := e.UserID == s.userID
	if self {
		delete(s.joined, e.RoomID)
	}
	s.mu.Unlock()

	if self {
		if err := s.conn.Unsubscribe(e.RoomID); err != nil {
			s.logger.Debug(context.Background(), "unsubscribe for remote-device leave failed for %s: %v", e.RoomID, err)
		}
	}
}

func (s *Store) onUserKicked(payload any) {
	if e, ok := payload.(models.ModerationEvent); ok {
		s.applyModeration(e, false)
	}
}

func (s *Store) onUserBanned(payload any) {
	if e, ok := payload.(models.ModerationEvent); ok {
		s.applyModeration(e, true)
	}
}

// applyModeration handles kick and ban events. The server may deliver the
// same event more than once; a {roomId}-{userId} key suppresses duplicates
// for the moderation window.
func (s *Store) applyModeration(e models.ModerationEvent, ban bool) {
	now := s.now()

	s.mu.Lock()
	key := e.DedupKey()
	if seen, ok := s.recentModeration[key]; ok && now.Sub(seen) < moderationWindow {
		s.mu.Unlock()
		return
	}
	s.recentModeration[key] = now
	for k, t := range s.recentModeration {
		if now.Sub(t) >= moderationWindow {
			delete(s.recentModeration, k)
		}
	}

	self := e.UserID == s.userID
	room, known := s.rooms[e.RoomID]
	if self {
		delete(s.joined, e.RoomID)
		if ban {
			s.hidden[e.RoomID] = struct{}{}
		}
		if known {
			room.HasJoined = false
			room.ParticipantCount = e.Count
		}
	} else if known {
		room.ParticipantCount = e.Count
	}
	s.mu.Unlock()

	if self {
		if err := s.conn.Unsubscribe(e.RoomID); err != nil {
			s.logger.Debug(context.Background(), "unsubscribe after moderation failed for %s: %v", e.RoomID, err)
		}
	}
}

// onUserUnbanned clears the hidden flag for the current session and
// refetches the room so it can reappear in discovery.
func (s *Store) onUserUnbanned(payload any) {
	e, ok := payload.(models.ModerationEvent)
	if !ok || e.UserID != s.userID {
		return
	}
	s.mu.Lock()
	delete(s.hidden, e.RoomID)
	s.mu.Unlock()

	s.refreshRoom(context.Background(), e.RoomID)
}

// Hidden reports whether a room is suppressed from discovery.
func (s *Store) Hidden(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hidden[roomID]
	return ok
}
