// Package store keeps the local view of rooms consistent with the
// authority. Local intents (join, leave, close) mutate the cache
// optimistically and are reconciled against the operation result;
// authoritative push events arriving on the bus are applied regardless of
// which operation is in flight. Per-room operation locks serialize
// conflicting intents; the remote system always wins on conflict.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vicinity-chat/vicinity-go/internal/events"
	"github.com/vicinity-chat/vicinity-go/internal/logging"
	"github.com/vicinity-chat/vicinity-go/internal/models"
	"github.com/vicinity-chat/vicinity-go/internal/observability"
)

// RoomService is the remote room boundary the store calls.
type RoomService interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	JoinRoom(ctx context.Context, roomID string, lat, lng float64, radiusM int) error
	LeaveRoom(ctx context.Context, roomID string) error
	CloseRoom(ctx context.Context, roomID string) error
}

// Subscriber is the slice of the connection manager the store drives:
// per-room transport subscriptions.
type Subscriber interface {
	Subscribe(roomID string) error
	Unsubscribe(roomID string) error
}

// moderationWindow is how long a {roomId}-{userId} moderation delivery
// suppresses duplicates.
const moderationWindow = 5 * time.Second

// Config wires a Store. Service, Subscriber, Bus, and Logger are required.
type Config struct {
	Service       RoomService
	Subscriber    Subscriber
	Bus           *events.Bus
	Logger        *logging.Logger
	Metrics       *observability.Metrics
	SessionUserID string
	Now           func() time.Time
}

// Store owns the room cache, membership sets, and operation locks. No
// other component holds a writable reference to any of them.
type Store struct {
	svc     RoomService
	conn    Subscriber
	bus     *events.Bus
	logger  *logging.Logger
	metrics *observability.Metrics
	userID  string
	now     func() time.Time

	mu      sync.Mutex
	rooms   map[string]*models.Room
	joined  map[string]struct{}
	created map[string]struct{}
	hidden  map[string]struct{}
	pending map[string]struct{}

	joining map[string]struct{}
	leaving map[string]struct{}
	closing map[string]struct{}

	recentModeration map[string]time.Time
	offs             []func()
}

// New creates a store. Call Start to begin consuming push events.
func New(cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetrics()
	}
	return &Store{
		svc:              cfg.Service,
		conn:             cfg.Subscriber,
		bus:              cfg.Bus,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		userID:           cfg.SessionUserID,
		now:              cfg.Now,
		rooms:            make(map[string]*models.Room),
		joined:           make(map[string]struct{}),
		created:          make(map[string]struct{}),
		hidden:           make(map[string]struct{}),
		pending:          make(map[string]struct{}),
		joining:          make(map[string]struct{}),
		leaving:          make(map[string]struct{}),
		closing:          make(map[string]struct{}),
		recentModeration: make(map[string]time.Time),
	}
}

// Start registers the store's push-event handlers on the bus.
func (s *Store) Start() {
	s.offs = []func(){
		s.bus.On(models.EventRoomCreated, s.onRoomCreated),
		s.bus.On(models.EventRoomUpdated, s.onRoomUpdated),
		s.bus.On(models.EventRoomClosed, s.onRoomClosed),
		s.bus.On(models.EventRoomExpiring, s.onRoomExpiring),
		s.bus.On(models.EventParticipantCount, s.onParticipantCount),
		s.bus.On(models.EventUserJoined, s.onUserJoined),
		s.bus.On(models.EventUserLeft, s.onUserLeft),
		s.bus.On(models.EventUserKicked, s.onUserKicked),
		s.bus.On(models.EventUserBanned, s.onUserBanned),
		s.bus.On(models.EventUserUnbanned, s.onUserUnbanned),
	}
}

// Stop removes the store's bus registrations.
func (s *Store) Stop() {
	for _, off := range s.offs {
		off()
	}
	s.offs = nil
}

// Room returns a copy of the cached room, if known.
func (s *Store) Room(roomID string) (*models.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.Clone(), true
}

// HasJoined reports whether the session is an active participant.
func (s *Store) HasJoined(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.joined[roomID]
	return ok
}

// JoinedRooms derives the list of rooms the session participates in.
// Derived lists are recomputed on every read, never cached.
func (s *Store) JoinedRooms() []*models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deriveLocked(s.joined)
}

// CreatedRooms derives the list of rooms the session authored, whether or
// not it is still a participant.
func (s *Store) CreatedRooms() []*models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deriveLocked(s.created)
}

// DiscoverableRooms derives the rooms eligible for the discovery surface:
// everything cached that is neither hidden nor closed.
func (s *Store) DiscoverableRooms() []*models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Room, 0, len(s.rooms))
	for id, room := range s.rooms {
		if _, hid := s.hidden[id]; hid {
			continue
		}
		if room.Status == models.RoomClosed {
			continue
		}
		out = append(out, room.Clone())
	}
	sortRooms(out)
	return out
}

func (s *Store) deriveLocked(ids map[string]struct{}) []*models.Room {
	out := make([]*models.Room, 0, len(ids))
	for id := range ids {
		if room, ok := s.rooms[id]; ok {
			out = append(out, room.Clone())
		}
	}
	sortRooms(out)
	return out
}

func sortRooms(rooms []*models.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
}

// AddLocalRoom registers a room created by this session before the next
// discovery refresh confirms it.
func (s *Store) AddLocalRoom(room *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := room.Clone()
	cp.IsCreator = true
	cp.IsNew = true
	s.rooms[cp.ID] = cp
	s.created[cp.ID] = struct{}{}
	s.pending[cp.ID] = struct{}{}
}

// ApplyDiscovery reconciles a full discovery refresh into the cache.
// Client-only flags are rederived from the membership sets; rooms the
// refresh confirms leave the pending set.
func (s *Store) ApplyDiscovery(rooms []models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range rooms {
		room := rooms[i].Clone()
		_, room.HasJoined = s.joined[room.ID]
		_, room.IsCreator = s.created[room.ID]
		if prev, ok := s.rooms[room.ID]; ok {
			room.IsNew = prev.IsNew
		}
		s.rooms[room.ID] = room
		delete(s.pending, room.ID)
	}
}

// PendingRooms reports locally created rooms not yet confirmed by a
// discovery refresh.
func (s *Store) PendingRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
