package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicinity-chat/vicinity-go/internal/models"
)

func TestReconcile_RoomCreatedAdmission(t *testing.T) {
	f := newFixture(t)

	// Another user's bounded room is left to the discovery refresh.
	f.bus.Emit(models.EventRoomCreated, models.RoomCreatedEvent{
		Room:      *testRoom("bounded"),
		CreatorID: "someone-else",
	})
	_, ok := f.store.Room("bounded")
	assert.False(t, ok)

	// Another user's global room is admitted.
	global := testRoom("global")
	global.RadiusM = 0
	f.bus.Emit(models.EventRoomCreated, models.RoomCreatedEvent{
		Room:      *global,
		CreatorID: "someone-else",
	})
	room, ok := f.store.Room("global")
	require.True(t, ok)
	assert.False(t, room.IsCreator)
	assert.True(t, room.IsNew)

	// The session's own room is admitted regardless of radius.
	f.bus.Emit(models.EventRoomCreated, models.RoomCreatedEvent{
		Room:      *testRoom("mine"),
		CreatorID: sessionUser,
	})
	room, ok = f.store.Room("mine")
	require.True(t, ok)
	assert.True(t, room.IsCreator)
	assert.Contains(t, f.store.CreatedRooms(), room)
}

func TestReconcile_RoomUpdatedShallowMerge(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Join(context.Background(), testRoom("r1"), models.Location{}))

	title := "renamed"
	count := 7
	f.bus.Emit(models.EventRoomUpdated, models.RoomUpdatedEvent{
		RoomID: "r1",
		Patch:  models.RoomPatch{Title: &title, ParticipantCount: &count},
	})

	room, _ := f.store.Room("r1")
	assert.Equal(t, "renamed", room.Title)
	assert.Equal(t, 7, room.ParticipantCount)
	assert.Equal(t, 50, room.Capacity, "unpatched fields untouched")
	assert.True(t, room.HasJoined, "client-only flags untouched")

	// Unknown rooms are a no-op.
	f.bus.Emit(models.EventRoomUpdated, models.RoomUpdatedEvent{RoomID: "ghost", Patch: models.RoomPatch{Title: &title}})
	_, ok := f.store.Room("ghost")
	assert.False(t, ok)
}

func TestReconcile_RoomClosed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Join(context.Background(), testRoom("r1"), models.Location{}))

	f.bus.Emit(models.EventRoomClosed, models.RoomClosedEvent{RoomID: "r1"})

	assert.False(t, f.store.HasJoined("r1"))
	assert.True(t, f.store.Hidden("r1"))
	room, _ := f.store.Room("r1")
	assert.Equal(t, models.RoomClosed, room.Status)
	assert.Contains(t, f.sub.unsubscribed, "r1")
	assert.Empty(t, f.store.DiscoverableRooms())
}

func TestReconcile_RoomExpiring(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Join(context.Background(), testRoom("r1"), models.Location{}))

	deadline := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	f.bus.Emit(models.EventRoomExpiring, models.RoomExpiringEvent{RoomID: "r1", ExpiresAt: deadline})

	room, _ := f.store.Room("r1")
	assert.Equal(t, models.RoomExpiring, room.Status)
	assert.Equal(t, deadline, room.ExpiresAt)
}

func TestReconcile_ParticipantCount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Join(context.Background(), testRoom("r1"), models.Location{}))

	f.bus.Emit(models.EventParticipantCount, models.ParticipantCountEvent{RoomID: "r1", Count: 12})
	room, _ := f.store.Room("r1")
	assert.Equal(t, 12, room.ParticipantCount)
}

// Membership initiated on another device of the same account arrives as a
// push event and must update the local sets and transport subscription.
func TestReconcile_SelfJoinedElsewhere(t *testing.T) {
	f := newFixture(t)
	f.store.ApplyDiscovery([]models.Room{*testRoom("r1")})

	f.bus.Emit(models.EventUserJoined, models.MembershipEvent{RoomID: "r1", UserID: sessionUser, Count: 3})

	assert.True(t, f.store.HasJoined("r1"))
	room, _ := f.store.Room("r1")
	assert.True(t, room.HasJoined)
	assert.Equal(t, 3, room.ParticipantCount)
	assert.Contains(t, f.sub.subscribed, "r1")
}

func TestReconcile_OtherUserJoinOnlyPatchesCount(t *testing.T) {
	f := newFixture(t)
	f.store.ApplyDiscovery([]models.Room{*testRoom("r1")})

	f.bus.Emit(models.EventUserJoined, models.MembershipEvent{RoomID: "r1", UserID: "other", Count: 9})

	assert.False(t, f.store.HasJoined("r1"))
	room, _ := f.store.Room("r1")
	assert.Equal(t, 9, room.ParticipantCount)
	assert.Empty(t, f.sub.subscribed)
}

func TestReconcile_SelfLeftElsewhere(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Join(context.Background(), testRoom("r1"), models.Location{}))

	f.bus.Emit(models.EventUserLeft, models.MembershipEvent{RoomID: "r1", UserID: sessionUser, Count: 1})

	assert.False(t, f.store.HasJoined("r1"))
	assert.Contains(t, f.sub.unsubscribed, "r1")
}

func TestReconcile_KickDeduplicatedWithinWindow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Join(context.Background(), testRoom("r1"), models.Location{}))

	kick := models.ModerationEvent{RoomID: "r1", UserID: sessionUser, Count: 4}
	f.bus.Emit(models.EventUserKicked, kick)
	require.False(t, f.store.HasJoined("r1"))
	require.Equal(t, 1, f.sub.unsubCount())

	// Identical delivery a moment later is suppressed.
	*f.now = f.now.Add(2 * time.Second)
	f.bus.Emit(models.EventUserKicked, kick)
	assert.Equal(t, 1, f.sub.unsubCount(), "duplicate within the window must mutate only once")

	// After the window the event applies again.
	*f.now = f.now.Add(4 * time.Second)
	f.bus.Emit(models.EventUserKicked, kick)
	assert.Equal(t, 2, f.sub.unsubCount())
}

func TestReconcile_KickOfOtherUserOnlyPatchesCount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Join(context.Background(), testRoom("r1"), models.Location{}))

	f.bus.Emit(models.EventUserKicked, models.ModerationEvent{RoomID: "r1", UserID: "other", Count: 2})

	assert.True(t, f.store.HasJoined("r1"))
	room, _ := f.store.Room("r1")
	assert.Equal(t, 2, room.ParticipantCount)
}

func TestReconcile_BanHidesRoom(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Join(context.Background(), testRoom("r1"), models.Location{}))

	f.bus.Emit(models.EventUserBanned, models.ModerationEvent{RoomID: "r1", UserID: sessionUser, Count: 4})

	assert.False(t, f.store.HasJoined("r1"))
	assert.True(t, f.store.Hidden("r1"), "a ban suppresses the room from discovery")
	assert.Contains(t, f.sub.unsubscribed, "r1")
}

func TestReconcile_UnbanRestoresDiscovery(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Join(context.Background(), testRoom("r1"), models.Location{}))
	f.bus.Emit(models.EventUserBanned, models.ModerationEvent{RoomID: "r1", UserID: sessionUser})
	require.True(t, f.store.Hidden("r1"))

	f.svc.mu.Lock()
	f.svc.getRoom = testRoom("r1")
	f.svc.mu.Unlock()

	f.bus.Emit(models.EventUserUnbanned, models.ModerationEvent{RoomID: "r1", UserID: sessionUser})

	assert.False(t, f.store.Hidden("r1"))
	room, ok := f.store.Room("r1")
	require.True(t, ok, "room refetched so it can reappear in discovery")
	assert.Equal(t, models.RoomActive, room.Status)
}

func TestReconcile_UnbanOfOtherUserIgnored(t *testing.T) {
	f := newFixture(t)
	before := len(f.svc.getCalls)

	f.bus.Emit(models.EventUserUnbanned, models.ModerationEvent{RoomID: "r1", UserID: "other"})
	assert.Equal(t, before, len(f.svc.getCalls))
}

func TestDerivedViews_PendingAndDiscovery(t *testing.T) {
	f := newFixture(t)

	mine := testRoom("mine")
	f.store.AddLocalRoom(mine)
	assert.Equal(t, []string{"mine"}, f.store.PendingRooms())

	room, _ := f.store.Room("mine")
	assert.True(t, room.IsCreator)
	assert.True(t, room.IsNew)

	// The refresh confirms the pending room and brings a new one.
	f.store.ApplyDiscovery([]models.Room{*testRoom("mine"), *testRoom("other")})
	assert.Empty(t, f.store.PendingRooms())

	rooms := f.store.DiscoverableRooms()
	assert.Len(t, rooms, 2)

	room, _ = f.store.Room("mine")
	assert.True(t, room.IsCreator, "creator flag rederived from the created set")
}
