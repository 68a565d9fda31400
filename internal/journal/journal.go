// Package journal records authoritative push events into Postgres for
// diagnostics and history. It is a plain bus consumer: the sync core does
// not know it exists.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vicinity-chat/vicinity-go/internal/events"
	"github.com/vicinity-chat/vicinity-go/internal/logging"
	"github.com/vicinity-chat/vicinity-go/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_events (
	id         UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	room_id    TEXT NOT NULL,
	payload    JSONB NOT NULL,
	received   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS room_events_room_idx ON room_events (room_id, received);`

var journaledEvents = []string{
	models.EventRoomCreated,
	models.EventRoomUpdated,
	models.EventRoomClosed,
	models.EventRoomExpiring,
	models.EventUserJoined,
	models.EventUserLeft,
	models.EventUserKicked,
	models.EventUserBanned,
	models.EventUserUnbanned,
}

// Journal writes room events to a Postgres table.
type Journal struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
	offs   []func()
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, dsn string, logger *logging.Logger) (*Journal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &Journal{pool: pool, logger: logger}, nil
}

// Start subscribes the journal to every room event on the bus.
func (j *Journal) Start(bus *events.Bus) {
	for _, event := range journaledEvents {
		event := event
		j.offs = append(j.offs, bus.On(event, func(payload any) {
			j.record(event, payload)
		}))
	}
}

// Stop removes the bus registrations and closes the pool.
func (j *Journal) Stop() {
	for _, off := range j.offs {
		off()
	}
	j.offs = nil
	j.pool.Close()
}

func (j *Journal) record(event string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	roomID := ""
	if scoped, ok := payload.(events.RoomScoped); ok {
		roomID = scoped.EventRoomID()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		j.logger.Error(ctx, "failed to marshal %s event for journal: %v", event, err)
		return
	}

	_, err = j.pool.Exec(ctx,
		`INSERT INTO room_events (id, event_type, room_id, payload, received) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), event, roomID, raw, time.Now().UTC(),
	)
	if err != nil {
		j.logger.Error(ctx, "failed to journal %s event: %v", event, err)
	}
}
