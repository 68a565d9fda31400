package models

import (
	"encoding/json"
	"time"
)

// RoomStatus is the lifecycle state of a room as reported by the server.
type RoomStatus string

const (
	RoomActive   RoomStatus = "active"
	RoomExpiring RoomStatus = "expiring"
	RoomClosed   RoomStatus = "closed"
)

// Room is the locally cached view of a server-owned room. The ID is
// immutable; every other field may be replaced wholesale or patched
// field-by-field from push events.
type Room struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	RadiusM          int        `json:"radius"` // 0 = unbounded/global
	Category         string     `json:"category,omitempty"`
	ParticipantCount int        `json:"participantCount"`
	Capacity         int        `json:"capacity"`
	CreatedAt        time.Time  `json:"createdAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	Status           RoomStatus `json:"status"`

	// Client-only derived flags, never sent by the server.
	HasJoined bool `json:"-"`
	IsCreator bool `json:"-"`
	IsNew     bool `json:"-"`
}

// Clone returns a copy of the room. Rollback keeps a clone of the
// pre-mutation record so a failed optimistic update restores exact state.
func (r *Room) Clone() *Room {
	cp := *r
	return &cp
}

// RoomPatch carries a partial room update. Nil fields are left untouched
// when the patch is applied, which is what "shallow merge" means here.
type RoomPatch struct {
	Title            *string     `json:"title,omitempty"`
	Description      *string     `json:"description,omitempty"`
	Category         *string     `json:"category,omitempty"`
	ParticipantCount *int        `json:"participantCount,omitempty"`
	Capacity         *int        `json:"capacity,omitempty"`
	ExpiresAt        *time.Time  `json:"expiresAt,omitempty"`
	Status           *RoomStatus `json:"status,omitempty"`
}

// Apply merges the non-nil patch fields into the room.
func (p *RoomPatch) Apply(r *Room) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.ParticipantCount != nil {
		r.ParticipantCount = *p.ParticipantCount
	}
	if p.Capacity != nil {
		r.Capacity = *p.Capacity
	}
	if p.ExpiresAt != nil {
		r.ExpiresAt = *p.ExpiresAt
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
}

// Location is a coordinate pair. Anything handed to the wire must already
// be privacy-snapped (see the geo package).
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Frame is the envelope for every message on the persistent transport.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a frame envelope.
func NewFrame(frameType string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Type: frameType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Payload: raw}, nil
}
