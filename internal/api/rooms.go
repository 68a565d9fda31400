package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vicinity-chat/vicinity-go/internal/models"
)

// RoomService is the room boundary of the authority's API.
type RoomService struct {
	client *Client
}

// NewRoomService wraps client with room operations.
func NewRoomService(client *Client) *RoomService {
	return &RoomService{client: client}
}

type joinRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	RadiusM   int     `json:"radius"`
}

type roomResponse struct {
	Room models.Room `json:"room"`
}

type roomsResponse struct {
	Rooms []models.Room `json:"rooms"`
}

// GetRoom fetches the authoritative record for a room.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var resp roomResponse
	if err := s.client.Get(ctx, "/rooms/"+url.PathEscape(roomID), &resp); err != nil {
		return nil, err
	}
	return &resp.Room, nil
}

// JoinRoom joins a room. The coordinates are the caller's current,
// already privacy-snapped position; proximity is validated server-side
// against where the user actually is, never against the room's center.
func (s *RoomService) JoinRoom(ctx context.Context, roomID string, lat, lng float64, radiusM int) error {
	body := joinRequest{Latitude: lat, Longitude: lng, RadiusM: radiusM}
	return s.client.Do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/join", body, nil)
}

// LeaveRoom leaves a room.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID string) error {
	return s.client.Do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/leave", nil, nil)
}

// CloseRoom closes a room the session owns.
func (s *RoomService) CloseRoom(ctx context.Context, roomID string) error {
	return s.client.Do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/close", nil, nil)
}

// NearbyRooms lists discoverable rooms around an already-snapped position.
func (s *RoomService) NearbyRooms(ctx context.Context, lat, lng float64) ([]models.Room, error) {
	path := fmt.Sprintf("/rooms/nearby?lat=%g&lng=%g", lat, lng)
	var resp roomsResponse
	if err := s.client.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}
