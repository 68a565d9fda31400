package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicinity-chat/vicinity-go/internal/models"
	"github.com/vicinity-chat/vicinity-go/internal/tokenstore"
	tsmem "github.com/vicinity-chat/vicinity-go/internal/tokenstore/mem"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, tokenstore.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := tsmem.New()
	return NewClient(srv.URL, tokens), tokens
}

func TestDo_BearerFromStoreEachRequest(t *testing.T) {
	var seen atomic.Value
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	ctx := context.Background()

	require.NoError(t, client.Do(ctx, http.MethodGet, "/ping", nil, nil))
	assert.Equal(t, "", seen.Load(), "no header without a stored token")

	require.NoError(t, tokens.Set(ctx, tokenstore.KeyAccessToken, "tok-1"))
	require.NoError(t, client.Do(ctx, http.MethodGet, "/ping", nil, nil))
	assert.Equal(t, "Bearer tok-1", seen.Load())

	// Rotation takes effect without a new client.
	require.NoError(t, tokens.Set(ctx, tokenstore.KeyAccessToken, "tok-2"))
	require.NoError(t, client.Do(ctx, http.MethodGet, "/ping", nil, nil))
	assert.Equal(t, "Bearer tok-2", seen.Load())
}

func TestDo_DecodesResponse(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/r1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"room": map[string]any{"id": "r1", "title": "coffee", "capacity": 10},
		})
	}))

	var resp struct {
		Room models.Room `json:"room"`
	}
	require.NoError(t, client.Do(context.Background(), http.MethodGet, "/rooms/r1", nil, &resp))
	assert.Equal(t, "r1", resp.Room.ID)
	assert.Equal(t, "coffee", resp.Room.Title)
	assert.Equal(t, 10, resp.Room.Capacity)
}

func TestDo_NonSuccessReturnsRequestError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"message": "already in room", "code": "ALREADY_JOINED"})
	}))

	err := client.Do(context.Background(), http.MethodPost, "/rooms/r1/join", nil, nil)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusConflict, reqErr.Status)
	assert.Equal(t, "ALREADY_JOINED", reqErr.Code)
	assert.Equal(t, "already in room", reqErr.Message)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))

	var out map[string]bool
	require.NoError(t, client.Get(context.Background(), "/rooms/nearby", &out))
	assert.True(t, out["ok"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	err := client.Get(context.Background(), "/rooms/gone", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a 404 is terminal, not retried")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&RequestError{Status: 500}))
	assert.True(t, Retryable(&RequestError{Status: 503}))
	assert.False(t, Retryable(&RequestError{Status: 404}))
	assert.False(t, Retryable(&RequestError{Status: 409}))
	assert.True(t, Retryable(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.False(t, Retryable(errors.New("something else")))
}

func TestParseErrorBody(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		raw     string
		code    string
		message string
	}{
		{
			name:    "flat fields",
			status:  403,
			raw:     `{"message":"you are banned","code":"USER_BANNED"}`,
			code:    "USER_BANNED",
			message: "you are banned",
		},
		{
			name:    "nested under data",
			status:  400,
			raw:     `{"data":{"message":"room is full","code":"ROOM_FULL"}}`,
			code:    "ROOM_FULL",
			message: "room is full",
		},
		{
			name:    "nested under error",
			status:  401,
			raw:     `{"error":{"message":"token expired","code":"UNAUTHORIZED"}}`,
			code:    "UNAUTHORIZED",
			message: "token expired",
		},
		{
			name:    "top level wins over nested",
			status:  400,
			raw:     `{"code":"OUTER","data":{"code":"INNER","message":"inner detail"}}`,
			code:    "OUTER",
			message: "inner detail",
		},
		{
			name:    "non-JSON body falls back to status text",
			status:  502,
			raw:     `<html>Bad Gateway</html>`,
			code:    "",
			message: "Bad Gateway",
		},
		{
			name:    "empty body falls back to status text",
			status:  500,
			raw:     ``,
			code:    "",
			message: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqErr := ParseErrorBody(tt.status, []byte(tt.raw))
			assert.Equal(t, tt.status, reqErr.Status)
			assert.Equal(t, tt.code, reqErr.Code)
			assert.Equal(t, tt.message, reqErr.Message)
		})
	}
}

func TestRoomService_JoinSendsCallerPosition(t *testing.T) {
	var gotPath string
	var gotBody joinRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	svc := NewRoomService(client)

	require.NoError(t, svc.JoinRoom(context.Background(), "r1", 40.71025, -74.00600, 500))
	assert.Equal(t, "/rooms/r1/join", gotPath)
	assert.Equal(t, 40.71025, gotBody.Latitude)
	assert.Equal(t, -74.00600, gotBody.Longitude)
	assert.Equal(t, 500, gotBody.RadiusM)
}

func TestRoomService_NearbyRooms(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/nearby", r.URL.Path)
		assert.Equal(t, "40.7125", r.URL.Query().Get("lat"))
		json.NewEncoder(w).Encode(map[string]any{
			"rooms": []map[string]any{{"id": "r1"}, {"id": "r2"}},
		})
	}))
	svc := NewRoomService(client)

	rooms, err := svc.NearbyRooms(context.Background(), 40.7125, -74.006)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "r1", rooms[0].ID)
}
