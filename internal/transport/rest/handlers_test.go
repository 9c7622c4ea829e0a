package rest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hiiirsch/tictactoe/internal/entity"
	"github.com/Hiiirsch/tictactoe/internal/registry"
)

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(4)
	handlers := NewHandlers(logger, reg)

	mux := httprouter.New()
	mux.POST("/games", handlers.CreateGame)
	mux.GET("/games/:code", handlers.GetGame)
	mux.GET("/health", handlers.Health)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, reg
}

func TestHandlers_CreateGame(t *testing.T) {
	srv, reg := newTestServer(t)

	// When: a game is created
	resp, err := http.Post(srv.URL+"/games", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Then: the response carries the code of a registered waiting room
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Code, 4)

	room, err := reg.Get(body.Code)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusWaiting, room.Snapshot().Status)
}

func TestHandlers_GetGame(t *testing.T) {
	t.Run("returns the live snapshot case-insensitively", func(t *testing.T) {
		// Given: a room with one seated player
		srv, reg := newTestServer(t)
		room := reg.Create()
		room.Join("conn-a", "Alice", false)

		// When: the room is fetched with a lower-case code
		resp, err := http.Get(srv.URL + "/games/" + strings.ToLower(room.Code))
		require.NoError(t, err)
		defer resp.Body.Close()

		// Then: the snapshot reflects the seated player
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var snapshot entity.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
		assert.Equal(t, room.Code, snapshot.Code)
		assert.Equal(t, entity.StatusWaiting, snapshot.Status)
		assert.Equal(t, map[string]string{entity.MarkX: "Alice"}, snapshot.Players)
	})

	t.Run("unknown code yields 404 with invalid_code", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp, err := http.Get(srv.URL + "/games/NOPE")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		var body struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "invalid_code", body.Error)
	})
}

func TestHandlers_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
}
