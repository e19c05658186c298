package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/internal/core/services"
	"roomcast/internal/infrastructure/directory"
	"roomcast/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRouter(t *testing.T, tokens *services.RoomTokenService) (*gin.Engine, *directory.Directory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t).Sugar()
	dir := directory.New(func(name domain.RoomName) ports.RoomCoordinator {
		return services.NewRoomCoordinator(name, memory.NewParticipantRegistry(), nil, nil, logger)
	}, nil, logger)

	router := gin.New()
	NewRoomHandler(dir, tokens).SetupRoutes(router, nil)
	return router, dir
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListRooms(t *testing.T) {
	router, dir := newTestRouter(t, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Rooms []domain.RoomInfo `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Rooms)

	dir.GetOrCreate(context.Background(), "lobby")
	dir.GetOrCreate(context.Background(), "standup")

	w = doRequest(router, http.MethodGet, "/api/v1/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Rooms, 2)
}

func TestGetRoom(t *testing.T) {
	router, dir := newTestRouter(t, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/rooms/lobby", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	dir.GetOrCreate(context.Background(), "lobby")

	w = doRequest(router, http.MethodGet, "/api/v1/rooms/lobby", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Room domain.RoomInfo `json:"room"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.RoomName("lobby"), resp.Room.Name)
	assert.Zero(t, resp.Room.Participants)
}

func TestGetRoom_InvalidName(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/rooms/bad%20name", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMintToken(t *testing.T) {
	tokens := services.NewRoomTokenService("test-secret", time.Hour)
	router, _ := newTestRouter(t, tokens)

	w := doRequest(router, http.MethodPost, "/api/v1/rooms/lobby/token", `{"displayName":"Alice"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims, err := tokens.ValidateTokenForRoom(resp.Token, "lobby")
	require.NoError(t, err)
	assert.Equal(t, "Alice", claims.DisplayName)
}

func TestMintToken_AuthDisabled(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/rooms/lobby/token", `{"displayName":"Alice"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
