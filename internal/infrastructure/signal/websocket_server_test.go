package signal

import (
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
	"roomcast/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, tokens *services.RoomTokenService) *httptest.Server {
	t.Helper()

	logger := zaptest.NewLogger(t).Sugar()
	dir := directory.New(func(name domain.RoomName) ports.RoomCoordinator {
		return services.NewRoomCoordinator(name, memory.NewParticipantRegistry(), nil, nil, logger)
	}, nil, logger)

	srv := NewWebSocketServer(dir, tokens, config.DefaultConfig(), logger)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "?" + query
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, query), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) services.SignalMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg services.SignalMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func sendJoin(t *testing.T, conn *websocket.Conn, id, displayName string, tracks ...domain.TrackDescriptor) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(services.SignalMessage{
		Type:             services.MessageTypeJoin,
		ID:               domain.ParticipantID(id),
		DisplayName:      displayName,
		TrackDescriptors: tracks,
	}))
}

func TestHandleWebSocket_RejectsInvalidRoom(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, query := range []string{"", "room=", "room=has%20spaces"} {
		resp, err := http.Get(ts.URL + "?" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "query %q", query)
	}
}

func TestHandleWebSocket_AuthRequired(t *testing.T) {
	tokens := services.NewRoomTokenService("test-secret", time.Hour)
	ts := newTestServer(t, tokens)

	// No token.
	resp, err := http.Get(ts.URL + "?room=lobby")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Token for a different room.
	wrong, err := tokens.GenerateToken("standup", "Alice")
	require.NoError(t, err)
	resp, err = http.Get(ts.URL + "?room=lobby&token=" + wrong)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token connects and can join.
	valid, err := tokens.GenerateToken("lobby", "Alice")
	require.NoError(t, err)
	conn := dial(t, ts, "room=lobby&token="+valid)
	sendJoin(t, conn, "a1", "Alice")
	msg := readMessage(t, conn)
	assert.Equal(t, services.MessageTypeExistingParticipants, msg.Type)
}

func TestHandleWebSocket_JoinLeaveEndToEnd(t *testing.T) {
	ts := newTestServer(t, nil)

	a := dial(t, ts, "room=lobby")
	tracks := []domain.TrackDescriptor{{MediaID: "m1", TrackName: "cam", Kind: "video"}}
	sendJoin(t, a, "a1", "Alice", tracks...)

	snapshot := readMessage(t, a)
	require.Equal(t, services.MessageTypeExistingParticipants, snapshot.Type)
	assert.Empty(t, snapshot.Participants)

	b := dial(t, ts, "room=lobby")
	sendJoin(t, b, "b1", "Bob")

	snapshot = readMessage(t, b)
	require.Equal(t, services.MessageTypeExistingParticipants, snapshot.Type)
	require.Len(t, snapshot.Participants, 1)
	assert.Equal(t, domain.ParticipantID("a1"), snapshot.Participants[0].ID)
	assert.Equal(t, "Alice", snapshot.Participants[0].DisplayName)
	assert.Equal(t, tracks, snapshot.Participants[0].TrackDescriptors)

	joined := readMessage(t, a)
	require.Equal(t, services.MessageTypeParticipantJoined, joined.Type)
	assert.Equal(t, domain.ParticipantID("b1"), joined.ID)
	assert.Equal(t, "Bob", joined.DisplayName)

	// B drops; A hears participantLeft.
	b.Close()
	left := readMessage(t, a)
	require.Equal(t, services.MessageTypeParticipantLeft, left.Type)
	assert.Equal(t, domain.ParticipantID("b1"), left.ID)
}

func TestHandleWebSocket_RoomsAreIsolated(t *testing.T) {
	ts := newTestServer(t, nil)

	a := dial(t, ts, "room=lobby")
	sendJoin(t, a, "a1", "Alice")
	require.Equal(t, services.MessageTypeExistingParticipants, readMessage(t, a).Type)

	b := dial(t, ts, "room=standup")
	sendJoin(t, b, "b1", "Bob")

	snapshot := readMessage(t, b)
	require.Equal(t, services.MessageTypeExistingParticipants, snapshot.Type)
	assert.Empty(t, snapshot.Participants)

	// A must hear nothing about B.
	a.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg services.SignalMessage
	assert.Error(t, a.ReadJSON(&msg))
}

// TestServeSession_NoGoroutineLeakOnTeardown tears a connection down with
// unconsumed frames in flight while the server's liveness probing is racing
// the read error, and verifies the per-connection goroutines all exit.
func TestServeSession_NoGoroutineLeakOnTeardown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	logger := zaptest.NewLogger(t).Sugar()
	dir := directory.New(func(name domain.RoomName) ports.RoomCoordinator {
		return services.NewRoomCoordinator(name, memory.NewParticipantRegistry(), nil, nil, logger)
	}, nil, logger)

	cfg := config.DefaultConfig()
	cfg.Signal.PingInterval = 5 * time.Millisecond
	cfg.Signal.PongTimeout = 30 * time.Millisecond

	srv := NewWebSocketServer(dir, nil, cfg, logger)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "room=lobby"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	// Swallow pings so the server's liveness path fires, and stack up more
	// frames than the server buffers before dropping the connection.
	conn.SetPingHandler(func(string) error { return nil })
	for i := 0; i < 30; i++ {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"noise"}`))
	}
	conn.Close()
}

func TestHandleWebSocket_UnknownMessageIgnored(t *testing.T) {
	ts := newTestServer(t, nil)

	a := dial(t, ts, "room=lobby")
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"iceCandidate","candidate":"..."}`)))

	// Connection stays usable.
	sendJoin(t, a, "a1", "Alice")
	msg := readMessage(t, a)
	assert.Equal(t, services.MessageTypeExistingParticipants, msg.Type)
}
