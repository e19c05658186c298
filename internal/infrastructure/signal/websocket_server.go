package signal

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/internal/core/services"
	"roomcast/pkg/config"
	"roomcast/pkg/tracing"
	"roomcast/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketServer is the connection-upgrade entry point: it resolves the room
// name from the request, hands the accepted session to that room's
// coordinator, and pumps inbound frames until the connection dies.
type WebSocketServer struct {
	directory ports.RoomDirectory
	tokens    *services.RoomTokenService // nil when auth is disabled

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	maxFrameSize int64

	msgRate      rate.Limit
	msgBurst     int
	connLimiters *ipLimiterStore // nil when rate limiting is disabled

	logger *zap.SugaredLogger
}

func NewWebSocketServer(
	directory ports.RoomDirectory,
	tokens *services.RoomTokenService,
	cfg *config.Config,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	s := &WebSocketServer{
		directory:    directory,
		tokens:       tokens,
		pingInterval: cfg.Signal.PingInterval,
		pongTimeout:  cfg.Signal.PongTimeout,
		writeTimeout: cfg.Signal.WriteTimeout,
		maxFrameSize: cfg.Signal.MaxMessageSizeBytes,
		logger:       logger,
	}
	if cfg.RateLimiting.Enabled {
		s.msgRate = rate.Limit(cfg.RateLimiting.WebSocket.MessagesPerSecond)
		s.msgBurst = cfg.RateLimiting.WebSocket.Burst
		perMinute := cfg.RateLimiting.WebSocket.ConnectionsPerMinute
		s.connLimiters = newIPLimiterStore(rate.Limit(float64(perMinute)/60.0), perMinute)
	}
	return s
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomName := r.URL.Query().Get("room")
	if err := validation.ValidateRoomName(roomName); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.tokens != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "token required", http.StatusUnauthorized)
			return
		}
		if _, err := s.tokens.ValidateTokenForRoom(token, domain.RoomName(roomName)); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}

	if s.connLimiters != nil && !s.connLimiters.allow(clientIP(r)) {
		http.Error(w, "connection rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	sess := newWSSession(conn, s.writeTimeout)
	ctx, span := tracing.TraceSessionEvent(r.Context(), "connect", roomName, sess.ID())
	room := s.directory.GetOrCreate(ctx, domain.RoomName(roomName))
	err = room.AttachSession(ctx, sess)
	span.End()
	if err != nil {
		s.logger.Warnw("failed to attach session", "room", roomName, "conn_id", sess.ID(), "error", err)
		sess.Close()
		return
	}

	s.logger.Infow("session connected", "room", roomName, "conn_id", sess.ID(), "remote", r.RemoteAddr)
	s.serveSession(room, sess, conn)
}

// serveSession pumps the connection until it dies. Every exit path funnels
// through the single deferred cleanup, so close and error cannot both drive
// room teardown.
func (s *WebSocketServer) serveSession(room ports.RoomCoordinator, sess *wsSession, conn *websocket.Conn) {
	defer func() {
		sess.Close()
		ctx, span := tracing.TraceSessionEvent(context.Background(), "disconnect", string(room.Name()), sess.ID())
		room.HandleClose(ctx, sess)
		span.End()
		s.logger.Infow("session disconnected", "room", string(room.Name()), "conn_id", sess.ID())
	}()

	conn.SetReadLimit(s.maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan []byte, 10)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	// Reader goroutine; the select loop below keeps processing for this
	// connection single-threaded. done unblocks a pending channel send when
	// the loop exits through the ping path, otherwise the reader would hang
	// on a full messageChan forever.
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				select {
				case errorChan <- err:
				case <-done:
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			select {
			case messageChan <- raw:
			case <-done:
				return
			}
		}
	}()

	var limiter *rate.Limiter
	if s.msgRate > 0 {
		limiter = rate.NewLimiter(s.msgRate, s.msgBurst)
	}

	for {
		select {
		case raw := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				s.logger.Warnw("message rate limit exceeded, dropping frame", "conn_id", sess.ID())
				continue
			}
			if err := room.HandleMessage(context.Background(), sess, raw); err != nil {
				s.logger.Warnw("error handling message", "conn_id", sess.ID(), "error", err)
			}

		case <-pingTicker.C:
			if err := sess.writeControl(websocket.PingMessage); err != nil {
				s.logger.Debugw("ping failed", "conn_id", sess.ID(), "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read error", "conn_id", sess.ID(), "error", err)
			}
			return
		}
	}
}

// ipLimiterStore keeps a token-bucket limiter per client IP for connection
// upgrades.
type ipLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newIPLimiterStore(r rate.Limit, burst int) *ipLimiterStore {
	return &ipLimiterStore{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

func (s *ipLimiterStore) allow(ip string) bool {
	s.mu.Lock()
	limiter, exists := s.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(s.rate, s.burst)
		s.limiters[ip] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := net.ParseIP(xff); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
