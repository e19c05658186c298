package ports

import (
	"context"

	"roomcast/internal/core/domain"
)

// Session is one bidirectional message-oriented connection between a client
// and the coordinator. The transport layer owns the connection lifecycle; the
// coordinator only references it. Send must not block indefinitely and must
// be a cheap failure once the connection is no longer open.
type Session interface {
	ID() string
	Send(v interface{}) error
	IsOpen() bool
	Close() error
}

// RoomCoordinator is the stateful actor for one room. Inbound events for a
// room are processed one at a time; the transport layer may call these
// methods from concurrent connection goroutines.
type RoomCoordinator interface {
	Name() domain.RoomName
	AttachSession(ctx context.Context, sess Session) error
	HandleMessage(ctx context.Context, sess Session, raw []byte) error
	HandleClose(ctx context.Context, sess Session)
	Info(ctx context.Context) domain.RoomInfo
}

// RoomDirectory resolves room names to coordinator instances, creating them
// lazily on first connection. There is exactly one coordinator per name.
type RoomDirectory interface {
	GetOrCreate(ctx context.Context, name domain.RoomName) RoomCoordinator
	Get(ctx context.Context, name domain.RoomName) (RoomCoordinator, bool)
	List(ctx context.Context) []domain.RoomInfo
}

// PresenceMirror receives fire-and-forget join/leave notifications for
// cross-instance visibility. Room correctness never depends on it.
type PresenceMirror interface {
	ParticipantJoined(ctx context.Context, room domain.RoomName, id domain.ParticipantID)
	ParticipantLeft(ctx context.Context, room domain.RoomName, id domain.ParticipantID)
}

// MetricsRecorder is implemented by the monitoring layer.
type MetricsRecorder interface {
	RoomOpened()
	SessionAttached()
	SessionDetached()
	ParticipantJoined()
	ParticipantLeft()
	BroadcastSent()
	BroadcastError()
	MessageIgnored()
	ObserveJoinDuration(seconds float64)
}
