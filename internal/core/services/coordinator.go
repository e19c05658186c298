package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/pkg/tracing"
	"roomcast/pkg/validation"

	"go.uber.org/zap"
)

// sessionState is the coordinator's view of one transport session.
// connected -> joined -> removed from the map; there is no way back from
// joined except through HandleClose.
type sessionState int

const (
	stateConnected sessionState = iota
	stateJoined
)

type roomCoordinator struct {
	name      domain.RoomName
	registry  ports.ParticipantRegistry
	mirror    ports.PresenceMirror
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger
	createdAt time.Time

	// mu serializes all inbound events for this room. Every state mutation
	// (session set, registry) and every broadcast happens inside it; sends
	// are deadline-bounded and never block the section on a stuck peer.
	mu       sync.Mutex
	sessions map[ports.Session]sessionState
}

// NewRoomCoordinator creates the per-room actor. mirror may be nil; metrics
// and logger fall back to no-ops when nil.
func NewRoomCoordinator(
	name domain.RoomName,
	registry ports.ParticipantRegistry,
	mirror ports.PresenceMirror,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) ports.RoomCoordinator {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &roomCoordinator{
		name:      name,
		registry:  registry,
		mirror:    mirror,
		metrics:   metrics,
		logger:    logger.With("room", string(name)),
		createdAt: time.Now(),
		sessions:  make(map[ports.Session]sessionState),
	}
}

func (r *roomCoordinator) Name() domain.RoomName {
	return r.name
}

func (r *roomCoordinator) AttachSession(ctx context.Context, sess ports.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess]; exists {
		return fmt.Errorf("session %s already attached to room %s", sess.ID(), r.name)
	}

	r.sessions[sess] = stateConnected
	r.metrics.SessionAttached()
	r.logger.Infow("session attached", "conn_id", sess.ID(), "sessions", len(r.sessions))
	return nil
}

// HandleMessage processes one inbound frame from a session. Malformed frames
// and unknown message types are ignored without affecting the connection; the
// returned error exists only so the transport layer can log it.
func (r *roomCoordinator) HandleMessage(ctx context.Context, sess ports.Session, raw []byte) error {
	var msg SignalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.metrics.MessageIgnored()
		return fmt.Errorf("malformed message from %s: %w", sess.ID(), err)
	}

	switch msg.Type {
	case MessageTypeJoin:
		return r.handleJoin(ctx, sess, msg)
	default:
		r.metrics.MessageIgnored()
		r.logger.Debugw("ignoring message with unexpected type",
			"conn_id", sess.ID(),
			"type", msg.Type,
		)
		return nil
	}
}

func (r *roomCoordinator) handleJoin(ctx context.Context, sess ports.Session, msg SignalMessage) error {
	start := time.Now()
	ctx, span := tracing.TraceSignalMessage(ctx, MessageTypeJoin, string(r.name), string(msg.ID))
	defer span.End()

	if err := validation.ValidateParticipantID(string(msg.ID)); err != nil {
		r.metrics.MessageIgnored()
		tracing.RecordError(ctx, err)
		return fmt.Errorf("ignoring join from %s: %w", sess.ID(), err)
	}
	if err := validation.ValidateDisplayName(msg.DisplayName); err != nil {
		r.metrics.MessageIgnored()
		tracing.RecordError(ctx, err)
		return fmt.Errorf("ignoring join from %s: %w", sess.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, attached := r.sessions[sess]
	if !attached {
		// Buffered frame delivered after teardown; nothing to do.
		return nil
	}

	participant := &domain.Participant{
		ID:          msg.ID,
		DisplayName: msg.DisplayName,
		Tracks:      msg.TrackDescriptors,
	}

	// A session owns at most one participant record. Drop any record it
	// announced earlier so a re-join under a new id cannot strand the old one
	// past the session's lifetime.
	prevID, hadPrev, err := r.registry.RemoveBySession(ctx, sess)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("registry remove for %s: %w", sess.ID(), err)
	}

	// Insert (or overwrite on re-join) before anything is sent, so the
	// snapshot below can never miss the sender's predecessor joins and the
	// broadcast can never outrun the registry.
	if err := r.registry.Put(ctx, participant, sess); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("registry put for %s: %w", msg.ID, err)
	}

	if hadPrev && prevID != msg.ID {
		r.broadcast(participantLeftMessage(prevID), sess)
		r.logger.Infow("participant re-announced under new id",
			"previous_id", string(prevID),
			"participant_id", string(msg.ID),
		)
	}
	r.broadcast(participantJoinedMessage(participant), sess)

	others, err := r.registry.Snapshot(ctx, msg.ID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("registry snapshot for %s: %w", msg.ID, err)
	}
	if err := sess.Send(existingParticipantsMessage(others)); err != nil {
		// The joiner may have disconnected mid-join; cleanup arrives via
		// HandleClose.
		r.logger.Debugw("failed to send existing participants", "conn_id", sess.ID(), "error", err)
	}

	firstJoin := state == stateConnected
	r.sessions[sess] = stateJoined

	if firstJoin {
		r.metrics.ParticipantJoined()
	}
	r.metrics.ObserveJoinDuration(time.Since(start).Seconds())
	r.logger.Infow("participant joined",
		"participant_id", string(msg.ID),
		"display_name", msg.DisplayName,
		"tracks", len(msg.TrackDescriptors),
		"rejoin", !firstJoin,
	)

	if r.mirror != nil {
		go r.mirror.ParticipantJoined(context.Background(), r.name, msg.ID)
	}
	return nil
}

// HandleClose is the single cleanup funnel for every teardown path (normal
// close, read error, abrupt disconnect). It is idempotent: the second
// invocation for a session finds it already removed and returns.
func (r *roomCoordinator) HandleClose(ctx context.Context, sess ports.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, attached := r.sessions[sess]; !attached {
		return
	}
	delete(r.sessions, sess)
	r.metrics.SessionDetached()

	id, joined, err := r.registry.RemoveBySession(ctx, sess)
	if err != nil {
		r.logger.Warnw("registry remove failed", "conn_id", sess.ID(), "error", err)
		return
	}
	if !joined {
		// Connection accepted but never announced a participant.
		r.logger.Infow("session detached before join", "conn_id", sess.ID())
		return
	}

	r.broadcast(participantLeftMessage(id), nil)
	r.metrics.ParticipantLeft()
	r.logger.Infow("participant left", "participant_id", string(id), "sessions", len(r.sessions))

	if r.mirror != nil {
		go r.mirror.ParticipantLeft(context.Background(), r.name, id)
	}
}

// broadcast sends msg to every open session except skip. A failed or
// half-closed recipient is skipped; the failure never aborts delivery to the
// rest, since a peer may legitimately disconnect between iteration steps.
// Callers must hold the room's exclusive section.
func (r *roomCoordinator) broadcast(msg SignalMessage, skip ports.Session) {
	for other := range r.sessions {
		if other == skip {
			continue
		}
		if !other.IsOpen() {
			continue
		}
		if err := other.Send(msg); err != nil {
			r.metrics.BroadcastError()
			r.logger.Debugw("broadcast send failed", "conn_id", other.ID(), "type", msg.Type, "error", err)
			continue
		}
		r.metrics.BroadcastSent()
	}
}

// Info reports both counts under the room lock so a snapshot can never
// observe a participant whose session it has not counted.
func (r *roomCoordinator) Info(ctx context.Context) domain.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants, err := r.registry.Count(ctx)
	if err != nil {
		participants = 0
	}

	return domain.RoomInfo{
		Name:         r.name,
		Sessions:     len(r.sessions),
		Participants: participants,
		CreatedAt:    r.createdAt,
	}
}

type nopMetrics struct{}

func (nopMetrics) RoomOpened()                         {}
func (nopMetrics) SessionAttached()                    {}
func (nopMetrics) SessionDetached()                    {}
func (nopMetrics) ParticipantJoined()                  {}
func (nopMetrics) ParticipantLeft()                    {}
func (nopMetrics) BroadcastSent()                      {}
func (nopMetrics) BroadcastError()                     {}
func (nopMetrics) MessageIgnored()                     {}
func (nopMetrics) ObserveJoinDuration(seconds float64) {}
