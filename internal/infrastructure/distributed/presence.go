package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of presence event
type EventType string

const (
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"
)

const presenceChannel = "roomcast:presence"

// Event is one presence notification on the mirror channel. Events are
// transient fan-out, not room history; nothing is stored.
type Event struct {
	Type          EventType            `json:"type"`
	InstanceID    string               `json:"instance_id"`
	Room          domain.RoomName      `json:"room"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Timestamp     time.Time            `json:"timestamp"`
}

// RedisPresenceMirror publishes join/leave events over Redis pub/sub so other
// instances (dashboards, presence APIs) can observe room membership changes.
// Publishing is fire-and-forget with a short retry; room state never depends
// on it.
type RedisPresenceMirror struct {
	client     *redis.Client
	instanceID string
	retryCfg   retry.Config
	logger     *zap.SugaredLogger

	pubsub *redis.PubSub
}

func NewRedisPresenceMirror(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *RedisPresenceMirror {
	return &RedisPresenceMirror{
		client:     client,
		instanceID: instanceID,
		retryCfg: retry.Config{
			MaxAttempts:  2,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
			Jitter:       true,
		},
		logger: logger,
	}
}

func (m *RedisPresenceMirror) ParticipantJoined(ctx context.Context, room domain.RoomName, id domain.ParticipantID) {
	m.publish(ctx, Event{Type: EventParticipantJoined, Room: room, ParticipantID: id})
}

func (m *RedisPresenceMirror) ParticipantLeft(ctx context.Context, room domain.RoomName, id domain.ParticipantID) {
	m.publish(ctx, Event{Type: EventParticipantLeft, Room: room, ParticipantID: id})
}

func (m *RedisPresenceMirror) publish(ctx context.Context, event Event) {
	event.InstanceID = m.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Warnw("failed to marshal presence event", "type", event.Type, "error", err)
		return
	}

	err = retry.Retry(ctx, m.retryCfg, func() error {
		return m.client.Publish(ctx, presenceChannel, data).Err()
	})
	if err != nil {
		m.logger.Warnw("failed to publish presence event",
			"type", event.Type,
			"room", string(event.Room),
			"participant_id", string(event.ParticipantID),
			"error", err,
		)
		return
	}

	m.logger.Debugw("published presence event",
		"type", event.Type,
		"room", string(event.Room),
		"participant_id", string(event.ParticipantID),
	)
}

// Subscribe listens for presence events from other instances and calls
// handler for each. Events published by this instance are skipped.
func (m *RedisPresenceMirror) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if m.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	m.pubsub = m.client.Subscribe(ctx, presenceChannel)
	defer m.pubsub.Close()

	ch := m.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				m.logger.Warnw("failed to unmarshal presence event", "error", err, "payload", msg.Payload)
				continue
			}

			if event.InstanceID == m.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				m.logger.Warnw("error handling presence event", "type", event.Type, "error", err)
			}
		}
	}
}
