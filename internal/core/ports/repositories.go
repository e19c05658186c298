package ports

import (
	"context"

	"roomcast/internal/core/domain"
)

// ParticipantRegistry is the per-room participant table. Put overwrites on
// duplicate id (last write wins); RemoveBySession scans for the record owned
// by the given session and reports its id so leave notifications can be sent.
type ParticipantRegistry interface {
	Put(ctx context.Context, participant *domain.Participant, owner Session) error
	RemoveBySession(ctx context.Context, owner Session) (domain.ParticipantID, bool, error)
	Snapshot(ctx context.Context, excluding domain.ParticipantID) ([]*domain.Participant, error)
	Count(ctx context.Context) (int, error)
}
