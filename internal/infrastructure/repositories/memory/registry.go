package memory

import (
	"context"
	"sync"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
)

type record struct {
	participant *domain.Participant
	owner       ports.Session
}

// ParticipantRegistry is the in-memory registry for one room. The coordinator
// already serializes access per room; the registry carries its own lock so it
// stays safe for out-of-band readers (REST introspection, metrics).
type ParticipantRegistry struct {
	records map[domain.ParticipantID]*record
	mu      sync.RWMutex
}

func NewParticipantRegistry() ports.ParticipantRegistry {
	return &ParticipantRegistry{
		records: make(map[domain.ParticipantID]*record),
	}
}

// Put inserts or overwrites a participant record. Overwrite on duplicate id
// is deliberate: a re-sent join is an update, not an error.
func (r *ParticipantRegistry) Put(ctx context.Context, participant *domain.Participant, owner ports.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[participant.ID] = &record{
		participant: participant,
		owner:       owner,
	}
	return nil
}

// RemoveBySession scans all records and removes the one owned by the given
// session, reporting its id. O(n) in participant count; room sizes are tens,
// not thousands.
func (r *ParticipantRegistry) RemoveBySession(ctx context.Context, owner ports.Session) (domain.ParticipantID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.records {
		if rec.owner == owner {
			delete(r.records, id)
			return id, true, nil
		}
	}
	return "", false, nil
}

// Snapshot returns every participant's public fields except the one matching
// excluding, in arbitrary order.
func (r *ParticipantRegistry) Snapshot(ctx context.Context, excluding domain.ParticipantID) ([]*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := make([]*domain.Participant, 0, len(r.records))
	for id, rec := range r.records {
		if id == excluding {
			continue
		}
		participants = append(participants, rec.participant)
	}
	return participants, nil
}

func (r *ParticipantRegistry) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records), nil
}
