package services

import (
	"roomcast/internal/core/domain"
)

// Signal message types carried over a transport session. The envelope is a
// flat JSON record; unknown types are ignored by the coordinator.
const (
	MessageTypeJoin                 = "join"
	MessageTypeParticipantJoined    = "participantJoined"
	MessageTypeExistingParticipants = "existingParticipants"
	MessageTypeParticipantLeft      = "participantLeft"
)

type SignalMessage struct {
	Type             string                   `json:"type"`
	ID               domain.ParticipantID     `json:"id,omitempty"`
	DisplayName      string                   `json:"displayName,omitempty"`
	TrackDescriptors []domain.TrackDescriptor `json:"trackDescriptors,omitempty"`
	Participants     []ParticipantInfo        `json:"participants,omitempty"`
}

// ParticipantInfo is the public view of a participant sent to peers.
type ParticipantInfo struct {
	ID               domain.ParticipantID     `json:"id"`
	DisplayName      string                   `json:"displayName"`
	TrackDescriptors []domain.TrackDescriptor `json:"trackDescriptors"`
}

func participantJoinedMessage(p *domain.Participant) SignalMessage {
	return SignalMessage{
		Type:             MessageTypeParticipantJoined,
		ID:               p.ID,
		DisplayName:      p.DisplayName,
		TrackDescriptors: p.Tracks,
	}
}

func existingParticipantsMessage(participants []*domain.Participant) SignalMessage {
	infos := make([]ParticipantInfo, 0, len(participants))
	for _, p := range participants {
		infos = append(infos, ParticipantInfo{
			ID:               p.ID,
			DisplayName:      p.DisplayName,
			TrackDescriptors: p.Tracks,
		})
	}
	return SignalMessage{
		Type:         MessageTypeExistingParticipants,
		Participants: infos,
	}
}

func participantLeftMessage(id domain.ParticipantID) SignalMessage {
	return SignalMessage{
		Type: MessageTypeParticipantLeft,
		ID:   id,
	}
}
