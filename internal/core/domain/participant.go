package domain

type RoomName string

type ParticipantID string

// TrackDescriptor describes one media track a participant publishes through
// the external relay. The coordinator never interprets these fields; they are
// carried verbatim between clients.
type TrackDescriptor struct {
	MediaID   string `json:"mediaId"`
	TrackName string `json:"trackName"`
	Kind      string `json:"kind"`
}

// Participant is one joined user in a room. The id is chosen by the client
// and is stable for the participant's lifetime; display names are not
// guaranteed unique.
type Participant struct {
	ID          ParticipantID
	DisplayName string
	Tracks      []TrackDescriptor
}
