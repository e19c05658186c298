package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// RoomNameRegex validates room name format
	RoomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

	// ParticipantIDRegex validates participant ID format
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidateRoomName validates a room name
func ValidateRoomName(name string) error {
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("room name is too long (max 100 characters)")
	}
	if !RoomNameRegex.MatchString(name) {
		return fmt.Errorf("room name contains invalid characters (only letters, numbers, ., _, - allowed)")
	}
	return nil
}

// ValidateParticipantID validates a client-chosen participant ID
func ValidateParticipantID(id string) error {
	if id == "" {
		return fmt.Errorf("participant ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("participant ID is too long (max 100 characters)")
	}
	if !ParticipantIDRegex.MatchString(id) {
		return fmt.Errorf("invalid participant ID format")
	}
	return nil
}

// ValidateDisplayName validates a display name. Display names are free-form
// and not required to be unique, only bounded.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > 64 {
		return fmt.Errorf("display name is too long (max 64 characters)")
	}
	return nil
}
