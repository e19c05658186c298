package domain

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrSessionClosed       = errors.New("session closed")
)
