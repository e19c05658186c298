package domain

import "time"

// RoomInfo is a point-in-time view of a room. Sessions counts every open
// transport connection, Participants only those that have joined, so
// Sessions >= Participants always holds.
type RoomInfo struct {
	Name         RoomName  `json:"name"`
	Sessions     int       `json:"sessions"`
	Participants int       `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}
