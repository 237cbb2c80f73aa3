// internal/room/errors.go
package room

import "errors"

// Failure taxonomy. Every rejected operation reports exactly one of these to
// the originating connection; none of them is ever broadcast and none mutates
// room state. The message text is what goes over the wire.
var (
	ErrRoomAlreadyExists   = errors.New("room already exists")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrPlayerNotInRoom     = errors.New("you are not a player in this room")
	ErrInvalidRoomCode     = errors.New("invalid room code")
	ErrOpponentUnavailable = errors.New("opponent not found or inactive")
)

// errRoomClosed is the reaper's notice to still-connected members, sent as a
// roomError before deletion so clients can tell inactivity apart from other
// failures.
var errRoomClosed = errors.New("room closed due to inactivity")
