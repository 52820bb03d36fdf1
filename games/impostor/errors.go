/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import "errors"

// Rejections returned to the requesting connection only. A rejected
// operation never changes room state.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrGameAlreadyStarted  = errors.New("game already started")
	ErrNameTaken           = errors.New("name already taken")
	ErrNotAuthorized       = errors.New("only the room creator may do that")
	ErrInsufficientPlayers = errors.New("not enough connected players")
	ErrInvalidVote         = errors.New("invalid vote")
	ErrPlayerNotInRoom     = errors.New("player not in room")
	ErrInvalidName         = errors.New("invalid name")
	ErrInvalidRoom         = errors.New("invalid room settings")
	ErrWrongPhase          = errors.New("not allowed in the current phase")
)
