package room

import "hilo/internal/game"

var (
	ErrRoomNotFound      = game.NewError(game.KindNotFound, "room_not_found", "room not found")
	ErrRoomFull          = game.NewError(game.KindCapacity, "room_full", "room is full")
	ErrRoomNameTaken     = game.NewError(game.KindConflict, "room_name_taken", "room name is already taken")
	ErrInvalidPassword   = game.NewError(game.KindValidation, "invalid_password", "invalid password")
	ErrMissingField      = game.NewError(game.KindValidation, "missing_field", "missing required field")
	ErrInvalidMaxPlayers = game.NewError(game.KindValidation, "invalid_max_players", "max players out of range")
)
