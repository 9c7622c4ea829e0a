package apperror

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrIllegalMove     = errors.New("illegal move")
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrNotPlaying      = errors.New("game is not in progress")
	ErrGameNotOver     = errors.New("game is not over yet")
	ErrRateLimited     = errors.New("rate limited")
	ErrMalformedIntent = errors.New("malformed intent")
	ErrSpectatorsOnly  = errors.New("only spectators can cheer")
	ErrNotSeated       = errors.New("you are not seated in this game")
)
