package websocket

import "github.com/Hiiirsch/tictactoe/internal/entity"

// Client-to-server intent kinds.
const (
	IntentJoin           = "join"
	IntentMove           = "move"
	IntentResign         = "resign"
	IntentRematch        = "rematch"
	IntentDeclineRematch = "decline_rematch"
	IntentNewMatch       = "new_match"
	IntentCheer          = "cheer"
)

// Server-to-client event kinds.
const (
	EventAssign          = "assign"
	EventWaiting         = "waiting"
	EventStart           = "start"
	EventState           = "state"
	EventGameOver        = "game_over"
	EventOpponentLeft    = "opponent_left"
	EventSpectator       = "spectator"
	EventAudience        = "audience"
	EventPlayers         = "players"
	EventCheer           = "cheer"
	EventRematchRequest  = "rematch_request"
	EventRematchDeclined = "rematch_declined"
	EventError           = "error"
)

// Fixed machine-readable entries of the error vocabulary. Everything
// else in error events is a human-readable reason.
const (
	ReasonInvalidCode = "invalid_code"

	// ReasonCheerRateLimited is reserved in the vocabulary; rate-limited
	// cheers are dropped without a reply.
	ReasonCheerRateLimited = "cheer_rate_limited"
)

// Intent is the tagged-union envelope for everything a client sends,
// discriminated by Kind. Payload fields are validated at this boundary
// before any of them reaches a room.
type Intent struct {
	Kind      string `json:"kind"`
	Code      string `json:"code,omitempty"`
	Name      string `json:"name,omitempty"`
	Spectator bool   `json:"spectator,omitempty"`
	Cell      *int   `json:"cell,omitempty"`
	Target    string `json:"target,omitempty"`
}

type AssignEvent struct {
	Kind   string `json:"kind"`
	Symbol string `json:"symbol"`
}

type WaitingEvent struct {
	Kind           string            `json:"kind"`
	Players        map[string]string `json:"players"`
	SpectatorCount int               `json:"spectatorCount"`
}

type StartEvent struct {
	Kind    string            `json:"kind"`
	Board   entity.Board      `json:"board"`
	Next    string            `json:"next"`
	Players map[string]string `json:"players"`
}

type StateEvent struct {
	Kind string `json:"kind"`
	entity.Snapshot
}

type GameOverEvent struct {
	Kind   string `json:"kind"`
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw"`
}

type OpponentLeftEvent struct {
	Kind string `json:"kind"`
}

type SpectatorEvent struct {
	Kind     string          `json:"kind"`
	Snapshot entity.Snapshot `json:"snapshot"`
}

type AudienceEvent struct {
	Kind           string `json:"kind"`
	SpectatorCount int    `json:"spectatorCount"`
}

type PlayersEvent struct {
	Kind    string            `json:"kind"`
	Players map[string]string `json:"players"`
}

type CheerEvent struct {
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
}

type RematchRequestEvent struct {
	Kind string `json:"kind"`
}

type RematchDeclinedEvent struct {
	Kind string `json:"kind"`
}

type ErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
