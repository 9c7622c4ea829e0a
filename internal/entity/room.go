package entity

import (
	"fmt"
	"sync"

	"github.com/Hiiirsch/tictactoe/internal/apperror"
)

const (
	StatusWaiting = "waiting"
	StatusPlaying = "playing"
	StatusOver    = "over"
)

// Seat holds the connection occupying a player slot.
type Seat struct {
	ConnID string
	Name   string
}

// Room is one isolated game session driven by events. Every method
// checks its guards before mutating, so a rejected intent leaves the
// room untouched, and applies exactly one transition under the room
// lock. The session gateway holds its own per-room lock around a
// transition plus the broadcasts it produces.
type Room struct {
	mu sync.Mutex

	Code string

	status string
	board  Board
	turn   string

	players    map[string]Seat   // mark -> seat, at most one per mark
	spectators map[string]string // connection id -> display name

	winner string
	draw   bool

	rematchVotes map[string]bool // mark -> voted accept
}

func NewRoom(code string) *Room {
	return &Room{
		Code:         code,
		status:       StatusWaiting,
		board:        NewBoard(),
		players:      make(map[string]Seat),
		spectators:   make(map[string]string),
		rematchVotes: make(map[string]bool),
	}
}

// JoinResult reports how a connection ended up attached to the room.
type JoinResult struct {
	Mark      string
	Spectator bool
	Started   bool
}

// Join seats the connection on an open slot, or attaches it as a
// spectator when it asked for that or when both slots are taken. Seating
// the second player starts the game with a fresh board and X to move.
func (that *Room) Join(connID, name string, wantSpectator bool) JoinResult {
	that.mu.Lock()
	defer that.mu.Unlock()

	for mark, seat := range that.players {
		if seat.ConnID == connID {
			return JoinResult{Mark: mark}
		}
	}

	delete(that.spectators, connID)

	if wantSpectator || len(that.players) >= 2 {
		that.spectators[connID] = name
		return JoinResult{Spectator: true}
	}

	mark := MarkX
	if _, taken := that.players[MarkX]; taken {
		mark = MarkO
	}
	that.players[mark] = Seat{ConnID: connID, Name: name}

	result := JoinResult{Mark: mark}
	if len(that.players) == 2 {
		that.startGame()
		result.Started = true
	}

	return result
}

// startGame resets the board and hands the first move to X.
func (that *Room) startGame() {
	that.board = NewBoard()
	that.turn = MarkX
	that.winner = ""
	that.draw = false
	that.rematchVotes = make(map[string]bool)
	that.status = StatusPlaying
}

// Move applies a move for mark at cell and resolves the outcome. Fails
// without side effects if the game is not in progress, it is not mark's
// turn, or the move is illegal on the board.
func (that *Room) Move(mark string, cell int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status != StatusPlaying {
		return apperror.ErrNotPlaying
	}

	if _, seated := that.players[mark]; !seated {
		return apperror.ErrNotSeated
	}

	if that.turn != mark {
		return apperror.ErrNotYourTurn
	}

	board, err := that.board.Apply(mark, cell)
	if err != nil {
		return fmt.Errorf("failed to apply move: %w", err)
	}
	that.board = board

	switch winner, draw := that.board.Evaluate(); {
	case winner != "":
		that.winner = winner
		that.finishGame()
	case draw:
		that.draw = true
		that.finishGame()
	default:
		that.turn = OpponentOf(mark)
	}

	return nil
}

// finishGame freezes the board.
func (that *Room) finishGame() {
	that.status = StatusOver
	that.turn = ""
}

// Resign ends the game immediately with the opposing mark as winner,
// independent of the board state.
func (that *Room) Resign(mark string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status != StatusPlaying {
		return apperror.ErrNotPlaying
	}

	if _, seated := that.players[mark]; !seated {
		return apperror.ErrNotSeated
	}

	that.winner = OpponentOf(mark)
	that.finishGame()

	return nil
}

// RematchResult reports the outcome of a rematch vote.
type RematchResult struct {
	Restarted bool
	Declined  bool
}

// Rematch records a rematch vote. The game restarts only when both
// seated marks have voted accept in the current over phase; a decline
// by either side clears all pending votes.
func (that *Room) Rematch(mark string, accept bool) (RematchResult, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status != StatusOver {
		return RematchResult{}, apperror.ErrGameNotOver
	}

	if _, seated := that.players[mark]; !seated {
		return RematchResult{}, apperror.ErrNotSeated
	}

	if !accept {
		that.rematchVotes = make(map[string]bool)
		return RematchResult{Declined: true}, nil
	}

	that.rematchVotes[mark] = true
	if that.rematchVotes[MarkX] && that.rematchVotes[MarkO] {
		that.startGame()
		return RematchResult{Restarted: true}, nil
	}

	return RematchResult{}, nil
}

// NewMatch resets the room to waiting while keeping its code. Both seats
// are vacated and their occupants become spectators; re-seating happens
// through a fresh join. Returns the connection ids that lost their seat.
func (that *Room) NewMatch() []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	vacated := make([]string, 0, len(that.players))
	for mark, seat := range that.players {
		that.spectators[seat.ConnID] = seat.Name
		vacated = append(vacated, seat.ConnID)
		delete(that.players, mark)
	}

	that.board = NewBoard()
	that.turn = ""
	that.winner = ""
	that.draw = false
	that.rematchVotes = make(map[string]bool)
	that.status = StatusWaiting

	return vacated
}

// LeaveResult reports what a departed connection was, and who is left.
type LeaveResult struct {
	WasPlayer      bool
	WasSpectator   bool
	Mark           string
	OpponentConnID string
	Empty          bool
}

// Leave detaches a connection. A seated player leaving vacates the slot
// and returns the room to waiting with a reset board; the remaining
// player (if any) is reported so the caller can notify it. A spectator
// leaving just shrinks the audience.
func (that *Room) Leave(connID string) LeaveResult {
	that.mu.Lock()
	defer that.mu.Unlock()

	var result LeaveResult

	for mark, seat := range that.players {
		if seat.ConnID != connID {
			continue
		}

		delete(that.players, mark)

		result.WasPlayer = true
		result.Mark = mark

		for _, remaining := range that.players {
			result.OpponentConnID = remaining.ConnID
		}

		that.board = NewBoard()
		that.turn = ""
		that.winner = ""
		that.draw = false
		that.rematchVotes = make(map[string]bool)
		that.status = StatusWaiting

		break
	}

	if !result.WasPlayer {
		if _, ok := that.spectators[connID]; ok {
			delete(that.spectators, connID)
			result.WasSpectator = true
		}
	}

	result.Empty = len(that.players) == 0 && len(that.spectators) == 0

	return result
}

// SeatOf returns the mark held by a connection, if it is seated.
func (that *Room) SeatOf(connID string) (string, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for mark, seat := range that.players {
		if seat.ConnID == connID {
			return mark, true
		}
	}

	return "", false
}

// Snapshot is the full observable room state as sent over the wire and
// mirrored into storage. SpectatorCount is the single canonical audience
// field.
type Snapshot struct {
	Code           string            `json:"code"`
	Status         string            `json:"status"`
	Board          Board             `json:"board"`
	Turn           string            `json:"next,omitempty"`
	Winner         string            `json:"winner,omitempty"`
	Draw           bool              `json:"draw"`
	Players        map[string]string `json:"players"`
	SpectatorCount int               `json:"spectatorCount"`
}

func (that *Room) Snapshot() Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	players := make(map[string]string, len(that.players))
	for mark, seat := range that.players {
		players[mark] = seat.Name
	}

	return Snapshot{
		Code:           that.Code,
		Status:         that.status,
		Board:          that.board,
		Turn:           that.turn,
		Winner:         that.winner,
		Draw:           that.draw,
		Players:        players,
		SpectatorCount: len(that.spectators),
	}
}
