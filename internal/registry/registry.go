package registry

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/Hiiirsch/tictactoe/internal/apperror"
	"github.com/Hiiirsch/tictactoe/internal/entity"
)

// codeAlphabet deliberately skips nothing: codes are short-lived and
// normalized to upper case, so ambiguity is a client-rendering concern.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const MinCodeLength = 4

// Registry is the process-wide mapping from room code to room. Codes are
// canonically upper case; lookups accept any case.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*entity.Room

	codeLength int
}

func New(codeLength int) *Registry {
	if codeLength < MinCodeLength {
		codeLength = MinCodeLength
	}

	return &Registry{
		rooms:      make(map[string]*entity.Room),
		codeLength: codeLength,
	}
}

// Create - generates a code not currently in use and stores a fresh
// waiting room under it.
func (that *Registry) Create() *entity.Room {
	that.mu.Lock()
	defer that.mu.Unlock()

	for {
		code := that.newCode()
		if _, exists := that.rooms[code]; exists {
			continue
		}

		room := entity.NewRoom(code)
		that.rooms[code] = room

		return room
	}
}

// Get - case-insensitive room lookup.
func (that *Registry) Get(code string) (*entity.Room, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	room, ok := that.rooms[Normalize(code)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, code)
	}

	return room, nil
}

// Remove - drops a room. Called once a room is permanently empty so
// abandoned rooms don't accumulate.
func (that *Registry) Remove(code string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.rooms, Normalize(code))
}

// Len returns the number of live rooms.
func (that *Registry) Len() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.rooms)
}

// Normalize maps a room code to its canonical form.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (that *Registry) newCode() string {
	buf := make([]byte, that.codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("crypto/rand failure: %w", err))
	}

	out := make([]byte, that.codeLength)
	for i := range out {
		out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}

	return string(out)
}
