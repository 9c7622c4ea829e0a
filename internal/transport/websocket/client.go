package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 16

	// cheerCooldown is enforced by wall-clock comparison, not a timer.
	cheerCooldown = 10 * time.Second
)

// client is one WebSocket connection. Its intents are handled
// sequentially on its read pump; everything it is told goes through the
// buffered send channel drained by its write pump.
type client struct {
	id   string
	conn *websocket.Conn
	send chan any

	// owned by the read pump.
	session   *session
	name      string
	lastCheer time.Time

	sendMu sync.Mutex
	closed bool
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan any, sendBufferSize),
	}
}

// trySend enqueues an event without blocking. A client whose buffer is
// full is considered dead: its channel is closed so the write pump tears
// the connection down, and the broadcast moves on.
func (that *client) trySend(event any) bool {
	that.sendMu.Lock()
	defer that.sendMu.Unlock()

	if that.closed {
		return false
	}

	select {
	case that.send <- event:
		return true
	default:
		that.closed = true
		close(that.send)
		return false
	}
}

func (that *client) closeSend() {
	that.sendMu.Lock()
	defer that.sendMu.Unlock()

	if that.closed {
		return
	}

	that.closed = true
	close(that.send)
}

// allowCheer applies the per-connection cheer cooldown.
func (that *client) allowCheer(now time.Time) bool {
	if now.Sub(that.lastCheer) < cheerCooldown {
		return false
	}

	that.lastCheer = now

	return true
}

func (that *client) writePump() {
	defer that.conn.Close()

	for event := range that.send {
		if err := that.conn.WriteJSON(event); err != nil {
			return
		}
	}
}
