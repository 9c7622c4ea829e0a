package websocket

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hiiirsch/tictactoe/internal/entity"
	"github.com/Hiiirsch/tictactoe/internal/registry"
	"github.com/Hiiirsch/tictactoe/internal/repository"
)

// testEvent is a union of all server event payloads, decoded loosely.
type testEvent struct {
	Kind           string            `json:"kind"`
	Symbol         string            `json:"symbol"`
	Message        string            `json:"message"`
	Board          []string          `json:"board"`
	Next           string            `json:"next"`
	Status         string            `json:"status"`
	Winner         string            `json:"winner"`
	Draw           bool              `json:"draw"`
	Players        map[string]string `json:"players"`
	SpectatorCount int               `json:"spectatorCount"`
	Target         string            `json:"target"`
	Snapshot       *entity.Snapshot  `json:"snapshot"`
}

func newGateway(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(4)
	gateway := New(logger, reg, repository.NewNopRoomRepository())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gateway.ServeWS(context.Background(), w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}

func sendIntent(t *testing.T, conn *websocket.Conn, intent Intent) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(intent))
}

func readEvent(t *testing.T, conn *websocket.Conn) testEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var event testEvent
	require.NoError(t, conn.ReadJSON(&event))

	return event
}

func requireKind(t *testing.T, conn *websocket.Conn, kind string) testEvent {
	t.Helper()

	event := readEvent(t, conn)
	require.Equal(t, kind, event.Kind)

	return event
}

func cellPtr(cell int) *int {
	return &cell
}

// joinPlayers seats Alice (X) and Bob (O) and drains their join events.
func joinPlayers(t *testing.T, srv *httptest.Server, code string) (alice, bob *websocket.Conn) {
	t.Helper()

	alice = dial(t, srv)
	sendIntent(t, alice, Intent{Kind: IntentJoin, Code: code, Name: "Alice"})
	requireKind(t, alice, EventAssign)
	requireKind(t, alice, EventState)

	bob = dial(t, srv)
	sendIntent(t, bob, Intent{Kind: IntentJoin, Code: code, Name: "Bob"})
	requireKind(t, bob, EventAssign)
	requireKind(t, bob, EventState)
	requireKind(t, bob, EventStart)
	requireKind(t, alice, EventStart)

	return alice, bob
}

func TestServer_FullGame(t *testing.T) {
	srv, reg := newGateway(t)
	room := reg.Create()

	// Given: Alice joins with a lower-cased code
	alice := dial(t, srv)
	sendIntent(t, alice, Intent{Kind: IntentJoin, Code: strings.ToLower(room.Code), Name: "Alice"})

	// Then: she is assigned X and sees the waiting room
	assign := requireKind(t, alice, EventAssign)
	require.Equal(t, entity.MarkX, assign.Symbol)

	state := requireKind(t, alice, EventState)
	require.Equal(t, entity.StatusWaiting, state.Status)

	// When: Bob joins as second player
	bob := dial(t, srv)
	sendIntent(t, bob, Intent{Kind: IntentJoin, Code: room.Code, Name: "Bob"})

	// Then: he is assigned O, sees the running game and both get the start
	assign = requireKind(t, bob, EventAssign)
	require.Equal(t, entity.MarkO, assign.Symbol)

	state = requireKind(t, bob, EventState)
	require.Equal(t, entity.StatusPlaying, state.Status)

	start := requireKind(t, bob, EventStart)
	require.Equal(t, entity.MarkX, start.Next)
	require.Equal(t, map[string]string{entity.MarkX: "Alice", entity.MarkO: "Bob"}, start.Players)
	requireKind(t, alice, EventStart)

	// When: the players race through X's top row
	for i, move := range []struct {
		conn *websocket.Conn
		cell int
	}{
		{alice, 0}, {bob, 4}, {alice, 1}, {bob, 5}, {alice, 2},
	} {
		sendIntent(t, move.conn, Intent{Kind: IntentMove, Code: room.Code, Cell: cellPtr(move.cell)})

		state = requireKind(t, alice, EventState)
		require.Equal(t, state, requireKind(t, bob, EventState), "move %d", i)
	}

	// Then: the final state is over with X as winner, followed by game_over
	require.Equal(t, entity.StatusOver, state.Status)
	require.Equal(t, entity.MarkX, state.Winner)
	require.Equal(t, []string{"X", "X", "X", "", "O", "O", "", "", ""}, state.Board)

	for _, conn := range []*websocket.Conn{alice, bob} {
		gameOver := requireKind(t, conn, EventGameOver)
		assert.Equal(t, entity.MarkX, gameOver.Winner)
		assert.False(t, gameOver.Draw)
	}
}

func TestServer_JoinErrors(t *testing.T) {
	t.Run("unknown room code", func(t *testing.T) {
		srv, _ := newGateway(t)

		conn := dial(t, srv)
		sendIntent(t, conn, Intent{Kind: IntentJoin, Code: "ZZZZ", Name: "Alice"})

		event := requireKind(t, conn, EventError)
		require.Equal(t, ReasonInvalidCode, event.Message)
	})

	t.Run("join without a name is malformed", func(t *testing.T) {
		srv, reg := newGateway(t)
		room := reg.Create()

		conn := dial(t, srv)
		sendIntent(t, conn, Intent{Kind: IntentJoin, Code: room.Code})

		requireKind(t, conn, EventError)

		// Then: the connection survives and a valid join still works
		sendIntent(t, conn, Intent{Kind: IntentJoin, Code: room.Code, Name: "Alice"})
		requireKind(t, conn, EventAssign)
	})

	t.Run("unknown intent kind is malformed", func(t *testing.T) {
		srv, _ := newGateway(t)

		conn := dial(t, srv)
		sendIntent(t, conn, Intent{Kind: "teleport"})

		requireKind(t, conn, EventError)
	})
}

func TestServer_MoveRejections(t *testing.T) {
	srv, reg := newGateway(t)
	room := reg.Create()
	alice, bob := joinPlayers(t, srv, room.Code)

	// When: Bob moves although it is Alice's turn
	sendIntent(t, bob, Intent{Kind: IntentMove, Code: room.Code, Cell: cellPtr(0)})

	// Then: only Bob hears about it, and the board did not change
	event := requireKind(t, bob, EventError)
	require.Equal(t, "it's not your turn", event.Message)
	require.Equal(t, entity.NewBoard(), room.Snapshot().Board)

	// When: Alice sends a move without a cell
	sendIntent(t, alice, Intent{Kind: IntentMove, Code: room.Code})

	// Then: it is rejected as malformed
	requireKind(t, alice, EventError)

	// When: Alice then plays a legal move
	sendIntent(t, alice, Intent{Kind: IntentMove, Code: room.Code, Cell: cellPtr(8)})

	// Then: both players get the new state; Alice never saw Bob's rejection
	state := requireKind(t, alice, EventState)
	require.Equal(t, "X", state.Board[8])
	requireKind(t, bob, EventState)
}

func TestServer_SpectatorsAndCheering(t *testing.T) {
	srv, reg := newGateway(t)
	room := reg.Create()
	alice, bob := joinPlayers(t, srv, room.Code)

	// When: Sam joins as spectator
	sam := dial(t, srv)
	sendIntent(t, sam, Intent{Kind: IntentJoin, Code: room.Code, Name: "Sam", Spectator: true})

	// Then: Sam gets the snapshot, the players get the audience count
	spectator := requireKind(t, sam, EventSpectator)
	require.NotNil(t, spectator.Snapshot)
	require.Equal(t, entity.StatusPlaying, spectator.Snapshot.Status)
	require.Equal(t, 1, spectator.Snapshot.SpectatorCount)

	for _, conn := range []*websocket.Conn{alice, bob} {
		audience := requireKind(t, conn, EventAudience)
		require.Equal(t, 1, audience.SpectatorCount)
	}

	// When: Sam cheers twice in quick succession
	sendIntent(t, sam, Intent{Kind: IntentCheer, Code: room.Code, Target: entity.MarkX})
	sendIntent(t, sam, Intent{Kind: IntentCheer, Code: room.Code, Target: entity.MarkX})

	// Then: every occupant sees exactly one cheer
	for _, conn := range []*websocket.Conn{alice, bob, sam} {
		cheer := requireKind(t, conn, EventCheer)
		require.Equal(t, entity.MarkX, cheer.Target)
	}

	// When: Alice plays a move after the dropped cheer
	sendIntent(t, alice, Intent{Kind: IntentMove, Code: room.Code, Cell: cellPtr(0)})

	// Then: the next event everywhere is the state, not a second cheer
	for _, conn := range []*websocket.Conn{alice, bob, sam} {
		requireKind(t, conn, EventState)
	}

	// When: a seated player tries to cheer
	sendIntent(t, bob, Intent{Kind: IntentCheer, Code: room.Code, Target: entity.MarkO})

	// Then: it is rejected to Bob only
	requireKind(t, bob, EventError)
}

func TestServer_RematchFlow(t *testing.T) {
	srv, reg := newGateway(t)
	room := reg.Create()
	alice, bob := joinPlayers(t, srv, room.Code)

	// Given: Alice resigns, so Bob wins
	sendIntent(t, alice, Intent{Kind: IntentResign, Code: room.Code})
	for _, conn := range []*websocket.Conn{alice, bob} {
		state := requireKind(t, conn, EventState)
		require.Equal(t, entity.StatusOver, state.Status)
		require.Equal(t, entity.MarkO, state.Winner)
		requireKind(t, conn, EventGameOver)
	}

	// When: Bob requests a rematch
	sendIntent(t, bob, Intent{Kind: IntentRematch, Code: room.Code})

	// Then: Alice is asked, the game stays over
	requireKind(t, alice, EventRematchRequest)
	require.Equal(t, entity.StatusOver, room.Snapshot().Status)

	// When: Alice declines
	sendIntent(t, alice, Intent{Kind: IntentDeclineRematch, Code: room.Code})

	// Then: everyone learns about the decline
	requireKind(t, alice, EventRematchDeclined)
	requireKind(t, bob, EventRematchDeclined)

	// When: both vote accept afterwards
	sendIntent(t, bob, Intent{Kind: IntentRematch, Code: room.Code})
	requireKind(t, alice, EventRematchRequest)

	sendIntent(t, alice, Intent{Kind: IntentRematch, Code: room.Code})

	// Then: a fresh game starts for both players
	for _, conn := range []*websocket.Conn{alice, bob} {
		start := requireKind(t, conn, EventStart)
		require.Equal(t, entity.MarkX, start.Next)
	}
	require.Equal(t, entity.StatusPlaying, room.Snapshot().Status)
}

func TestServer_NewMatch(t *testing.T) {
	srv, reg := newGateway(t)
	room := reg.Create()
	alice, bob := joinPlayers(t, srv, room.Code)

	// When: Alice requests a new match mid-game
	sendIntent(t, alice, Intent{Kind: IntentNewMatch, Code: room.Code})

	// Then: both learn the seats are empty and the room waits again
	for _, conn := range []*websocket.Conn{alice, bob} {
		players := requireKind(t, conn, EventPlayers)
		require.Empty(t, players.Players)

		state := requireKind(t, conn, EventState)
		require.Equal(t, entity.StatusWaiting, state.Status)
		require.Equal(t, 2, state.SpectatorCount)
	}

	// When: Bob re-seats through a fresh join
	sendIntent(t, bob, Intent{Kind: IntentJoin, Code: room.Code, Name: "Bob"})

	// Then: he takes the open X seat
	assign := requireKind(t, bob, EventAssign)
	require.Equal(t, entity.MarkX, assign.Symbol)
}

func TestServer_Disconnect(t *testing.T) {
	srv, reg := newGateway(t)
	room := reg.Create()
	alice, bob := joinPlayers(t, srv, room.Code)

	sam := dial(t, srv)
	sendIntent(t, sam, Intent{Kind: IntentJoin, Code: room.Code, Name: "Sam", Spectator: true})
	requireKind(t, sam, EventSpectator)
	requireKind(t, alice, EventAudience)
	requireKind(t, bob, EventAudience)

	// When: Alice's connection drops mid-game
	require.NoError(t, alice.Close())

	// Then: Bob is notified and the room resets to waiting
	requireKind(t, bob, EventOpponentLeft)
	state := requireKind(t, bob, EventState)
	require.Equal(t, entity.StatusWaiting, state.Status)
	require.Equal(t, map[string]string{entity.MarkO: "Bob"}, state.Players)

	// Then: the spectator sees the reset too, without an opponent_left
	state = requireKind(t, sam, EventState)
	require.Equal(t, entity.StatusWaiting, state.Status)

	// When: everyone else leaves as well
	require.NoError(t, bob.Close())
	require.NoError(t, sam.Close())

	// Then: the empty room is removed from the registry
	require.Eventually(t, func() bool {
		return reg.Len() == 0
	}, 3*time.Second, 10*time.Millisecond)
}
