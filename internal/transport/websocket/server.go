package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Hiiirsch/tictactoe/internal/apperror"
	"github.com/Hiiirsch/tictactoe/internal/entity"
	"github.com/Hiiirsch/tictactoe/internal/registry"
	"github.com/Hiiirsch/tictactoe/internal/repository"
)

const maxMessageSize = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// session binds a room to its connected clients. Its lock serializes a
// room transition together with the broadcasts it produces, so two
// near-simultaneous intents can never interleave their fan-out. Sessions
// of different rooms proceed fully in parallel.
type session struct {
	mu      sync.Mutex
	room    *entity.Room
	clients map[*client]bool
}

// Server is the session gateway: it binds each connection to a room and
// role, validates inbound intents, applies room transitions and fans the
// resulting events out to the right audience.
type Server struct {
	logger    *slog.Logger
	registry  *registry.Registry
	snapshots repository.RoomRepository

	handlers map[string]func(ctx context.Context, c *client, intent *Intent)

	mu       sync.Mutex
	sessions map[string]*session // canonical room code -> session
}

func New(logger *slog.Logger, reg *registry.Registry, snapshots repository.RoomRepository) *Server {
	server := &Server{
		logger:    logger,
		registry:  reg,
		snapshots: snapshots,
		sessions:  make(map[string]*session),
	}

	server.handlers = map[string]func(ctx context.Context, c *client, intent *Intent){
		IntentJoin:           server.handleJoin,
		IntentMove:           server.handleMove,
		IntentResign:         server.handleResign,
		IntentRematch:        server.handleRematch,
		IntentDeclineRematch: server.handleDeclineRematch,
		IntentNewMatch:       server.handleNewMatch,
		IntentCheer:          server.handleCheer,
	}

	return server
}

// Start - starts the WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.ServeWS(ctx, w, r)
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Minute,
	}

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// ServeWS - upgrades the connection and runs its read pump until the
// client disconnects.
func (that *Server) ServeWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "ServeWS")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := newClient(uuid.New().String(), conn)
	log.Debug("connection established", "connID", c.id)

	go c.writePump()
	that.readPump(ctx, c)
}

// readPump - processes intents from one client. A bad message never
// closes the connection; only a read error (disconnect) does, which
// triggers the leave transition immediately.
func (that *Server) readPump(ctx context.Context, c *client) {
	log := that.logger.With("method", "readPump", "connID", c.id)

	defer func() {
		that.disconnect(ctx, c)
		c.closeSend()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("connection closed", "error", err)
			return
		}

		var intent Intent
		if err = json.Unmarshal(data, &intent); err != nil {
			log.Debug("failed to unmarshal intent", "error", err)
			that.sendError(c, apperror.ErrMalformedIntent.Error())
			continue
		}

		handler, ok := that.handlers[intent.Kind]
		if !ok {
			log.Debug("unknown intent kind", "kind", intent.Kind)
			that.sendError(c, apperror.ErrMalformedIntent.Error())
			continue
		}

		handler(ctx, c, &intent)
	}
}

// sessionFor returns the live session for a room, creating it on first
// contact.
func (that *Server) sessionFor(room *entity.Room) *session {
	that.mu.Lock()
	defer that.mu.Unlock()

	if existing, ok := that.sessions[room.Code]; ok {
		return existing
	}

	created := &session{
		room:    room,
		clients: make(map[*client]bool),
	}
	that.sessions[room.Code] = created

	return created
}

// dropSession removes an empty room from the gateway and the registry.
func (that *Server) dropSession(ctx context.Context, code string) {
	that.mu.Lock()
	delete(that.sessions, code)
	that.mu.Unlock()

	that.registry.Remove(code)

	if err := that.snapshots.DeleteByCode(ctx, code); err != nil {
		that.logger.Error("failed to delete room snapshot", "code", code, "error", err)
	}
}

func (that *Server) handleJoin(ctx context.Context, c *client, intent *Intent) {
	log := that.logger.With("method", "handleJoin", "connID", c.id)

	if intent.Code == "" || intent.Name == "" {
		that.sendError(c, apperror.ErrMalformedIntent.Error())
		return
	}

	if c.session != nil && c.session.room.Code != registry.Normalize(intent.Code) {
		that.sendError(c, "already attached to another room")
		return
	}

	room, err := that.registry.Get(intent.Code)
	if err != nil {
		log.Debug("room lookup failed", "code", intent.Code)
		that.sendError(c, ReasonInvalidCode)
		return
	}

	sess := that.sessionFor(room)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	result := room.Join(c.id, intent.Name, intent.Spectator)

	c.session = sess
	c.name = intent.Name
	sess.clients[c] = true

	snapshot := room.Snapshot()

	if result.Spectator {
		c.trySend(SpectatorEvent{Kind: EventSpectator, Snapshot: snapshot})
		sess.broadcastExcept(c, AudienceEvent{Kind: EventAudience, SpectatorCount: snapshot.SpectatorCount})
		log.Info("spectator joined", "code", room.Code, "name", intent.Name)
	} else {
		c.trySend(AssignEvent{Kind: EventAssign, Symbol: result.Mark})
		c.trySend(StateEvent{Kind: EventState, Snapshot: snapshot})

		if result.Started {
			sess.broadcast(StartEvent{
				Kind:    EventStart,
				Board:   snapshot.Board,
				Next:    snapshot.Turn,
				Players: snapshot.Players,
			})
		} else {
			sess.broadcastExcept(c, WaitingEvent{
				Kind:           EventWaiting,
				Players:        snapshot.Players,
				SpectatorCount: snapshot.SpectatorCount,
			})
		}

		log.Info("player joined", "code", room.Code, "name", intent.Name, "symbol", result.Mark)
	}

	that.saveSnapshot(ctx, &snapshot)
}

func (that *Server) handleMove(ctx context.Context, c *client, intent *Intent) {
	if intent.Cell == nil {
		that.sendError(c, apperror.ErrMalformedIntent.Error())
		return
	}

	sess := c.session
	if sess == nil {
		that.sendError(c, apperror.ErrNotSeated.Error())
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	mark, seated := sess.room.SeatOf(c.id)
	if !seated {
		that.sendError(c, apperror.ErrNotSeated.Error())
		return
	}

	if err := sess.room.Move(mark, *intent.Cell); err != nil {
		that.sendError(c, reason(err))
		return
	}

	that.broadcastState(ctx, sess)
}

func (that *Server) handleResign(ctx context.Context, c *client, _ *Intent) {
	sess := c.session
	if sess == nil {
		that.sendError(c, apperror.ErrNotSeated.Error())
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	mark, seated := sess.room.SeatOf(c.id)
	if !seated {
		that.sendError(c, apperror.ErrNotSeated.Error())
		return
	}

	if err := sess.room.Resign(mark); err != nil {
		that.sendError(c, reason(err))
		return
	}

	that.logger.Info("player resigned", "code", sess.room.Code, "symbol", mark)

	that.broadcastState(ctx, sess)
}

func (that *Server) handleRematch(ctx context.Context, c *client, _ *Intent) {
	that.applyRematch(ctx, c, true)
}

func (that *Server) handleDeclineRematch(ctx context.Context, c *client, _ *Intent) {
	that.applyRematch(ctx, c, false)
}

func (that *Server) applyRematch(ctx context.Context, c *client, accept bool) {
	sess := c.session
	if sess == nil {
		that.sendError(c, apperror.ErrNotSeated.Error())
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	mark, seated := sess.room.SeatOf(c.id)
	if !seated {
		that.sendError(c, apperror.ErrNotSeated.Error())
		return
	}

	result, err := sess.room.Rematch(mark, accept)
	if err != nil {
		that.sendError(c, reason(err))
		return
	}

	snapshot := sess.room.Snapshot()

	switch {
	case result.Restarted:
		sess.broadcast(StartEvent{
			Kind:    EventStart,
			Board:   snapshot.Board,
			Next:    snapshot.Turn,
			Players: snapshot.Players,
		})
	case result.Declined:
		sess.broadcast(RematchDeclinedEvent{Kind: EventRematchDeclined})
	default:
		sess.broadcastExcept(c, RematchRequestEvent{Kind: EventRematchRequest})
	}

	that.saveSnapshot(ctx, &snapshot)
}

func (that *Server) handleNewMatch(ctx context.Context, c *client, _ *Intent) {
	sess := c.session
	if sess == nil {
		that.sendError(c, apperror.ErrNotSeated.Error())
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, seated := sess.room.SeatOf(c.id); !seated {
		that.sendError(c, apperror.ErrNotSeated.Error())
		return
	}

	sess.room.NewMatch()

	snapshot := sess.room.Snapshot()

	sess.broadcast(PlayersEvent{Kind: EventPlayers, Players: snapshot.Players})
	sess.broadcast(StateEvent{Kind: EventState, Snapshot: snapshot})

	that.saveSnapshot(ctx, &snapshot)
}

func (that *Server) handleCheer(_ context.Context, c *client, intent *Intent) {
	sess := c.session
	if sess == nil {
		that.sendError(c, apperror.ErrSpectatorsOnly.Error())
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, seated := sess.room.SeatOf(c.id); seated {
		that.sendError(c, apperror.ErrSpectatorsOnly.Error())
		return
	}

	// Extra cheers inside the cooldown window are dropped, not errors.
	if !c.allowCheer(time.Now()) {
		return
	}

	sess.broadcast(CheerEvent{Kind: EventCheer, Target: intent.Target})
}

// disconnect applies the leave transition for a closed connection.
func (that *Server) disconnect(ctx context.Context, c *client) {
	sess := c.session
	if sess == nil {
		return
	}

	log := that.logger.With("method", "disconnect", "connID", c.id, "code", sess.room.Code)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	delete(sess.clients, c)

	result := sess.room.Leave(c.id)

	if result.Empty {
		log.Info("room is empty, removing it")
		that.dropSession(ctx, sess.room.Code)
		return
	}

	snapshot := sess.room.Snapshot()

	switch {
	case result.WasPlayer:
		log.Info("player left", "symbol", result.Mark)

		for remaining := range sess.clients {
			if remaining.id == result.OpponentConnID {
				remaining.trySend(OpponentLeftEvent{Kind: EventOpponentLeft})
				break
			}
		}

		sess.broadcast(StateEvent{Kind: EventState, Snapshot: snapshot})
	case result.WasSpectator:
		sess.broadcast(AudienceEvent{Kind: EventAudience, SpectatorCount: snapshot.SpectatorCount})
	}

	that.saveSnapshot(ctx, &snapshot)
}

// broadcastState fans the room state out to every occupant, following a
// finished game with a game_over event.
func (that *Server) broadcastState(ctx context.Context, sess *session) {
	snapshot := sess.room.Snapshot()

	sess.broadcast(StateEvent{Kind: EventState, Snapshot: snapshot})

	if snapshot.Status == entity.StatusOver {
		sess.broadcast(GameOverEvent{Kind: EventGameOver, Winner: snapshot.Winner, Draw: snapshot.Draw})
	}

	that.saveSnapshot(ctx, &snapshot)
}

func (that *Server) saveSnapshot(ctx context.Context, snapshot *entity.Snapshot) {
	if err := that.snapshots.Save(ctx, snapshot); err != nil {
		that.logger.Error("failed to save room snapshot", "code", snapshot.Code, "error", err)
	}
}

func (that *Server) sendError(c *client, message string) {
	c.trySend(ErrorEvent{Kind: EventError, Message: message})
}

// reason maps a room rejection to its user-facing message. Rejections
// are reported to the originating connection only, never broadcast.
func reason(err error) string {
	for _, known := range []error{
		apperror.ErrIllegalMove,
		apperror.ErrNotYourTurn,
		apperror.ErrNotPlaying,
		apperror.ErrGameNotOver,
		apperror.ErrNotSeated,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}

	return err.Error()
}

func (that *session) broadcast(event any) {
	for c := range that.clients {
		if !c.trySend(event) {
			delete(that.clients, c)
		}
	}
}

func (that *session) broadcastExcept(skip *client, event any) {
	for c := range that.clients {
		if c == skip {
			continue
		}

		if !c.trySend(event) {
			delete(that.clients, c)
		}
	}
}
