package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hiiirsch/tictactoe/internal/config"
	"github.com/Hiiirsch/tictactoe/internal/registry"
	"github.com/Hiiirsch/tictactoe/internal/repository"
	"github.com/Hiiirsch/tictactoe/internal/repository/storage"
	"github.com/Hiiirsch/tictactoe/internal/transport/rest"
	"github.com/Hiiirsch/tictactoe/internal/transport/websocket"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	snapshots := repository.NewNopRoomRepository()

	if addr := conf.Redis.GetRedisAddr(); addr != "" {
		redisStorage, err := storage.New(ctx, addr)
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		defer func() {
			if err = redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()

		ttl := time.Duration(conf.Game.SnapshotTTLHours) * time.Hour
		snapshots = repository.NewRoomRepository(redisStorage.Connection, ttl)

		log.Info("room snapshot mirroring enabled", "addr", addr)
	}

	rooms := registry.New(conf.Game.CodeLength)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(conf.HTTPPort, rest.NewHandlers(logger, rooms)); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run WebSocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		gateway := websocket.New(logger, rooms, snapshots)
		if wsErr := gateway.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err := <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err := <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
