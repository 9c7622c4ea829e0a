package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Hiiirsch/tictactoe/internal/entity"
)

var ErrSnapshotNotFound = errors.New("room snapshot not found")

// RoomRepository mirrors room snapshots into storage. Snapshots are a
// diagnostic shadow of the in-memory rooms: they expire on their own and
// are never read back to restore state after a restart.
type RoomRepository interface {
	Save(ctx context.Context, snapshot *entity.Snapshot) error
	GetByCode(ctx context.Context, code string) (*entity.Snapshot, error)
	DeleteByCode(ctx context.Context, code string) error
}

type dbRoom struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomRepository(client *redis.Client, ttl time.Duration) RoomRepository {
	return &dbRoom{
		client: client,
		ttl:    ttl,
	}
}

func (that *dbRoom) Save(ctx context.Context, snapshot *entity.Snapshot) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("could not marshal room snapshot: %w", err)
	}

	roomKey := "room:" + snapshot.Code
	if err = that.client.Set(ctx, roomKey, snapshotJSON, that.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set room snapshot: %w", err)
	}

	return nil
}

func (that *dbRoom) GetByCode(ctx context.Context, code string) (*entity.Snapshot, error) {
	roomKey := "room:" + code

	response, err := that.client.Get(ctx, roomKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, code)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room snapshot: %w", err)
	}

	var snapshot entity.Snapshot
	if err = json.Unmarshal([]byte(response), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room snapshot: %w", err)
	}

	return &snapshot, nil
}

func (that *dbRoom) DeleteByCode(ctx context.Context, code string) error {
	roomKey := "room:" + code

	if err := that.client.Del(ctx, roomKey).Err(); err != nil {
		return fmt.Errorf("failed to delete room snapshot: %w", err)
	}

	return nil
}

// nopRoom is used when no Redis address is configured; the service runs
// fully in memory.
type nopRoom struct{}

func NewNopRoomRepository() RoomRepository {
	return nopRoom{}
}

func (nopRoom) Save(_ context.Context, _ *entity.Snapshot) error {
	return nil
}

func (nopRoom) GetByCode(_ context.Context, code string) (*entity.Snapshot, error) {
	return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, code)
}

func (nopRoom) DeleteByCode(_ context.Context, _ string) error {
	return nil
}
