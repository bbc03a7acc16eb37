package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

// Snapshot is the latest view of one live game session.
type Snapshot struct {
	GameID        string            `json:"gameId"`
	RunID         string            `json:"runId"`
	Color         domain.Color      `json:"color"`
	Moves         []string          `json:"moves"`
	PositionKey   string            `json:"positionKey"`
	Clock         domain.Clock      `json:"clock"`
	Status        domain.GameStatus `json:"status"`
	PendingPonder string            `json:"pendingPonder,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Snapshots keeps the most recent Snapshot per game. Load returns nil, nil
// for an unknown game.
type Snapshots interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, gameID string) (*Snapshot, error)
}

type RedisSnapshots struct{ rdb *redis.Client }

func NewRedisSnapshots(rdb *redis.Client) *RedisSnapshots { return &RedisSnapshots{rdb: rdb} }

func (s *RedisSnapshots) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keySnapshot(snap.GameID), raw, ttlSnapshot).Err()
}

func (s *RedisSnapshots) Load(ctx context.Context, gameID string) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, keySnapshot(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

type MemorySnapshots struct {
	mu    sync.RWMutex
	items map[string]Snapshot
}

func NewMemorySnapshots() *MemorySnapshots { return &MemorySnapshots{items: make(map[string]Snapshot)} }

func (m *MemorySnapshots) Save(_ context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	cp := *snap
	cp.Moves = append([]string(nil), snap.Moves...)
	m.mu.Lock()
	m.items[snap.GameID] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshots) Load(_ context.Context, gameID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.items[gameID]
	if !ok {
		return nil, nil
	}
	snap.Moves = append([]string(nil), snap.Moves...)
	return &snap, nil
}
