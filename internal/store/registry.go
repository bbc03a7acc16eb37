package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ttlClaim    = 24 * time.Hour
	ttlSnapshot = 24 * time.Hour
)

// ErrSessionClaimed means another owner already runs a session for the game.
var ErrSessionClaimed = errors.New("game session already claimed")

// Registry enforces one live session per game id.
type Registry interface {
	Claim(ctx context.Context, gameID, owner string) error
	Release(ctx context.Context, gameID, owner string) error
}

func keyGame(gameID string) string     { return "lb:game:" + strings.TrimSpace(gameID) }
func keyClaim(gameID string) string    { return keyGame(gameID) + ":owner" }
func keySnapshot(gameID string) string { return keyGame(gameID) + ":snapshot" }

type RedisRegistry struct{ rdb *redis.Client }

func NewRedisRegistry(rdb *redis.Client) *RedisRegistry { return &RedisRegistry{rdb: rdb} }

func (r *RedisRegistry) Claim(ctx context.Context, gameID, owner string) error {
	ok, err := r.rdb.SetNX(ctx, keyClaim(gameID), owner, ttlClaim).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionClaimed
	}
	return nil
}

// Release deletes the claim only while owner still holds it.
func (r *RedisRegistry) Release(ctx context.Context, gameID, owner string) error {
	key := keyClaim(gameID)
	return r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if cur != owner {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}

type MemoryRegistry struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewMemoryRegistry() *MemoryRegistry { return &MemoryRegistry{owners: make(map[string]string)} }

func (m *MemoryRegistry) Claim(_ context.Context, gameID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[gameID]; ok {
		return ErrSessionClaimed
	}
	m.owners[gameID] = owner
	return nil
}

func (m *MemoryRegistry) Release(_ context.Context, gameID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[gameID] == owner {
		delete(m.owners, gameID)
	}
	return nil
}
