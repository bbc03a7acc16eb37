package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-lichess-bot/internal/chess/uci"
	"github.com/park285/cheese-lichess-bot/internal/game"
	"github.com/park285/cheese-lichess-bot/internal/lichess"
)

const launchTimeout = 10 * time.Second

// ClientAPI adapts the lichess client to API.
type ClientAPI struct {
	*lichess.Client
}

func (c ClientAPI) OpenGame(ctx context.Context, gameID string) (game.Stream, error) {
	s, err := c.StreamGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// PoolLauncher starts engines through a capacity-limited pool. A game that
// cannot get an engine in time plays without one.
type PoolLauncher struct {
	Pool   *uci.Pool
	Logger *zap.Logger
}

func (l PoolLauncher) Launch(ctx context.Context) (game.Engine, func(), error) {
	acquireCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()
	session, err := l.Pool.Acquire(acquireCtx)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := l.Pool.Release(session); err != nil && l.Logger != nil {
			l.Logger.Warn("engine_release_failed", zap.Error(err))
		}
	}
	return session, release, nil
}
