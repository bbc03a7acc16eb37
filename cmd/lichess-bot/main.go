package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/park285/cheese-lichess-bot/internal/botbuilder"
	appcfg "github.com/park285/cheese-lichess-bot/internal/config"
	"github.com/park285/cheese-lichess-bot/internal/dispatch"
	"github.com/park285/cheese-lichess-bot/internal/obslog"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run serves until ctx is cancelled (nil) or the account event stream fails
// (non-nil). Without the stream no further games can be discovered, so the
// process ends once the games already running have finished.
func run(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) error {
	deps, err := botbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bot_init_failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("bot_close_failed", zap.Error(err))
		}
	}()

	if deps.Status != nil {
		go func() {
			if err := deps.Status.Run(ctx, cfg.StatusAddr); err != nil {
				logger.Error("status_server_failed", zap.Error(err))
			}
		}()
	}

	logger.Info("bot_started",
		zap.String("bot", cfg.Profile.Name),
		zap.String("base_url", cfg.LichessBaseURL),
		zap.Int("max_games", cfg.MaxConcurrentGames),
	)

	open := func(ctx context.Context) (dispatch.EventStream, error) {
		return deps.Client.StreamEvents(ctx)
	}
	streamErr := consume(ctx, open, deps.Dispatcher)
	switch {
	case streamErr == nil:
		logger.Info("bot_stopping", zap.Int("active_games", deps.Dispatcher.Active()))
	case errors.Is(streamErr, dispatch.ErrEventStreamEnded):
		logger.Error("event_stream_ended", zap.Int("active_games", deps.Dispatcher.Active()))
	default:
		logger.Error("event_stream_failed", zap.Error(streamErr), zap.Int("active_games", deps.Dispatcher.Active()))
	}

	// Running games are left to finish on their own streams.
	deps.Dispatcher.Wait()
	logger.Info("bot_stopped")
	return streamErr
}

// consume opens the account event stream once and dispatches it. A stream
// that cannot be opened, fails or ends is returned as an error; cancellation
// of ctx is not.
func consume(ctx context.Context, open func(context.Context) (dispatch.EventStream, error), d *dispatch.Dispatcher) error {
	events, err := open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer events.Close()
	return d.Run(ctx, events)
}
