package botbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-lichess-bot/internal/chess"
	"github.com/park285/cheese-lichess-bot/internal/chess/openingbook"
	"github.com/park285/cheese-lichess-bot/internal/chess/uci"
	"github.com/park285/cheese-lichess-bot/internal/config"
	"github.com/park285/cheese-lichess-bot/internal/dispatch"
	"github.com/park285/cheese-lichess-bot/internal/lichess"
	"github.com/park285/cheese-lichess-bot/internal/policy"
	"github.com/park285/cheese-lichess-bot/internal/status"
	"github.com/park285/cheese-lichess-bot/internal/store"
)

const pingTimeout = 5 * time.Second

type Deps struct {
	Client     *lichess.Client
	Dispatcher *dispatch.Dispatcher
	Board      *status.Board
	// Status is nil when no STATUS_ADDR is configured.
	Status *status.Server
	Book   *openingbook.Book

	closers []func() error
}

// Close releases the engine pool, redis and postgres handles.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var result *multierror.Error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil || cfg.Profile == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Deps{Board: status.NewBoard()}
	fail := func(err error) (*Deps, error) {
		_ = deps.Close()
		return nil, err
	}

	// Registry + snapshots (Redis optional)
	var registry store.Registry = store.NewMemoryRegistry()
	var snapshots store.Snapshots = store.NewMemorySnapshots()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := parseRedisURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		rdb := redis.NewClient(opts)
		deps.closers = append(deps.closers, rdb.Close)
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		registry = store.NewRedisRegistry(rdb)
		snapshots = store.NewRedisSnapshots(rdb)
	} else {
		logger.Info("registry_in_memory")
	}

	// Result archive (Postgres optional)
	dcfg := dispatch.Config{
		Profile:    cfg.Profile,
		Evaluator:  policy.NewEvaluator(policy.DefaultRules()...),
		Registry:   registry,
		Snapshots:  snapshots,
		Board:      deps.Board,
		MaxGames:   cfg.MaxConcurrentGames,
		AbortGrace: cfg.AbortGrace,
		Logger:     logger,
	}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := store.NewResultRepository(cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("init result repository: %w", err))
		}
		deps.closers = append(deps.closers, repo.Close)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("ensure schema: %w", err))
		}
		dcfg.Results = repo
	}

	// Engine (optional: without it every move comes from the book or the random fallback)
	if strings.TrimSpace(cfg.StockfishPath) != "" {
		pool, err := uci.NewPool(uci.PoolConfig{
			BinaryPath: cfg.StockfishPath,
			Capacity:   cfg.EngineCapacity,
			Options:    uci.Options{Values: cfg.Profile.SearchOptions},
		})
		if err != nil {
			return fail(fmt.Errorf("init engine pool: %w", err))
		}
		deps.closers = append(deps.closers, pool.Close)
		dcfg.Launcher = dispatch.PoolLauncher{Pool: pool, Logger: logger}
	} else {
		logger.Warn("engine_not_configured")
	}

	// Opening repertoire
	bookPath, err := openingbook.ResolveBookPath(cfg.Profile.BookPath)
	if err != nil {
		return fail(err)
	}
	if bookPath != "" {
		book, err := openingbook.Load(bookPath)
		if err != nil {
			return fail(fmt.Errorf("load opening book: %w", err))
		}
		deps.Book = book
		logger.Info("opening_book_loaded", zap.String("path", bookPath), zap.Int("positions", book.Len()), zap.Bool("polyglot", book.HasPolyglot()))
	}
	dcfg.Selector = chess.NewSelector(chess.SelectorConfig{
		Book:         deps.Book,
		MaxBookDepth: cfg.Profile.MaxBookDepth,
		Mixedness:    cfg.Profile.BookMixedness,
		Logger:       logger,
	})

	deps.Client = lichess.NewClient(cfg.LichessBaseURL, cfg.LichessToken, lichess.WithLogger(logger))
	dcfg.API = dispatch.ClientAPI{Client: deps.Client}
	deps.Dispatcher = dispatch.New(dcfg)

	if strings.TrimSpace(cfg.StatusAddr) != "" {
		deps.Status = status.NewServer(deps.Board, snapshots, logger)
	}
	return deps, nil
}

// parseRedisURL accepts redis:// and rediss:// URLs; rediss enables TLS.
func parseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return opts, nil
}
