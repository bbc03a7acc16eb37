// Package dispatch consumes the account event stream: it answers challenges
// and starts one game session per started game.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-lichess-bot/internal/chess"
	"github.com/park285/cheese-lichess-bot/internal/domain"
	"github.com/park285/cheese-lichess-bot/internal/game"
	"github.com/park285/cheese-lichess-bot/internal/lichess"
	"github.com/park285/cheese-lichess-bot/internal/policy"
	"github.com/park285/cheese-lichess-bot/internal/status"
	"github.com/park285/cheese-lichess-bot/internal/store"
)

const (
	DefaultMaxGames = 4
	responseTimeout = 10 * time.Second
	// pendingTTL bounds how long an accepted challenge holds a game slot
	// while its gameStart is outstanding.
	pendingTTL = 30 * time.Second
)

// ErrEventStreamEnded is returned when the server closes the account stream.
var ErrEventStreamEnded = errors.New("event stream ended")

type EventStream interface {
	Next(ctx context.Context) (lichess.Event, error)
	Close() error
}

// API is the part of the service the dispatcher and its sessions call.
type API interface {
	game.MoveSubmitter
	AcceptChallenge(ctx context.Context, id string) error
	DeclineChallenge(ctx context.Context, id string, reason domain.DeclineCode) error
	OpenGame(ctx context.Context, gameID string) (game.Stream, error)
}

// EngineLauncher starts a search process for one game. release must be
// called once the session is over.
type EngineLauncher interface {
	Launch(ctx context.Context) (engine game.Engine, release func(), err error)
}

type Config struct {
	Profile   *domain.BotProfile
	API       API
	Evaluator *policy.Evaluator
	Selector  *chess.Selector
	Launcher  EngineLauncher
	Registry  store.Registry
	Snapshots store.Snapshots
	Results   game.ResultSink
	Board     *status.Board
	MaxGames  int
	// AbortGrace is handed to each session's abort timer.
	AbortGrace time.Duration
	Logger     *zap.Logger
}

type Dispatcher struct {
	cfg    Config
	logger *zap.Logger
	owner  string

	mu      sync.Mutex
	active  map[string]struct{}
	// pending holds accepted challenges whose game has not started yet.
	pending map[string]time.Time
	now     func() time.Time

	sessions sync.WaitGroup
	replies  sync.WaitGroup
}

func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = policy.NewEvaluator(policy.DefaultRules()...)
	}
	if cfg.Registry == nil {
		cfg.Registry = store.NewMemoryRegistry()
	}
	if cfg.MaxGames <= 0 {
		cfg.MaxGames = DefaultMaxGames
	}
	if cfg.Profile == nil {
		cfg.Profile = &domain.BotProfile{}
	}
	return &Dispatcher{
		cfg:     cfg,
		logger:  cfg.Logger,
		owner:   uuid.NewString(),
		active:  make(map[string]struct{}),
		pending: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Run reads events until ctx is cancelled or the stream fails. Sessions
// already started keep running; use Wait to join them.
func (d *Dispatcher) Run(ctx context.Context, events EventStream) error {
	d.cfg.Board.SetStreaming(true)
	defer d.cfg.Board.SetStreaming(false)
	d.logger.Info("event_stream_started", zap.String("owner", d.owner))

	for {
		ev, err := events.Next(ctx)
		if ctx.Err() != nil {
			d.logger.Info("event_stream_stopped")
			return nil
		}
		if errors.Is(err, io.EOF) {
			return ErrEventStreamEnded
		}
		if err != nil {
			return fmt.Errorf("event stream: %w", err)
		}
		d.route(ctx, ev)
	}
}

// Wait blocks until every session and pending challenge reply has finished.
func (d *Dispatcher) Wait() {
	d.replies.Wait()
	d.sessions.Wait()
}

// Active is the number of live sessions.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// load counts live sessions plus accepted challenges still waiting for
// their gameStart. Expired reservations are dropped.
func (d *Dispatcher) load() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for id, at := range d.pending {
		if now.Sub(at) > pendingTTL {
			delete(d.pending, id)
		}
	}
	return len(d.active) + len(d.pending)
}

func (d *Dispatcher) reserve(challengeID string) {
	d.mu.Lock()
	d.pending[challengeID] = d.now()
	d.mu.Unlock()
}

// settleReservation releases the slot held for gameID. A challenge keeps its
// id as the game id; otherwise the oldest reservation is released.
func (d *Dispatcher) settleReservation(gameID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[gameID]; ok {
		delete(d.pending, gameID)
		return
	}
	oldest := ""
	var oldestAt time.Time
	for id, at := range d.pending {
		if oldest == "" || at.Before(oldestAt) {
			oldest, oldestAt = id, at
		}
	}
	if oldest != "" {
		delete(d.pending, oldest)
	}
}

func (d *Dispatcher) route(ctx context.Context, ev lichess.Event) {
	switch ev.Type {
	case lichess.EventChallenge:
		if ev.Challenge == nil {
			d.logger.Warn("challenge_event_without_challenge")
			return
		}
		d.handleChallenge(ctx, *ev.Challenge)
	case lichess.EventGameStart:
		if ev.Game == nil || ev.Game.Key() == "" {
			d.logger.Warn("game_start_without_id")
			return
		}
		d.startGame(ctx, ev.Game.Key())
	default:
		d.logger.Debug("event_ignored", zap.String("type", ev.Type))
	}
}

func (d *Dispatcher) handleChallenge(ctx context.Context, wire lichess.Challenge) {
	if d.isSelf(wire.Challenger) {
		d.logger.Debug("challenge_own_ignored", zap.String("challenge_id", wire.ID))
		return
	}

	c := wire.Domain()
	decision := d.cfg.Evaluator.Evaluate(c, d.cfg.Profile).ChallengeDecision
	if decision.Accept && d.load() >= d.cfg.MaxGames {
		decision = domain.ChallengeDecision{
			Accept:      false,
			Reasons:     []string{fmt.Sprintf("already playing %d games", d.cfg.MaxGames)},
			DeclineCode: domain.DeclineGeneric,
		}
	}

	fields := []zap.Field{
		zap.String("challenge_id", c.ID),
		zap.String("variant", c.VariantKey),
		zap.String("speed", string(c.Speed)),
		zap.Bool("rated", c.Rated),
	}
	if decision.Accept {
		callCtx, cancel := context.WithTimeout(ctx, responseTimeout)
		defer cancel()
		if err := d.cfg.API.AcceptChallenge(callCtx, c.ID); err != nil {
			d.logger.Warn("challenge_accept_failed", append(fields, zap.Error(err))...)
			return
		}
		d.reserve(c.ID)
		d.logger.Info("challenge_accepted", fields...)
		return
	}

	d.logger.Info("challenge_declined", append(fields,
		zap.String("code", string(decision.DeclineCode)),
		zap.String("reasons", strings.Join(decision.Reasons, "; ")),
	)...)
	d.replies.Add(1)
	go func() {
		defer d.replies.Done()
		callCtx, cancel := context.WithTimeout(context.Background(), responseTimeout)
		defer cancel()
		if err := d.cfg.API.DeclineChallenge(callCtx, c.ID, decision.DeclineCode); err != nil {
			d.logger.Warn("challenge_decline_failed", zap.String("challenge_id", c.ID), zap.Error(err))
		}
	}()
}

func (d *Dispatcher) isSelf(u *lichess.User) bool {
	if u == nil || d.cfg.Profile.Name == "" {
		return false
	}
	return strings.EqualFold(u.ID, d.cfg.Profile.Name) || strings.EqualFold(u.Name, d.cfg.Profile.Name)
}

func (d *Dispatcher) startGame(ctx context.Context, gameID string) {
	if err := d.cfg.Registry.Claim(ctx, gameID, d.owner); err != nil {
		if errors.Is(err, store.ErrSessionClaimed) {
			d.logger.Info("game_start_duplicate", zap.String("game_id", gameID))
		} else {
			d.logger.Warn("game_claim_failed", zap.String("game_id", gameID), zap.Error(err))
		}
		return
	}

	d.settleReservation(gameID)
	d.mu.Lock()
	d.active[gameID] = struct{}{}
	d.mu.Unlock()
	d.cfg.Board.AddGames(1)

	d.sessions.Add(1)
	// Sessions outlive the event loop: they get their own context.
	go d.runSession(context.WithoutCancel(ctx), gameID)
}

func (d *Dispatcher) runSession(ctx context.Context, gameID string) {
	logger := d.logger.With(zap.String("game_id", gameID))
	defer func() {
		if err := d.cfg.Registry.Release(context.Background(), gameID, d.owner); err != nil {
			logger.Warn("game_claim_release_failed", zap.Error(err))
		}
		d.mu.Lock()
		delete(d.active, gameID)
		d.mu.Unlock()
		d.cfg.Board.AddGames(-1)
		d.sessions.Done()
	}()

	stream, err := d.cfg.API.OpenGame(ctx, gameID)
	if err != nil {
		logger.Warn("game_stream_open_failed", zap.Error(err))
		return
	}
	defer stream.Close()

	var engine game.Engine
	if d.cfg.Launcher != nil {
		eng, release, err := d.cfg.Launcher.Launch(ctx)
		if err != nil {
			logger.Warn("engine_launch_failed", zap.Error(err))
		} else {
			engine = eng
			defer release()
		}
	}

	ctrl := game.NewController(game.Config{
		GameID:     gameID,
		Profile:    d.cfg.Profile,
		Selector:   d.cfg.Selector,
		API:        d.cfg.API,
		Stream:     stream,
		Engine:     engine,
		Board:      d.cfg.Board,
		Snapshots:  d.cfg.Snapshots,
		Results:    d.cfg.Results,
		AbortGrace: d.cfg.AbortGrace,
		Logger:     d.logger,
	})
	if err := ctrl.Run(ctx); err != nil {
		logger.Warn("game_session_failed", zap.Error(err))
	}
}
