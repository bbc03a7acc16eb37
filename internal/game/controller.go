package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-lichess-bot/internal/chess"
	"github.com/park285/cheese-lichess-bot/internal/chess/uci"
	"github.com/park285/cheese-lichess-bot/internal/domain"
	"github.com/park285/cheese-lichess-bot/internal/lichess"
	"github.com/park285/cheese-lichess-bot/internal/ponder"
	"github.com/park285/cheese-lichess-bot/internal/status"
	"github.com/park285/cheese-lichess-bot/internal/store"
)

const (
	DefaultAbortGrace = 30 * time.Second
	apiCallTimeout    = 10 * time.Second
	engineStopTimeout = 3 * time.Second
)

type Config struct {
	GameID   string
	Profile  *domain.BotProfile
	Selector *chess.Selector
	API      MoveSubmitter
	Stream   Stream
	// Engine is optional; without one moves come from the book or at random.
	Engine    Engine
	Board     *status.Board
	Snapshots store.Snapshots
	Results   ResultSink
	// AbortGrace bounds the wait for the opponent's first move.
	AbortGrace time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

// Controller drives one game. It is not safe for concurrent use; Run owns it.
type Controller struct {
	cfg     Config
	session *Session
	tracker *ponder.Tracker
	logger  *zap.Logger

	abortTimer  *time.Timer
	progressed  atomic.Bool
	resultSaved bool
}

func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AbortGrace <= 0 {
		cfg.AbortGrace = DefaultAbortGrace
	}
	if cfg.Selector == nil {
		cfg.Selector = chess.NewSelector(chess.SelectorConfig{Logger: cfg.Logger})
	}
	runID := uuid.NewString()
	return &Controller{
		cfg:     cfg,
		session: newSession(cfg.GameID, runID),
		tracker: ponder.NewTracker(),
		logger:  cfg.Logger.With(zap.String("game_id", cfg.GameID), zap.String("run_id", runID)),
	}
}

// Session exposes the game state; read it only after Run returns.
func (c *Controller) Session() *Session {
	return c.session
}

// Run consumes the stream until it ends. A position-integrity error ends the
// session early and is returned; every other failure is logged.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("game_session_started")
	c.armAbortTimer()
	defer c.shutdown()

	for {
		ev, err := c.cfg.Stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			c.logger.Info("game_stream_ended")
			return nil
		}
		if err != nil {
			return fmt.Errorf("game stream: %w", err)
		}
		if err := c.handle(ctx, ev); err != nil {
			c.logger.Error("game_position_untrusted", zap.Error(err))
			return err
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev lichess.GameEvent) error {
	switch ev.Type {
	case lichess.GameFull:
		c.assignColor(ev)
		if err := c.assignStart(ev.InitialFen); err != nil {
			return err
		}
		state, ok := ev.CurrentState()
		if !ok {
			c.logger.Warn("game_full_without_state")
			return nil
		}
		return c.handleState(ctx, state)
	case lichess.GameStateMsg:
		if !c.session.colorSet {
			c.logger.Warn("game_state_before_full")
			return nil
		}
		state, _ := ev.CurrentState()
		return c.handleState(ctx, state)
	case lichess.ChatLine:
		c.logger.Debug("game_chat", zap.String("user", ev.Username), zap.String("text", ev.Text))
	case lichess.OpponentGone:
		c.logger.Info("game_opponent_gone", zap.Bool("gone", ev.Gone))
	default:
		c.logger.Debug("game_event_ignored", zap.String("type", ev.Type))
	}
	return nil
}

func (c *Controller) assignColor(ev lichess.GameEvent) {
	name := ""
	if c.cfg.Profile != nil {
		name = c.cfg.Profile.Name
	}
	s := c.session
	if ev.Black.Is(name) {
		s.Color = domain.Black
		s.Opponent = ev.White.Identity()
	} else {
		s.Color = domain.White
		s.Opponent = ev.Black.Identity()
	}
	s.colorSet = true
	s.started = c.cfg.Now()
	c.logger.Info("game_color_assigned", zap.String("color", string(s.Color)), zap.String("opponent", s.Opponent))
}

// assignStart records a non-standard initial position. A gameFull repeated
// after moves were played keeps the recorded history.
func (c *Controller) assignStart(fen string) error {
	start, err := chess.FromFEN(fen)
	if err != nil {
		return err
	}
	s := c.session
	if start.StartFEN() == s.InitialFEN {
		return nil
	}
	s.InitialFEN = start.StartFEN()
	s.Position = start
	c.logger.Info("game_initial_position", zap.String("fen", s.InitialFEN))
	return nil
}

func (c *Controller) handleState(ctx context.Context, st lichess.GameState) error {
	received := c.cfg.Now()
	s := c.session

	moves := chess.ParseMoves(st.Moves)
	if len(moves) < s.Position.Ply() {
		c.logger.Warn("game_history_shrunk", zap.Int("have", s.Position.Ply()), zap.Int("got", len(moves)))
		return nil
	}
	pos, err := chess.ReplayFrom(s.InitialFEN, moves)
	if err != nil {
		return err
	}

	s.Position = pos
	s.Clock = st.Clock()
	s.Status = st.GameStatus()
	c.observeProgress(pos)
	c.cfg.Board.SetPosition(s.GameID, pos.Key())
	defer c.saveSnapshot(ctx)

	if !s.Status.Ongoing() {
		c.finish(ctx, st)
		return nil
	}
	if !s.BotToMove() || pos.Ply() <= s.lastPlied {
		return nil
	}
	c.decide(ctx, received)
	return nil
}

func (c *Controller) decide(ctx context.Context, received time.Time) {
	s := c.session
	pos := s.Position
	s.lastPlied = pos.Ply()

	outcome := ponder.Idle
	if moves := pos.Moves(); len(moves) > 0 {
		outcome = c.tracker.Observe(moves[len(moves)-1])
	}

	c.cfg.Board.SetThinking(true)
	choice := c.cfg.Selector.Select(ctx, chess.SelectRequest{
		Position: pos,
		Clock:    s.Clock,
		Color:    s.Color,
		Searcher: c.searcher(),
		Ponder:   outcome,
	})
	c.cfg.Board.SetThinking(false)
	c.tracker.Settle()

	if choice.Source == chess.SourceNone {
		c.logger.Info("game_no_legal_moves", zap.Int("ply", pos.Ply()))
		return
	}

	if err := c.submit(ctx, choice.Move); err != nil {
		// a later update at the same ply may retry
		s.lastPlied = -1
		c.logger.Warn("game_move_submit_failed", zap.String("move", choice.Move), zap.Error(err))
		return
	}
	elapsed := c.cfg.Now().Sub(received)
	c.logger.Info("game_move_submitted",
		zap.String("move", choice.Move),
		zap.String("source", choice.Source.String()),
		zap.String("ponder", outcome.String()),
		zap.Int("ply", pos.Ply()),
		zap.Duration("elapsed", elapsed),
	)

	if choice.PredictedReply != "" && c.cfg.Engine != nil {
		c.startPonder(ctx, pos, choice, elapsed)
	}
}

func (c *Controller) submit(ctx context.Context, move string) error {
	callCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()
	return c.cfg.API.MakeMove(callCtx, c.session.GameID, move, false)
}

// startPonder searches the position after the bot's move and the predicted
// reply, on a clock reduced by the time this decision took.
func (c *Controller) startPonder(ctx context.Context, pos chess.Position, choice chess.Choice, elapsed time.Duration) {
	afterOwn, err := pos.Push(choice.Move)
	if err != nil {
		return
	}
	predicted, err := afterOwn.Push(choice.PredictedReply)
	if err != nil {
		c.logger.Debug("ponder_prediction_illegal", zap.String("predicted", choice.PredictedReply))
		return
	}
	req := uci.SearchRequest{
		FEN:   predicted.StartFEN(),
		Moves: predicted.Moves(),
		Clock: chess.PonderClock(c.session.Clock, elapsed),
	}
	if err := c.cfg.Engine.Ponder(ctx, req); err != nil {
		c.logger.Warn("ponder_start_failed", zap.Error(err))
		return
	}
	if err := c.tracker.Start(choice.PredictedReply); err != nil {
		c.logger.Warn("ponder_track_failed", zap.Error(err))
		c.stopEngine()
		return
	}
	c.logger.Debug("ponder_started", zap.String("predicted", choice.PredictedReply))
}

func (c *Controller) searcher() chess.Searcher {
	if c.cfg.Engine == nil {
		return nil
	}
	return c.cfg.Engine
}

// finish handles a terminal or administrative status. It is informational:
// the loop keeps reading until the stream ends.
func (c *Controller) finish(ctx context.Context, st lichess.GameState) {
	c.stopAbortTimer()
	if c.tracker.Abandon() {
		c.stopEngine()
	}
	if c.resultSaved {
		return
	}
	c.resultSaved = true
	s := c.session
	c.logger.Info("game_finished", zap.String("status", string(s.Status)), zap.String("winner", st.Winner), zap.Int("plies", s.Position.Ply()))

	if c.cfg.Results == nil {
		return
	}
	name := ""
	if c.cfg.Profile != nil {
		name = c.cfg.Profile.Name
	}
	res := &store.GameResult{
		GameID:    s.GameID,
		BotName:   name,
		BotColor:  s.Color,
		Opponent:  s.Opponent,
		Status:    s.Status,
		Winner:    st.Winner,
		MovesUCI:  s.Position.Moves(),
		StartedAt: s.started,
		EndedAt:   c.cfg.Now(),
	}
	saveCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()
	if err := c.cfg.Results.SaveResult(saveCtx, res); err != nil {
		c.logger.Warn("game_result_save_failed", zap.Error(err))
	}
}

func (c *Controller) saveSnapshot(ctx context.Context) {
	if c.cfg.Snapshots == nil {
		return
	}
	if err := c.cfg.Snapshots.Save(ctx, c.session.snapshot(c.tracker.Pending(), c.cfg.Now())); err != nil {
		c.logger.Warn("game_snapshot_save_failed", zap.Error(err))
	}
}

// observeProgress cancels the abort timer once the opponent has moved.
func (c *Controller) observeProgress(pos chess.Position) {
	if c.progressed.Load() || !c.session.colorSet {
		return
	}
	firstMover := pos.Turn()
	if pos.Ply()%2 == 1 {
		firstMover = firstMover.Opposite()
	}
	opponentMoved := pos.Ply() >= 2 || (pos.Ply() == 1 && firstMover != c.session.Color)
	if !opponentMoved {
		return
	}
	c.progressed.Store(true)
	c.stopAbortTimer()
}

func (c *Controller) armAbortTimer() {
	c.abortTimer = time.AfterFunc(c.cfg.AbortGrace, func() {
		if c.progressed.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
		defer cancel()
		if err := c.cfg.API.AbortGame(ctx, c.cfg.GameID); err != nil {
			c.logger.Warn("game_abort_failed", zap.Error(err))
			return
		}
		c.logger.Info("game_aborted_no_progress", zap.Duration("grace", c.cfg.AbortGrace))
	})
}

func (c *Controller) stopAbortTimer() {
	if c.abortTimer != nil {
		c.abortTimer.Stop()
	}
}

func (c *Controller) stopEngine() {
	if c.cfg.Engine == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), engineStopTimeout)
	defer cancel()
	if err := c.cfg.Engine.Stop(ctx); err != nil {
		c.logger.Debug("engine_stop_failed", zap.Error(err))
	}
}

// shutdown stops then quits the engine; nothing may use it afterwards.
func (c *Controller) shutdown() {
	c.stopAbortTimer()
	c.tracker.Abandon()
	c.cfg.Board.SetThinking(false)
	if c.cfg.Engine != nil {
		c.stopEngine()
		ctx, cancel := context.WithTimeout(context.Background(), engineStopTimeout)
		defer cancel()
		if err := c.cfg.Engine.Quit(ctx); err != nil {
			c.logger.Warn("engine_quit_failed", zap.Error(err))
		}
	}
	c.logger.Info("game_session_closed", zap.Int("plies", c.session.Position.Ply()))
}
