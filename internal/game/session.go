// Package game runs one lichess game from its state stream: it tracks the
// position and clock, decides moves on the bot's turn and keeps the engine's
// speculative search in step with the opponent.
package game

import (
	"context"
	"time"

	"github.com/park285/cheese-lichess-bot/internal/chess"
	"github.com/park285/cheese-lichess-bot/internal/chess/uci"
	"github.com/park285/cheese-lichess-bot/internal/domain"
	"github.com/park285/cheese-lichess-bot/internal/lichess"
	"github.com/park285/cheese-lichess-bot/internal/store"
)

// MoveSubmitter is the outbound half of the game API.
type MoveSubmitter interface {
	MakeMove(ctx context.Context, gameID, move string, offeringDraw bool) error
	AbortGame(ctx context.Context, gameID string) error
}

// Stream yields game stream lines in arrival order and io.EOF at the end.
type Stream interface {
	Next(ctx context.Context) (lichess.GameEvent, error)
	Close() error
}

// Engine is the search process owned by one session for its whole life.
type Engine interface {
	chess.Searcher
	Ponder(ctx context.Context, req uci.SearchRequest) error
	Stop(ctx context.Context) error
	Quit(ctx context.Context) error
}

type ResultSink interface {
	SaveResult(ctx context.Context, g *store.GameResult) error
}

// Session is the state of one game as last reported by the server.
type Session struct {
	GameID     string
	RunID      string
	Color      domain.Color
	Opponent   string
	// InitialFEN is empty for games from the standard start.
	InitialFEN string
	Clock      domain.Clock
	Position   chess.Position
	Status     domain.GameStatus

	started   time.Time
	colorSet  bool
	lastPlied int
}

func newSession(gameID, runID string) *Session {
	return &Session{
		GameID:    gameID,
		RunID:     runID,
		Position:  chess.StartPosition(),
		lastPlied: -1,
	}
}

// BotToMove reports whether the current position waits on the bot.
func (s *Session) BotToMove() bool {
	return s.colorSet && s.Position.Turn() == s.Color
}

func (s *Session) snapshot(pending string, now time.Time) *store.Snapshot {
	return &store.Snapshot{
		GameID:        s.GameID,
		RunID:         s.RunID,
		Color:         s.Color,
		Moves:         s.Position.Moves(),
		PositionKey:   s.Position.Key(),
		Clock:         s.Clock,
		Status:        s.Status,
		PendingPonder: pending,
		UpdatedAt:     now,
	}
}
