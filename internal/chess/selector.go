package chess

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-lichess-bot/internal/chess/openingbook"
	"github.com/park285/cheese-lichess-bot/internal/chess/uci"
	"github.com/park285/cheese-lichess-bot/internal/domain"
	"github.com/park285/cheese-lichess-bot/internal/ponder"
)

// Source tags where a chosen move came from. Precedence is Book, then
// Search, then Random.
type Source int

const (
	SourceNone Source = iota
	SourceBook
	SourceSearch
	SourceRandom
)

func (s Source) String() string {
	switch s {
	case SourceBook:
		return "book"
	case SourceSearch:
		return "search"
	case SourceRandom:
		return "random"
	default:
		return "none"
	}
}

type Choice struct {
	Source         Source
	Move           string
	PredictedReply string
}

// Searcher is the slice of an engine session the selector drives.
type Searcher interface {
	Search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error)
	PonderHit(ctx context.Context, window time.Duration) (uci.SearchResponse, error)
	PonderMiss(ctx context.Context) error
}

type SelectorConfig struct {
	Book         *openingbook.Book
	MaxBookDepth int
	Mixedness    int
	Seed         int64
	Logger       *zap.Logger
}

type Selector struct {
	book         *openingbook.Book
	maxBookDepth int
	mixedness    int
	logger       *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewSelector(cfg SelectorConfig) *Selector {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		book:         cfg.Book,
		maxBookDepth: cfg.MaxBookDepth,
		mixedness:    cfg.Mixedness,
		logger:       logger,
		rand:         rand.New(rand.NewSource(seed)),
	}
}

type SelectRequest struct {
	Position Position
	Clock    domain.Clock
	Color    domain.Color
	// Searcher is nil when no engine is configured.
	Searcher Searcher
	// Ponder is the reconciled outcome for this cycle: Hit or Miss when the
	// engine is still running a speculative search.
	Ponder ponder.State
}

// Select always yields a legal move unless the position has none, in which
// case the choice is SourceNone.
func (s *Selector) Select(ctx context.Context, req SelectRequest) Choice {
	legal := req.Position.LegalMoves()
	if len(legal) == 0 {
		s.discardPonder(ctx, req)
		return Choice{Source: SourceNone}
	}
	r := s.random()
	fallback := Choice{Source: SourceRandom, Move: legal[r.Intn(len(legal))]}

	if choice, ok := s.fromBook(req.Position, r); ok {
		s.discardPonder(ctx, req)
		return choice
	}

	if req.Searcher == nil {
		return fallback
	}
	if choice, ok := s.fromSearch(ctx, req); ok {
		return choice
	}
	return fallback
}

func (s *Selector) fromBook(pos Position, r *rand.Rand) (Choice, bool) {
	if s.book == nil || s.maxBookDepth < 0 || pos.Ply() > s.maxBookDepth {
		return Choice{}, false
	}
	cand, ok, err := s.book.Pick(pos.FEN(), s.mixedness, r)
	if err != nil {
		s.logger.Warn("book_lookup_failed", zap.Int("ply", pos.Ply()), zap.Error(err))
		return Choice{}, false
	}
	if !ok {
		return Choice{}, false
	}
	next, err := pos.Push(cand.Move)
	if err != nil {
		s.logger.Warn("book_move_illegal", zap.String("move", cand.Move), zap.Error(err))
		return Choice{}, false
	}
	code, title := openingbook.Label(next.Game())
	s.logger.Info("book_move_selected",
		zap.String("move", cand.Move),
		zap.Int("weight", cand.Weight),
		zap.String("eco", code),
		zap.String("opening", title),
	)
	return Choice{Source: SourceBook, Move: cand.Move}, true
}

func (s *Selector) fromSearch(ctx context.Context, req SelectRequest) (Choice, bool) {
	window := SearchWindow(req.Clock, req.Color)

	var (
		resp uci.SearchResponse
		err  error
	)
	switch req.Ponder {
	case ponder.Hit:
		resp, err = req.Searcher.PonderHit(ctx, window)
	case ponder.Miss:
		if merr := req.Searcher.PonderMiss(ctx); merr != nil {
			s.logger.Warn("ponder_miss_failed", zap.Error(merr))
		}
		resp, err = req.Searcher.Search(ctx, s.searchRequest(req, window))
	default:
		resp, err = req.Searcher.Search(ctx, s.searchRequest(req, window))
	}
	if err != nil {
		s.logger.Warn("search_failed",
			zap.String("ponder", req.Ponder.String()),
			zap.Duration("window", window),
			zap.Error(err),
		)
		return Choice{}, false
	}
	if resp.BestMove == "" || !req.Position.IsLegal(resp.BestMove) {
		s.logger.Warn("search_bestmove_unusable", zap.String("move", resp.BestMove))
		return Choice{}, false
	}

	choice := Choice{Source: SourceSearch, Move: resp.BestMove}
	if resp.PonderMove != "" {
		if next, perr := req.Position.Push(resp.BestMove); perr == nil && next.IsLegal(resp.PonderMove) {
			choice.PredictedReply = resp.PonderMove
		}
	}
	return choice, true
}

func (s *Selector) searchRequest(req SelectRequest, window time.Duration) uci.SearchRequest {
	out := uci.SearchRequest{
		FEN:    req.Position.StartFEN(),
		Moves:  req.Position.Moves(),
		Clock:  req.Clock,
		Window: window,
	}
	if req.Clock.WTime <= 0 && req.Clock.BTime <= 0 {
		out.Limits = uci.Limits{MoveTimeMillis: int(window.Milliseconds())}
	}
	return out
}

// discardPonder stops a speculative search whose result will not be used.
func (s *Selector) discardPonder(ctx context.Context, req SelectRequest) {
	if req.Searcher == nil || (req.Ponder != ponder.Hit && req.Ponder != ponder.Miss) {
		return
	}
	if err := req.Searcher.PonderMiss(ctx); err != nil {
		s.logger.Warn("ponder_discard_failed", zap.Error(err))
	}
}

func (s *Selector) random() *rand.Rand {
	s.randMu.Lock()
	seed := s.rand.Int63()
	s.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}
