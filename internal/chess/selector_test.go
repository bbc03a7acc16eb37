package chess

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/cheese-lichess-bot/internal/chess/openingbook"
	"github.com/park285/cheese-lichess-bot/internal/chess/uci"
	"github.com/park285/cheese-lichess-bot/internal/domain"
	"github.com/park285/cheese-lichess-bot/internal/ponder"
)

type fakeSearcher struct {
	resp      uci.SearchResponse
	err       error
	searches  int
	hits      int
	misses    int
	lastMoves []string
}

func (f *fakeSearcher) Search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error) {
	f.searches++
	f.lastMoves = req.Moves
	return f.resp, f.err
}

func (f *fakeSearcher) PonderHit(ctx context.Context, window time.Duration) (uci.SearchResponse, error) {
	f.hits++
	return f.resp, f.err
}

func (f *fakeSearcher) PonderMiss(ctx context.Context) error {
	f.misses++
	return nil
}

func mustReplay(t *testing.T, moves string) Position {
	t.Helper()
	pos, err := Replay(ParseMoves(moves))
	if err != nil {
		t.Fatalf("Replay(%q): %v", moves, err)
	}
	return pos
}

var blitz = domain.Clock{WTime: 180000, BTime: 180000, WInc: 2000, BInc: 2000}

func TestSelectFallsBackToLegalMoveWhenSearchFails(t *testing.T) {
	sel := NewSelector(SelectorConfig{Seed: 1, MaxBookDepth: 20})
	pos := mustReplay(t, "e2e4 e7e5")
	searcher := &fakeSearcher{err: errors.New("read bestmove: context deadline exceeded")}

	choice := sel.Select(context.Background(), SelectRequest{Position: pos, Clock: blitz, Color: domain.White, Searcher: searcher})
	if choice.Source != SourceRandom {
		t.Fatalf("expected random fallback, got %s", choice.Source)
	}
	if !pos.IsLegal(choice.Move) {
		t.Fatalf("fallback move %q is not legal", choice.Move)
	}
	if searcher.searches != 1 {
		t.Fatalf("expected one search, got %d", searcher.searches)
	}
}

func TestSelectRejectsIllegalBestMove(t *testing.T) {
	sel := NewSelector(SelectorConfig{Seed: 2})
	pos := StartPosition()
	choice := sel.Select(context.Background(), SelectRequest{
		Position: pos, Clock: blitz, Color: domain.White,
		Searcher: &fakeSearcher{resp: uci.SearchResponse{BestMove: "e2e5"}},
	})
	if choice.Source != SourceRandom || !pos.IsLegal(choice.Move) {
		t.Fatalf("expected legal random fallback, got %+v", choice)
	}
}

func TestSelectUsesSearchAndPrediction(t *testing.T) {
	sel := NewSelector(SelectorConfig{Seed: 3})
	searcher := &fakeSearcher{resp: uci.SearchResponse{BestMove: "e2e4", PonderMove: "e7e5"}}
	choice := sel.Select(context.Background(), SelectRequest{Position: StartPosition(), Clock: blitz, Color: domain.White, Searcher: searcher})
	if choice.Source != SourceSearch || choice.Move != "e2e4" || choice.PredictedReply != "e7e5" {
		t.Fatalf("unexpected choice %+v", choice)
	}

	searcher.resp = uci.SearchResponse{BestMove: "e2e4", PonderMove: "e2e4"}
	choice = sel.Select(context.Background(), SelectRequest{Position: StartPosition(), Clock: blitz, Color: domain.White, Searcher: searcher})
	if choice.PredictedReply != "" {
		t.Fatalf("illegal prediction must be dropped, got %q", choice.PredictedReply)
	}
}

func TestSelectReconcilesPonderOutcome(t *testing.T) {
	sel := NewSelector(SelectorConfig{Seed: 4})
	pos := mustReplay(t, "e2e4 e7e5")
	searcher := &fakeSearcher{resp: uci.SearchResponse{BestMove: "g1f3"}}

	sel.Select(context.Background(), SelectRequest{Position: pos, Clock: blitz, Color: domain.White, Searcher: searcher, Ponder: ponder.Hit})
	if searcher.hits != 1 || searcher.searches != 0 || searcher.misses != 0 {
		t.Fatalf("hit must not restart search: %+v", searcher)
	}

	sel.Select(context.Background(), SelectRequest{Position: pos, Clock: blitz, Color: domain.White, Searcher: searcher, Ponder: ponder.Miss})
	if searcher.misses != 1 || searcher.searches != 1 {
		t.Fatalf("miss must stop and search again: %+v", searcher)
	}
	if len(searcher.lastMoves) != 2 {
		t.Fatalf("search must run on the true position, got %v", searcher.lastMoves)
	}
}

func TestSelectBookBoundedByDepth(t *testing.T) {
	pos := mustReplay(t, "e2e4 e7e5 g1f3")
	book := openingbook.FromEntries([]openingbook.Entry{{
		PositionKey: pos.Key(),
		Candidates:  []openingbook.Candidate{{Move: "b8c6", Weight: 10}},
	}})
	searcher := &fakeSearcher{resp: uci.SearchResponse{BestMove: "g8f6"}}

	shallow := NewSelector(SelectorConfig{Book: book, MaxBookDepth: 2, Mixedness: 100, Seed: 5})
	choice := shallow.Select(context.Background(), SelectRequest{Position: pos, Clock: blitz, Color: domain.Black, Searcher: searcher})
	if choice.Source != SourceSearch || choice.Move != "g8f6" {
		t.Fatalf("book must not be consulted past depth 2, got %+v", choice)
	}

	deep := NewSelector(SelectorConfig{Book: book, MaxBookDepth: 3, Mixedness: 100, Seed: 5})
	choice = deep.Select(context.Background(), SelectRequest{Position: pos, Clock: blitz, Color: domain.Black, Searcher: searcher})
	if choice.Source != SourceBook || choice.Move != "b8c6" {
		t.Fatalf("expected book move within depth, got %+v", choice)
	}
	if searcher.searches != 1 {
		t.Fatalf("book move must not search, searches=%d", searcher.searches)
	}
}

func TestSelectWithoutLegalMoves(t *testing.T) {
	sel := NewSelector(SelectorConfig{Seed: 6})
	// fool's mate
	pos := mustReplay(t, "f2f3 e7e5 g2g4 d8h4")
	if choice := sel.Select(context.Background(), SelectRequest{Position: pos, Clock: blitz, Color: domain.White}); choice.Source != SourceNone {
		t.Fatalf("expected no move in a mated position, got %+v", choice)
	}
}

func TestSelectWithoutSearcherUsesRandom(t *testing.T) {
	sel := NewSelector(SelectorConfig{Seed: 7})
	choice := sel.Select(context.Background(), SelectRequest{Position: StartPosition(), Clock: blitz, Color: domain.White})
	if choice.Source != SourceRandom || !StartPosition().IsLegal(choice.Move) {
		t.Fatalf("unexpected choice %+v", choice)
	}
}
