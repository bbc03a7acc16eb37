package lichess

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

func drain[T any](t *testing.T, payload string) []T {
	t.Helper()
	s := newStream[T]()
	go s.pump(strings.NewReader(payload), zap.NewNop())
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var out []T
	for {
		v, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, v)
	}
}

func TestEventStreamSkipsKeepAliveAndGarbage(t *testing.T) {
	payload := "\n" +
		`{"type":"challenge","challenge":{"id":"c1","variant":{"key":"standard"},"speed":"blitz","rated":false,"challenger":{"id":"alice","name":"Alice"}}}` + "\n" +
		"\n\n" +
		"{not json\n" +
		`{"type":"gameStart","game":{"gameId":"g1","id":"g1"}}` + "\n" +
		`{"type":"gameFinish","game":{"id":"g1"}}` + "\n"

	events := drain[Event](t, payload)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	ch := events[0].Challenge.Domain()
	if ch.ID != "c1" || ch.VariantKey != "standard" || ch.Speed != domain.SpeedBlitz || ch.Rated || ch.ChallengerID != "alice" {
		t.Fatalf("unexpected challenge %+v", ch)
	}
	if events[1].Type != EventGameStart || events[1].Game.Key() != "g1" {
		t.Fatalf("unexpected game start %+v", events[1])
	}
	if (GameRef{ID: "legacy"}).Key() != "legacy" {
		t.Fatalf("game ref must fall back to id")
	}
}

func TestGameStreamShapes(t *testing.T) {
	payload := `{"type":"gameFull","id":"g1","white":{"id":"alice","name":"Alice"},"black":{"aiLevel":3},"state":{"type":"gameState","moves":"e2e4","wtime":180000,"btime":180000,"winc":2000,"binc":2000,"status":"started"}}` + "\n" +
		`{"type":"gameState","moves":"e2e4 e7e5","wtime":178000,"btime":179000,"winc":2000,"binc":2000,"status":"started"}` + "\n" +
		`{"type":"chatLine","username":"alice","text":"hi","room":"player"}` + "\n"

	events := drain[GameEvent](t, payload)
	if len(events) != 3 {
		t.Fatalf("expected 3 game events, got %d", len(events))
	}

	full, ok := events[0].CurrentState()
	if !ok || full.Moves != "e2e4" || full.Clock().WInc != 2000 {
		t.Fatalf("unexpected full state %+v ok=%v", full, ok)
	}
	if events[0].Black.Identity() != "Stockfish AI level 3" || !events[0].White.Is("alice") {
		t.Fatalf("unexpected players %+v %+v", events[0].White, events[0].Black)
	}

	state, ok := events[1].CurrentState()
	if !ok || state.Moves != "e2e4 e7e5" || state.Clock().WTime != 178000 || !state.GameStatus().Ongoing() {
		t.Fatalf("unexpected state %+v", state)
	}

	if _, ok := events[2].CurrentState(); ok {
		t.Fatalf("chat line must not carry a state")
	}
}

func TestStreamCloseUnblocksNext(t *testing.T) {
	s := newStream[Event]()
	pr, pw := io.Pipe()
	defer pw.Close()
	go s.pump(pr, zap.NewNop())

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.Close()
	}()
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestClosedStreamStopsOnKeepAlive(t *testing.T) {
	s := newStream[Event]()
	pr, pw := io.Pipe()
	defer pw.Close()
	exited := make(chan struct{})
	go func() {
		s.pump(pr, zap.NewNop())
		close(exited)
	}()

	_ = s.Close()
	if _, err := pw.Write([]byte("\n")); err != nil {
		t.Fatalf("write keep-alive: %v", err)
	}
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatalf("pump kept reading keep-alives after Close")
	}
}
