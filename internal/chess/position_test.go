package chess

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestReplayMatchesIncrementalPush(t *testing.T) {
	history := ParseMoves("e2e4 e7e5 g1f3 b8c6 f1b5 a7a6 b5a4 g8f6 e1g1")
	incremental := StartPosition()
	for i := 0; i <= len(history); i++ {
		replayed, err := Replay(history[:i])
		if err != nil {
			t.Fatalf("Replay(%d): %v", i, err)
		}
		if replayed.Key() != incremental.Key() {
			t.Fatalf("ply %d: replay key %q != incremental key %q", i, replayed.Key(), incremental.Key())
		}
		if replayed.Ply() != i {
			t.Fatalf("ply %d: got ply %d", i, replayed.Ply())
		}
		if i == len(history) {
			break
		}
		next, err := incremental.Push(history[i])
		if err != nil {
			t.Fatalf("Push(%s): %v", history[i], err)
		}
		incremental = next
	}
}

func TestPushDoesNotMutateReceiver(t *testing.T) {
	start := StartPosition()
	key := start.Key()
	if _, err := start.Push("e2e4"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if start.Key() != key || start.Ply() != 0 {
		t.Fatalf("receiver changed after Push")
	}
}

func TestReplayRejectsIllegalHistory(t *testing.T) {
	if _, err := Replay(ParseMoves("e2e4 e2e4")); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if _, err := Replay(ParseMoves("zz99")); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for garbage token, got %v", err)
	}
}

func TestKeyAndTurn(t *testing.T) {
	pos, err := Replay(ParseMoves("e2e4"))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if pos.Turn() != "black" {
		t.Fatalf("expected black to move, got %s", pos.Turn())
	}
	if got := CanonicalKey("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"); got != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -" {
		t.Fatalf("unexpected canonical key %q", got)
	}
	if len(StartPosition().LegalMoves()) != 20 {
		t.Fatalf("expected 20 legal moves from start")
	}
	if !pos.IsLegal("e7e5") || pos.IsLegal("e2e4") {
		t.Fatalf("legality check mismatch")
	}
}

func TestReplayLongHistoryStaysFast(t *testing.T) {
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8", "b1c3", "b8c6", "c3b1", "c6b8"}
	history := make([]string, 0, 300)
	for len(history) < 300 {
		history = append(history, shuffle[len(history)%len(shuffle)])
	}

	started := time.Now()
	pos, err := Replay(history)
	took := time.Since(started)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if pos.Ply() != 300 || pos.Key() != StartPosition().Key() {
		t.Fatalf("unexpected replay result ply=%d key=%q", pos.Ply(), pos.Key())
	}
	if took > 150*time.Millisecond {
		t.Fatalf("replay of 300 plies took %s", took)
	}
}

func TestReplayFromInitialFEN(t *testing.T) {
	const fen = "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1"
	pos, err := ReplayFrom(fen, ParseMoves("e2e4 e8d7"))
	if err != nil {
		t.Fatalf("ReplayFrom: %v", err)
	}
	if pos.StartFEN() != fen || pos.Ply() != 2 || pos.Turn() != "white" {
		t.Fatalf("unexpected position start=%q ply=%d turn=%s", pos.StartFEN(), pos.Ply(), pos.Turn())
	}
	if !strings.HasPrefix(pos.FEN(), "8/3k4/8/8/4P3/8/8/4K3 w") {
		t.Fatalf("unexpected fen %q", pos.FEN())
	}
	next, err := pos.Push("e1d2")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if next.StartFEN() != fen {
		t.Fatalf("Push must keep the start fen")
	}

	std, err := ReplayFrom("startpos", ParseMoves("e2e4"))
	if err != nil || std.StartFEN() != "" {
		t.Fatalf("startpos must be the standard start: %q %v", std.StartFEN(), err)
	}
	if _, err := ReplayFrom("not a fen", nil); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for bad fen, got %v", err)
	}
}
