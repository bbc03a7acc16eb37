package lichess

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	form   string
}

func newTestClient(t *testing.T, handler fasthttp.RequestHandler) (*Client, func() []recorded) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	var (
		mu   sync.Mutex
		seen []recorded
	)
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		mu.Lock()
		seen = append(seen, recorded{
			method: string(ctx.Method()),
			path:   string(ctx.Path()),
			query:  string(ctx.QueryArgs().QueryString()),
			auth:   string(ctx.Request.Header.Peek("Authorization")),
			form:   string(ctx.PostBody()),
		})
		mu.Unlock()
		handler(ctx)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	c := NewClient("http://lichess.test", "tok", WithRetry(3))
	dial := func(addr string) (net.Conn, error) { return ln.Dial() }
	c.http.Dial = dial
	c.stream.Dial = dial
	return c, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), seen...)
	}
}

func TestMakeMoveAndDecline(t *testing.T) {
	c, seen := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString(`{"ok":true}`)
	})
	ctx := context.Background()

	if err := c.MakeMove(ctx, "g1", "e2e4", false); err != nil {
		t.Fatalf("MakeMove: %v", err)
	}
	if err := c.DeclineChallenge(ctx, "c1", domain.DeclineTimeControl); err != nil {
		t.Fatalf("DeclineChallenge: %v", err)
	}

	got := seen()
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	if got[0].path != "/api/bot/game/g1/move/e2e4" || got[0].query != "offeringDraw=false" || got[0].auth != "Bearer tok" {
		t.Fatalf("unexpected move request %+v", got[0])
	}
	if got[1].path != "/api/challenge/c1/decline" || got[1].form != "reason=timeControl" {
		t.Fatalf("unexpected decline request %+v", got[1])
	}
}

func TestAcceptRetriesServerErrors(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls++
		if calls < 2 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	if err := c.AcceptChallenge(context.Background(), "c1"); err != nil {
		t.Fatalf("AcceptChallenge: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}

func TestMoveRejectionIsAPIStatus(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls++
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"Not your turn, or game already over"}`)
	})
	err := c.MakeMove(context.Background(), "g1", "e2e4", false)
	if !errors.Is(err, ErrAPIStatus) {
		t.Fatalf("expected ErrAPIStatus, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("moves must not be retried, got %d calls", calls)
	}
}

func TestAccountDecodes(t *testing.T) {
	c, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"id":"cheesebot","username":"CheeseBot","title":"BOT"}`)
	})
	acc, err := c.Account(context.Background())
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acc.Username != "CheeseBot" || acc.Title != "BOT" {
		t.Fatalf("unexpected account %+v", acc)
	}
}

func TestStreamEventsOverHTTP(t *testing.T) {
	c, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/x-ndjson")
		ctx.SetBodyString("\n" + `{"type":"gameStart","game":{"gameId":"g9"}}` + "\n\n")
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := c.StreamEvents(ctx)
	if err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}
	defer s.Close()

	ev, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Type != EventGameStart || ev.Game.Key() != "g9" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after body, got %v", err)
	}
}
