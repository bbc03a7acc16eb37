package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/park285/cheese-lichess-bot/internal/dispatch"
	"github.com/park285/cheese-lichess-bot/internal/lichess"
)

type scriptedEvents struct {
	err   error
	block bool
}

func (s *scriptedEvents) Next(ctx context.Context) (lichess.Event, error) {
	if s.block {
		<-ctx.Done()
		return lichess.Event{}, ctx.Err()
	}
	return lichess.Event{}, s.err
}

func (s *scriptedEvents) Close() error { return nil }

func TestConsumeEndsWhenEventStreamEnds(t *testing.T) {
	opens := 0
	open := func(context.Context) (dispatch.EventStream, error) {
		opens++
		return &scriptedEvents{err: io.EOF}, nil
	}
	err := consume(context.Background(), open, dispatch.New(dispatch.Config{}))
	if !errors.Is(err, dispatch.ErrEventStreamEnded) {
		t.Fatalf("expected ErrEventStreamEnded, got %v", err)
	}
	if opens != 1 {
		t.Fatalf("stream must not be reopened, opened %d times", opens)
	}
}

func TestConsumeReturnsStreamFailures(t *testing.T) {
	broken := errors.New("connection reset")
	open := func(context.Context) (dispatch.EventStream, error) {
		return &scriptedEvents{err: broken}, nil
	}
	if err := consume(context.Background(), open, dispatch.New(dispatch.Config{})); !errors.Is(err, broken) {
		t.Fatalf("expected stream failure, got %v", err)
	}

	dialErr := errors.New("dial tcp: refused")
	failOpen := func(context.Context) (dispatch.EventStream, error) { return nil, dialErr }
	if err := consume(context.Background(), failOpen, dispatch.New(dispatch.Config{})); !errors.Is(err, dialErr) {
		t.Fatalf("expected open failure, got %v", err)
	}
}

func TestConsumeCancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	open := func(context.Context) (dispatch.EventStream, error) {
		return &scriptedEvents{block: true}, nil
	}
	done := make(chan error, 1)
	go func() { done <- consume(ctx, open, dispatch.New(dispatch.Config{})) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancel must not be an error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("consume did not stop after cancel")
	}
}
