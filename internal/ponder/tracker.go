// Package ponder tracks the predicted opponent reply while the engine
// computes on it ahead of time.
package ponder

import (
	"errors"
	"strings"
	"sync"
)

type State int

const (
	Idle State = iota
	Pondering
	Hit
	Miss
)

func (s State) String() string {
	switch s {
	case Pondering:
		return "pondering"
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	default:
		return "idle"
	}
}

var ErrNotIdle = errors.New("ponder tracker is not idle")

// Tracker moves Idle -> Pondering -> Hit|Miss -> Idle. Abandon forces any
// state back to Idle.
type Tracker struct {
	mu      sync.Mutex
	state   State
	pending string
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Start records predicted as the pending reply. It is only valid from Idle.
func (t *Tracker) Start(predicted string) error {
	predicted = strings.ToLower(strings.TrimSpace(predicted))
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return ErrNotIdle
	}
	if predicted == "" {
		return nil
	}
	t.state = Pondering
	t.pending = predicted
	return nil
}

// Observe reconciles the opponent's latest move against the prediction and
// clears it. Without a prediction in flight it reports Idle.
func (t *Tracker) Observe(move string) State {
	move = strings.ToLower(strings.TrimSpace(move))
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Pondering {
		return t.state
	}
	if move != "" && move == t.pending {
		t.state = Hit
	} else {
		t.state = Miss
	}
	t.pending = ""
	return t.state
}

// Settle returns to Idle once the decision for this cycle is final.
func (t *Tracker) Settle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Hit || t.state == Miss {
		t.state = Idle
	}
}

// Abandon drops any speculation and reports whether one was in flight.
func (t *Tracker) Abandon() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasPondering := t.state == Pondering
	t.state = Idle
	t.pending = ""
	return wasPondering
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Pending is the predicted reply, empty unless Pondering.
func (t *Tracker) Pending() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}
