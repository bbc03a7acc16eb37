// Package status holds the process-wide status mirror and serves it for
// inspection.
package status

import "sync"

// Shared is the status mirror. Fields are updated one at a time by whichever
// game session currently holds the turn.
type Shared struct {
	CurrentPositionKey string `json:"currentPositionKey"`
	CurrentGameID      string `json:"currentGameId,omitempty"`
	EngineThinking     bool   `json:"engineThinking"`
	Streaming          bool   `json:"streaming"`
	ActiveGames        int    `json:"activeGames"`
}

// Board guards Shared and notifies subscribers after each change. The lock
// is never held while a subscriber is notified.
type Board struct {
	mu    sync.Mutex
	state Shared
	subs  map[int]chan Shared
	next  int
}

func NewBoard() *Board {
	return &Board{subs: make(map[int]chan Shared)}
}

func (b *Board) Snapshot() Shared {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Board) SetPosition(gameID, key string) {
	b.update(func(s *Shared) {
		s.CurrentGameID = gameID
		s.CurrentPositionKey = key
	})
}

func (b *Board) SetThinking(thinking bool) {
	b.update(func(s *Shared) { s.EngineThinking = thinking })
}

func (b *Board) SetStreaming(streaming bool) {
	b.update(func(s *Shared) { s.Streaming = streaming })
}

func (b *Board) AddGames(delta int) {
	b.update(func(s *Shared) {
		s.ActiveGames += delta
		if s.ActiveGames < 0 {
			s.ActiveGames = 0
		}
	})
}

// Subscribe returns a channel receiving the latest state after every change.
// Slow subscribers only see the most recent state.
func (b *Board) Subscribe() (<-chan Shared, func()) {
	ch := make(chan Shared, 1)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	ch <- b.state
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Board) update(fn func(*Shared)) {
	if b == nil {
		return
	}
	b.mu.Lock()
	fn(&b.state)
	snap := b.state
	subs := make([]chan Shared, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		publish(ch, snap)
	}
}

// publish replaces any undelivered state with snap.
func publish(ch chan Shared, snap Shared) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
