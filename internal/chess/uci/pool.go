package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

type PoolConfig struct {
	BinaryPath string
	Capacity   int
	Options    Options
}

// Pool launches one engine process per game and caps how many run at once.
// Sessions are never reused: a released session has been sent quit.
type Pool struct {
	binaryPath string
	opt        Options
	slots      chan struct{}

	mu   sync.Mutex
	live map[*Session]struct{}
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	if err := validateOptions(cfg.Options); err != nil {
		return nil, err
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity()
	}

	return &Pool{
		binaryPath: cfg.BinaryPath,
		opt:        cfg.Options,
		slots:      make(chan struct{}, capacity),
		live:       make(map[*Session]struct{}),
	}, nil
}

// Acquire waits for a free slot and starts a fresh engine ready for a new game.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	session, err := NewSession(ctx, p.binaryPath, p.opt)
	if err != nil {
		<-p.slots
		return nil, err
	}
	if err := session.NewGame(ctx); err != nil {
		_ = session.Quit(context.Background())
		<-p.slots
		return nil, err
	}

	p.mu.Lock()
	p.live[session] = struct{}{}
	p.mu.Unlock()
	return session, nil
}

// Release frees the slot held by session, quitting it if the owner has not.
func (p *Pool) Release(session *Session) error {
	if session == nil {
		return nil
	}
	p.mu.Lock()
	_, ok := p.live[session]
	delete(p.live, session)
	p.mu.Unlock()

	err := session.Quit(context.Background())
	if ok {
		<-p.slots
	}
	return err
}

func (p *Pool) Close() error {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.live))
	for s := range p.live {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := p.Release(s); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func defaultCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
