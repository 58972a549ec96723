package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

const resetTimeout = 5 * time.Second

var ErrPoolClosed = errors.New("engine pool closed")

type PoolConfig struct {
	BinaryPath string
	Options    Options
	// Capacity bounds the engine processes alive at once; 0 derives it from the CPU count.
	Capacity int
	Logger   *zap.Logger
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Capacity int
	Leased   int
	Idle     int
}

// Pool leases engine sessions exclusively: a leased session belongs to one
// board until Release. Released sessions are reset with ucinewgame and kept
// idle for the next board.
type Pool struct {
	binaryPath string
	opt        Options
	log        *zap.Logger

	// one token per live process, leased or idle
	slots chan struct{}

	mu     sync.Mutex
	idle   []*Session
	leased map[*Session]struct{}
	closed bool
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("stockfish binary check: %w", err)
	}
	if err := validateOptions(cfg.Options); err != nil {
		return nil, err
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		binaryPath: cfg.BinaryPath,
		opt:        cfg.Options,
		log:        logger,
		slots:      make(chan struct{}, capacity),
		leased:     make(map[*Session]struct{}),
	}, nil
}

// Acquire returns an idle session or starts a new one, waiting for a free
// slot while the pool is at capacity.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	for {
		if s, ok, err := p.takeIdle(); err != nil {
			return nil, err
		} else if ok {
			if err := s.EnsureReady(ctx); err != nil {
				p.log.Warn("idle engine not ready, discarding", zap.Error(err))
				p.drop(s)
				continue
			}
			return s, nil
		}

		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// an idle session may have appeared while waiting; the slot then goes back
		if s, ok, _ := p.takeIdle(); ok {
			<-p.slots
			if err := s.EnsureReady(ctx); err != nil {
				p.drop(s)
				continue
			}
			return s, nil
		}

		s, err := NewSession(ctx, p.binaryPath, p.opt, p.log)
		if err != nil {
			<-p.slots
			return nil, err
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = s.Close()
			<-p.slots
			return nil, ErrPoolClosed
		}
		p.leased[s] = struct{}{}
		p.mu.Unlock()
		p.log.Debug("engine process started", zap.Int("live", len(p.slots)))
		return s, nil
	}
}

func (p *Pool) takeIdle() (*Session, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false, ErrPoolClosed
	}
	n := len(p.idle)
	if n == 0 {
		return nil, false, nil
	}
	s := p.idle[n-1]
	p.idle = p.idle[:n-1]
	p.leased[s] = struct{}{}
	return s, true, nil
}

// Release hands a session back. A non-nil err, or a failed reset, ends the process.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}
	if err == nil {
		if err = resetForReuse(session); err != nil {
			p.log.Warn("engine reset failed on release", zap.Error(err))
		}
	}

	p.mu.Lock()
	if _, ok := p.leased[session]; !ok {
		p.mu.Unlock()
		_ = session.Close()
		return
	}
	if err != nil || p.closed {
		p.mu.Unlock()
		p.drop(session)
		return
	}
	delete(p.leased, session)
	p.idle = append(p.idle, session)
	p.mu.Unlock()
}

// drop ends a session and frees its slot.
func (p *Pool) drop(session *Session) {
	p.mu.Lock()
	delete(p.leased, session)
	p.mu.Unlock()
	_ = session.Close()
	<-p.slots
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Capacity: cap(p.slots), Leased: len(p.leased), Idle: len(p.idle)}
}

// Close ends idle sessions. Leased sessions end when their boards release them.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, s := range idle {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
		<-p.slots
	}
	return errors.Join(errs...)
}

func resetForReuse(session *Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	if err := session.Stop(); err != nil {
		return err
	}
	return session.NewGame(ctx)
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
