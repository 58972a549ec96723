package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-insights-board/internal/chess/uci"
	"github.com/park285/chess-insights-board/internal/msgcat"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("board session not found")
	ErrTooManySessions = errors.New("too many board sessions")
	// ErrEngineUnavailable means an engine could not be started for a new board.
	ErrEngineUnavailable = errors.New("analysis engine unavailable")
)

const (
	defaultIdleTTL     = 30 * time.Minute
	defaultMaxSessions = 64
	acquireTimeout     = 10 * time.Second
)

// Engine is a leased analysis engine with its event stream.
type Engine interface {
	Analyzer
	Events() <-chan uci.Info
}

// EngineProvider leases engines for the lifetime of one board.
type EngineProvider interface {
	Acquire(ctx context.Context) (Engine, error)
	Release(engine Engine, err error)
}

type poolProvider struct {
	pool *uci.Pool
}

// PoolEngines leases UCI sessions from pool.
func PoolEngines(pool *uci.Pool) EngineProvider {
	return &poolProvider{pool: pool}
}

func (p *poolProvider) Acquire(ctx context.Context) (Engine, error) {
	s, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p *poolProvider) Release(engine Engine, err error) {
	if s, ok := engine.(*uci.Session); ok {
		p.pool.Release(s, err)
	}
}

type HubConfig struct {
	Engines     EngineProvider
	Scheduler   Scheduler
	Messages    *msgcat.Catalog
	Logger      *zap.Logger
	IdleTTL     time.Duration
	MaxSessions int
	// AcquireTimeout bounds how long Create waits for a busy engine pool.
	AcquireTimeout time.Duration
}

type hubEntry struct {
	coord    *Coordinator
	engine   Engine
	stop     context.CancelFunc
	pumpDone chan struct{}
	lastSeen time.Time
}

// Hub owns every open board, keyed by session UUID.
type Hub struct {
	cfg HubConfig
	log *zap.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*hubEntry
	closed   bool
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = acquireTimeout
	}
	if cfg.Messages == nil {
		cfg.Messages = msgcat.MustDefault()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:      cfg,
		log:      logger,
		now:      time.Now,
		sessions: make(map[string]*hubEntry),
	}
}

// Create opens a board. With an engine provider every board owns a leased
// engine: a pool that stays busy past AcquireTimeout yields ErrTooManySessions.
// Without a provider boards run without analysis.
func (h *Hub) Create(ctx context.Context) (*Coordinator, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if len(h.sessions) >= h.cfg.MaxSessions {
		h.mu.Unlock()
		return nil, ErrTooManySessions
	}
	h.mu.Unlock()

	id := uuid.NewString()
	var engine Engine
	if h.cfg.Engines != nil {
		acqCtx, cancel := context.WithTimeout(ctx, h.cfg.AcquireTimeout)
		leased, err := h.cfg.Engines.Acquire(acqCtx)
		cancel()
		if err != nil {
			h.log.Warn("board session refused, no engine leased", zap.String("session_id", id), zap.Error(err))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrTooManySessions
			}
			return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		}
		engine = leased
	}

	cfg := Config{
		SessionID: id,
		Scheduler: h.cfg.Scheduler,
		Messages:  h.cfg.Messages,
		Logger:    h.log,
	}
	if engine != nil {
		cfg.Analyzer = engine
	}
	coord := NewCoordinator(cfg)

	pumpCtx, stop := context.WithCancel(context.Background())
	entry := &hubEntry{
		coord:    coord,
		engine:   engine,
		stop:     stop,
		pumpDone: make(chan struct{}),
		lastSeen: h.now(),
	}
	if engine != nil {
		go pumpEvents(pumpCtx, engine.Events(), coord, entry.pumpDone)
	} else {
		close(entry.pumpDone)
	}

	h.mu.Lock()
	if h.closed || len(h.sessions) >= h.cfg.MaxSessions {
		closed := h.closed
		h.mu.Unlock()
		h.teardown(entry, "rejected")
		if closed {
			return nil, ErrSessionClosed
		}
		return nil, ErrTooManySessions
	}
	h.sessions[id] = entry
	h.mu.Unlock()

	h.log.Info("board session created", zap.String("session_id", id), zap.Bool("engine", engine != nil))
	return coord, nil
}

func pumpEvents(ctx context.Context, events <-chan uci.Info, coord *Coordinator, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			coord.OnEngineEvent(ev)
		}
	}
}

// Touch marks a board as in use without resolving it, for long-lived clients.
func (h *Hub) Touch(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.sessions[id]; ok {
		entry.lastSeen = h.now()
	}
}

// Get returns the board and marks it as recently used.
func (h *Hub) Get(id string) (*Coordinator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	entry.lastSeen = h.now()
	return entry.coord, nil
}

// Delete closes the board and returns its engine to the pool.
func (h *Hub) Delete(id string) error {
	h.mu.Lock()
	entry, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	h.teardown(entry, "deleted")
	return nil
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Sweep closes boards idle longer than the configured TTL and reports how many it closed.
func (h *Hub) Sweep() int {
	cutoff := h.now().Add(-h.cfg.IdleTTL)
	var expired []*hubEntry
	h.mu.Lock()
	for id, entry := range h.sessions {
		if entry.lastSeen.Before(cutoff) {
			expired = append(expired, entry)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()
	for _, entry := range expired {
		h.teardown(entry, "idle")
	}
	return len(expired)
}

// Run sweeps idle boards until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	interval := h.cfg.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.Sweep(); n > 0 {
				h.log.Info("idle board sessions closed", zap.Int("count", n))
			}
		}
	}
}

// Close tears down every board. The hub accepts no new boards afterwards.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	entries := make([]*hubEntry, 0, len(h.sessions))
	for id, entry := range h.sessions {
		entries = append(entries, entry)
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	var errs []error
	for _, entry := range entries {
		if err := h.teardown(entry, "shutdown"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) teardown(entry *hubEntry, reason string) error {
	entry.stop()
	<-entry.pumpDone
	err := entry.coord.Close()
	if entry.engine != nil {
		h.cfg.Engines.Release(entry.engine, err)
	}
	h.log.Info("board session closed", zap.String("session_id", entry.coord.ID()), zap.String("reason", reason))
	if err != nil {
		return fmt.Errorf("close session %s: %w", entry.coord.ID(), err)
	}
	return nil
}
