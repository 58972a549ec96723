package uci

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// readyWriter answers every isready the way a live engine would.
type readyWriter struct {
	bufferCloser
	s *Session
}

func (w *readyWriter) Write(p []byte) (int, error) {
	n, err := w.bufferCloser.Write(p)
	if strings.Contains(string(p), "isready") {
		w.s.handleLine("readyok")
	}
	return n, err
}

func newResponsiveSession(t *testing.T) (*Session, *readyWriter) {
	t.Helper()
	s, _ := newScriptedSession(t)
	w := &readyWriter{s: s}
	s.stdin = w
	return s, w
}

// newTestPool skips the binary check so scripted sessions can be seeded.
func newTestPool(capacity int) *Pool {
	return &Pool{
		log:    zap.NewNop(),
		slots:  make(chan struct{}, capacity),
		leased: make(map[*Session]struct{}),
	}
}

// seed registers s as a live leased session.
func (p *Pool) seed(s *Session) {
	p.slots <- struct{}{}
	p.mu.Lock()
	p.leased[s] = struct{}{}
	p.mu.Unlock()
}

func TestNewPoolValidatesConfig(t *testing.T) {
	if _, err := NewPool(PoolConfig{}); err == nil {
		t.Fatalf("empty binary path accepted")
	}
	if _, err := NewPool(PoolConfig{BinaryPath: "/definitely/not/stockfish"}); err == nil {
		t.Fatalf("missing binary accepted")
	}
}

func TestReleaseResetsAndReusesSession(t *testing.T) {
	p := newTestPool(1)
	s, w := newResponsiveSession(t)
	p.seed(s)

	p.Release(s, nil)
	if !strings.Contains(w.String(), "ucinewgame") {
		t.Fatalf("released session not reset: %q", w.String())
	}
	if st := p.Stats(); st.Idle != 1 || st.Leased != 0 {
		t.Fatalf("stats after release = %+v", st)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != s {
		t.Fatalf("idle session was not reused")
	}
	if st := p.Stats(); st.Idle != 0 || st.Leased != 1 || st.Capacity != 1 {
		t.Fatalf("stats after reuse = %+v", st)
	}
}

func TestReleaseWithErrorFreesSlot(t *testing.T) {
	p := newTestPool(1)
	s, _ := newResponsiveSession(t)
	p.seed(s)

	p.Release(s, errors.New("engine crashed"))
	if st := p.Stats(); st.Idle != 0 || st.Leased != 0 {
		t.Fatalf("broken session kept: %+v", st)
	}
	if len(p.slots) != 0 {
		t.Fatalf("slot not freed")
	}
	if !s.closed {
		t.Fatalf("broken session not closed")
	}
}

func TestAcquireWaitsForCapacity(t *testing.T) {
	p := newTestPool(1)
	s, _ := newResponsiveSession(t)
	p.seed(s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire at capacity err = %v", err)
	}
}

func TestClosedPoolRefusesLeases(t *testing.T) {
	p := newTestPool(2)
	s, _ := newResponsiveSession(t)
	p.seed(s)
	p.Release(s, nil)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !s.closed {
		t.Fatalf("idle session survived Close")
	}
	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Acquire after Close err = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
