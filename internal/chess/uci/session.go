package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
	eventBuffer          = 64

	// MateValue is the centipawn magnitude reported for forced mates.
	MateValue = 30000
)

var ErrClosed = errors.New("uci session closed")

type Options struct {
	Threads    int
	HashMB     int
	SkillLevel int
}

// Request asks for an analysis of FEN up to Depth plies. ID tags every Info
// produced by the search so consumers can drop output for stale positions.
type Request struct {
	ID    uint64
	FEN   string
	Depth int
}

// Info is one parsed engine report. Final marks the bestmove line closing a search.
type Info struct {
	RequestID uint64
	Depth     int
	ScoreCP   *int
	MateIn    *int
	PV        []string
	BestMove  string
	Final     bool
}

// Session is a long-lived UCI process. After the handshake a reader goroutine
// turns engine output into Info events; at most one search runs at a time.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	log    *zap.Logger
	mu     sync.Mutex

	state     sync.Mutex
	active    Request
	pending   *Request
	searching bool
	stopping  bool
	closed    bool

	events chan Info
	ready  chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdoutPipe),
		log:    logger.With(zap.Int("engine_pid", cmd.Process.Pid)),
		events: make(chan Info, eventBuffer),
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	go s.readLoop()
	return s, nil
}

// Events delivers parsed engine output until the process exits.
func (s *Session) Events() <-chan Info {
	return s.events
}

// Analyze starts a search for req. A running search is stopped first and req
// is started once that search reports its bestmove.
func (s *Session) Analyze(req Request) error {
	s.state.Lock()
	defer s.state.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.searching {
		r := req
		s.pending = &r
		if !s.stopping {
			if err := s.send("stop\n"); err != nil {
				return fmt.Errorf("send stop: %w", err)
			}
			s.stopping = true
		}
		return nil
	}
	return s.startLocked(req)
}

// Stop abandons the running search and any queued one.
func (s *Session) Stop() error {
	s.state.Lock()
	defer s.state.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pending = nil
	if !s.searching || s.stopping {
		return nil
	}
	if err := s.send("stop\n"); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	s.stopping = true
	return nil
}

func (s *Session) startLocked(req Request) error {
	if err := s.send(buildPositionCommand(req.FEN)); err != nil {
		return fmt.Errorf("send position: %w", err)
	}
	goCmd, err := buildGoCommand(req.Depth)
	if err != nil {
		return err
	}
	if err := s.send(goCmd); err != nil {
		return fmt.Errorf("send go: %w", err)
	}
	s.active = req
	s.searching = true
	s.stopping = false
	return nil
}

func (s *Session) readLoop() {
	defer func() {
		s.state.Lock()
		s.closed = true
		s.searching = false
		s.pending = nil
		s.state.Unlock()
		close(s.events)
		close(s.done)
	}()
	for {
		raw, err := s.stdout.ReadString('\n')
		line := strings.TrimSpace(raw)
		if line != "" {
			s.handleLine(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.log.Warn("uci_read_failed", zap.Error(err))
			}
			return
		}
	}
}

func (s *Session) handleLine(line string) {
	switch {
	case strings.HasPrefix(line, "info "):
		info, ok := parseInfo(line)
		if !ok {
			return
		}
		s.state.Lock()
		live := s.searching && !s.stopping
		info.RequestID = s.active.ID
		s.state.Unlock()
		if !live {
			return
		}
		select {
		case s.events <- info:
		default:
			s.log.Debug("uci_info_dropped", zap.Uint64("request_id", info.RequestID), zap.Int("depth", info.Depth))
		}
	case strings.HasPrefix(line, "bestmove"):
		s.state.Lock()
		finished := s.active
		wasStopping := s.stopping
		s.searching = false
		s.stopping = false
		var startErr error
		if next := s.pending; next != nil {
			s.pending = nil
			startErr = s.startLocked(*next)
		}
		s.state.Unlock()
		if startErr != nil {
			s.log.Warn("uci_start_pending_failed", zap.Error(startErr))
		}
		if wasStopping {
			return
		}
		info := Info{RequestID: finished.ID, Final: true}
		if parts := strings.Fields(line); len(parts) >= 2 && parts[1] != "(none)" {
			info.BestMove = parts[1]
		}
		select {
		case s.events <- info:
		case <-time.After(defaultReadyTimeout):
			s.log.Warn("uci_bestmove_dropped", zap.Uint64("request_id", info.RequestID))
		}
	case line == "readyok":
		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
}

func buildPositionCommand(fen string) string {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return "position startpos\n"
	}
	return "position fen " + strings.TrimSpace(fen) + "\n"
}

func buildGoCommand(depth int) (string, error) {
	if depth <= 0 {
		return "", fmt.Errorf("search depth must be > 0: %d", depth)
	}
	return "go depth " + strconv.Itoa(depth) + "\n", nil
}

func validateOptions(opt Options) error {
	if opt.SkillLevel < 0 || opt.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", opt.SkillLevel)
	}
	if opt.HashMB <= 0 {
		return fmt.Errorf("hash size must be > 0: %d", opt.HashMB)
	}
	if opt.Threads < 0 {
		return fmt.Errorf("threads must be >= 0: %d", opt.Threads)
	}
	return nil
}

// parseInfo reads depth, score and principal variation from an info line.
// Secondary lines (multipv > 1) and lines without score or pv are ignored.
func parseInfo(line string) (Info, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Info{}, false
	}
	var (
		info    Info
		multipv = 1
		pvIdx   = -1
	)
	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "string":
			return Info{}, false
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					info.Depth = v
				}
				i++
			}
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				v, err := strconv.Atoi(parts[i+2])
				if err == nil {
					switch parts[i+1] {
					case "cp":
						info.ScoreCP = &v
					case "mate":
						info.MateIn = &v
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}
	if multipv != 1 {
		return Info{}, false
	}
	if pvIdx != -1 && pvIdx < len(parts) {
		info.PV = append([]string(nil), parts[pvIdx:]...)
	}
	if info.ScoreCP == nil && info.MateIn == nil && len(info.PV) == 0 {
		return Info{}, false
	}
	return info, true
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	select {
	case <-s.ready:
	default:
	}
	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return ErrClosed
	case <-readyCtx.Done():
		return fmt.Errorf("wait readyok: %w", readyCtx.Err())
	}
}

func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts || errors.Is(err, ErrClosed) {
			return err
		}
		s.log.Warn("uci_ready_retry", zap.Int("attempt", attempt), zap.Int("max", newGameRetryAttempts), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

// Close kills the process and reaps it. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Lock()
		s.closed = true
		s.pending = nil
		s.state.Unlock()

		s.mu.Lock()
		if s.stdin != nil {
			s.stdin.Close()
		}
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.mu.Unlock()

		if s.cmd != nil {
			err := s.cmd.Wait()
			var exitErr *exec.ExitError
			if err != nil && !errors.As(err, &exitErr) {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	if err := s.applyOptions(opt); err != nil {
		return err
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) applyOptions(opt Options) error {
	threadCount := opt.Threads
	if threadCount <= 0 {
		threadCount = 1
	}
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d\n", threadCount),
		fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB),
		"setoption name MultiPV value 1\n",
		fmt.Sprintf("setoption name Skill Level value %d\n", opt.SkillLevel),
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

// readLine is only used during the handshake, before readLoop owns stdout.
func (s *Session) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		line, err := s.stdout.ReadString('\n')
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}
