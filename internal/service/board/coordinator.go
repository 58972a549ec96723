package board

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/chess-insights-board/internal/chess"
	"github.com/park285/chess-insights-board/internal/chess/uci"
	"github.com/park285/chess-insights-board/internal/msgcat"
	"go.uber.org/zap"
)

var (
	ErrIllegalMove     = chess.ErrIllegalMove
	ErrReplayActive    = errors.New("opening replay in progress")
	ErrEngineTurn      = errors.New("engine is to move")
	ErrIndexOutOfRange = errors.New("move index out of range")
	ErrNoBestMove      = errors.New("no engine move available")
	ErrSessionClosed   = errors.New("board session closed")
)

const (
	AnalysisDepth    = 18
	MinTrustedDepth  = 8
	EngineMoveDelay  = 1000 * time.Millisecond
	OpeningStepDelay = 800 * time.Millisecond
)

// Analyzer is the engine as seen by a board: one authoritative search at a time.
type Analyzer interface {
	Analyze(req uci.Request) error
	Stop() error
}

type noopAnalyzer struct{}

func (noopAnalyzer) Analyze(uci.Request) error { return nil }
func (noopAnalyzer) Stop() error               { return nil }

// requestEpoch is shared by every board so an ID is never reused,
// even when a pooled engine moves from one board to another.
var requestEpoch atomic.Uint64

func nextEpoch() uint64 { return requestEpoch.Add(1) }

type Config struct {
	SessionID string
	Analyzer  Analyzer
	Scheduler Scheduler
	Messages  *msgcat.Catalog
	Logger    *zap.Logger
}

// Coordinator owns one analysis board: the move list, the cursor, the
// activity currently allowed to move, and the engine output for the
// displayed position.
type Coordinator struct {
	id       string
	analyzer Analyzer
	sched    Scheduler
	msgs     *msgcat.Catalog
	log      *zap.Logger

	mu       sync.Mutex
	closed   bool
	moves    []chess.MoveRecord
	cursor   int
	position chess.Position
	act      activity
	autoPlay bool
	engineAs chess.Color

	epoch       uint64
	engineTimer Timer
	replayTimer Timer
	replayGen   uint64

	eval     *chess.Evaluation
	settled  *chess.Evaluation
	depth    int
	bestLine []string

	// engine view of the position the last move was played from
	prior     *chess.Evaluation
	priorBest string

	notice  string
	subs    map[int]chan struct{}
	nextSub int
}

func NewCoordinator(cfg Config) *Coordinator {
	c := &Coordinator{
		id:       cfg.SessionID,
		analyzer: cfg.Analyzer,
		sched:    cfg.Scheduler,
		msgs:     cfg.Messages,
		log:      cfg.Logger,
		cursor:   -1,
		position: chess.StartPosition(),
		act:      interactive(),
		subs:     make(map[int]chan struct{}),
	}
	if c.analyzer == nil {
		c.analyzer = noopAnalyzer{}
	}
	if c.sched == nil {
		c.sched = WallClock()
	}
	if c.msgs == nil {
		c.msgs = msgcat.MustDefault()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.id != "" {
		c.log = c.log.With(zap.String("session_id", c.id))
	}

	c.mu.Lock()
	c.cancelPendingLocked()
	c.requestAnalysisLocked()
	c.mu.Unlock()
	return c
}

func (c *Coordinator) ID() string { return c.id }

// ApplyMove plays a human move on the displayed position. From a browsed
// position the tail of the move list is replaced.
func (c *Coordinator) ApplyMove(spec chess.MoveSpec) (chess.MoveRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return chess.MoveRecord{}, ErrSessionClosed
	}
	if c.act.replayActive() {
		return chess.MoveRecord{}, ErrReplayActive
	}
	if c.engineToMoveLocked() {
		return chess.MoveRecord{}, ErrEngineTurn
	}
	rec, err := c.playLocked(spec)
	if err != nil {
		return chess.MoveRecord{}, err
	}
	c.notifyLocked()
	return rec, nil
}

// PlayBestMove plays the first move of the current best line through the same path as human moves.
func (c *Coordinator) PlayBestMove() (chess.MoveRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return chess.MoveRecord{}, ErrSessionClosed
	}
	if c.act.replayActive() {
		return chess.MoveRecord{}, ErrReplayActive
	}
	if len(c.bestLine) == 0 {
		return chess.MoveRecord{}, ErrNoBestMove
	}
	spec, err := chess.ParseUCIMove(c.bestLine[0])
	if err != nil {
		return chess.MoveRecord{}, fmt.Errorf("%w: %v", ErrNoBestMove, err)
	}
	rec, err := c.playLocked(spec)
	if err != nil {
		return chess.MoveRecord{}, err
	}
	c.notifyLocked()
	return rec, nil
}

// playLocked is the only place the move list grows.
func (c *Coordinator) playLocked(spec chess.MoveSpec) (chess.MoveRecord, error) {
	rec, next, err := c.position.Apply(spec)
	if err != nil {
		return chess.MoveRecord{}, err
	}
	prior, priorBest := c.settled, c.bestMoveLocked()

	c.cancelPendingLocked()
	keep := c.cursor + 1
	c.moves = append(c.moves[:keep:keep], rec)
	c.cursor = len(c.moves) - 1
	c.position = next
	c.clearAnalysisLocked()
	c.prior, c.priorBest = prior, priorBest
	c.notice = ""
	c.act = interactive()
	c.requestAnalysisLocked()
	return rec, nil
}

// NavigateTo shows the position after move index; -1 is the initial position.
// The move list itself is never changed.
func (c *Coordinator) NavigateTo(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.navigateLocked(index)
}

// Undo steps the cursor back one move.
func (c *Coordinator) Undo() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed && !c.act.replayActive() && c.cursor < 0 {
		return ErrIndexOutOfRange
	}
	return c.navigateLocked(c.cursor - 1)
}

func (c *Coordinator) navigateLocked(index int) error {
	if c.closed {
		return ErrSessionClosed
	}
	if c.act.replayActive() {
		return ErrReplayActive
	}
	if index < -1 || index >= len(c.moves) {
		return ErrIndexOutOfRange
	}
	pos, err := chess.Replay(c.moves[:index+1])
	if err != nil {
		return fmt.Errorf("replay to %d: %w", index, err)
	}
	c.cancelPendingLocked()
	c.position = pos
	c.cursor = index
	c.clearAnalysisLocked()
	c.prior, c.priorBest = nil, ""
	c.act = interactive()
	c.requestAnalysisLocked()
	c.notifyLocked()
	return nil
}

// StartOpeningReplay plays tokens one by one on the opening cadence. It does
// nothing and reports false unless the move list is empty and no replay runs.
func (c *Coordinator) StartOpeningReplay(tokens []string) bool {
	clean := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.moves) > 0 || c.act.replayActive() || len(clean) == 0 {
		return false
	}
	c.cancelPendingLocked()
	c.clearAnalysisLocked()
	c.notice = ""
	c.replayGen++
	c.act = replaying(&openingSequence{tokens: clean, gen: c.replayGen})
	c.scheduleReplayStepLocked()
	c.notifyLocked()
	return true
}

func (c *Coordinator) scheduleReplayStepLocked() {
	gen := c.replayGen
	c.replayTimer = c.sched.AfterFunc(OpeningStepDelay, func() { c.advanceReplay(gen) })
}

func (c *Coordinator) advanceReplay(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.act.replayActive() || c.act.replay.gen != gen {
		return
	}
	seq := c.act.replay
	token := seq.tokens[seq.next]
	rec, next, err := c.position.ApplySAN(token)
	if err != nil {
		c.log.Warn("opening replay aborted",
			zap.String("token", token),
			zap.Int("index", seq.next),
			zap.Error(err))
		c.notice = c.msgs.Text("board.opening_failed", map[string]any{"Token": token})
		c.replayTimer = nil
		c.act = interactive()
		c.cancelPendingLocked()
		c.requestAnalysisLocked()
		c.notifyLocked()
		return
	}
	c.moves = append(c.moves, rec)
	c.cursor = len(c.moves) - 1
	c.position = next
	seq.next++
	if seq.next < len(seq.tokens) {
		c.scheduleReplayStepLocked()
		c.notifyLocked()
		return
	}
	c.replayTimer = nil
	c.act = interactive()
	c.cancelPendingLocked()
	c.clearAnalysisLocked()
	c.requestAnalysisLocked()
	c.notifyLocked()
}

// ResetSession returns the board to the initial position and default settings.
func (c *Coordinator) ResetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cancelPendingLocked()
	c.stopReplayLocked()
	c.moves = nil
	c.cursor = -1
	c.position = chess.StartPosition()
	c.act = interactive()
	c.autoPlay = false
	c.engineAs = chess.NoColor
	c.clearAnalysisLocked()
	c.prior, c.priorBest = nil, ""
	c.notice = ""
	c.requestAnalysisLocked()
	c.notifyLocked()
}

func (c *Coordinator) SetAutoPlay(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.autoPlay = enabled
	c.restartAnalysisLocked()
}

func (c *Coordinator) ToggleAutoPlay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.autoPlay
	}
	c.autoPlay = !c.autoPlay
	c.restartAnalysisLocked()
	return c.autoPlay
}

// SetEnginePlaysAs hands a side to the engine. Choosing the engine's current side again frees it.
func (c *Coordinator) SetEnginePlaysAs(color chess.Color) chess.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.engineAs
	}
	if c.engineAs == color {
		c.engineAs = chess.NoColor
	} else {
		c.engineAs = color
	}
	c.restartAnalysisLocked()
	return c.engineAs
}

// restartAnalysisLocked abandons pending engine work after a mode change and
// asks again so the thinking state reflects the new settings.
func (c *Coordinator) restartAnalysisLocked() {
	if c.act.replayActive() {
		c.notifyLocked()
		return
	}
	c.cancelPendingLocked()
	c.clearAnalysisLocked()
	c.act = interactive()
	c.requestAnalysisLocked()
	c.notifyLocked()
}

// OnEngineEvent folds one engine report into the board. Reports for an older
// request or below the trusted depth are dropped.
func (c *Coordinator) OnEngineEvent(info uci.Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || info.RequestID != c.epoch {
		return
	}
	if info.Depth > 0 && info.Depth < MinTrustedDepth {
		return
	}
	if info.ScoreCP != nil || info.MateIn != nil {
		ev := chess.Normalize(info.ScoreCP, info.MateIn, c.position.Turn())
		c.eval = &ev
		if info.Depth > 0 {
			settled := ev
			c.settled = &settled
		}
	}
	if len(info.PV) > 0 {
		c.bestLine = append([]string(nil), info.PV...)
	} else if info.Final && info.BestMove != "" && len(c.bestLine) == 0 {
		c.bestLine = []string{info.BestMove}
	}
	if info.Depth > 0 {
		c.depth = info.Depth
	}
	c.scheduleEngineMoveLocked()
	c.notifyLocked()
}

// scheduleEngineMoveLocked (re)arms the single engine-move timer. Each new
// report pushes the move back so the line stays visible before the board changes.
func (c *Coordinator) scheduleEngineMoveLocked() {
	if !c.autoPlay || !c.act.engineThinking() || c.engineAs != c.position.Turn() {
		return
	}
	move := c.bestMoveLocked()
	if move == "" {
		return
	}
	c.stopEngineTimerLocked()
	epoch := c.epoch
	c.engineTimer = c.sched.AfterFunc(EngineMoveDelay, func() { c.fireEngineMove(epoch, move) })
}

func (c *Coordinator) fireEngineMove(epoch uint64, move string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || epoch != c.epoch || !c.act.engineThinking() {
		return
	}
	if !c.autoPlay || c.engineAs != c.position.Turn() {
		return
	}
	c.engineTimer = nil
	spec, err := chess.ParseUCIMove(move)
	if err != nil {
		c.log.Warn("engine proposed malformed move", zap.String("move", move), zap.Error(err))
		return
	}
	if _, err := c.playLocked(spec); err != nil {
		c.log.Warn("engine move rejected", zap.String("move", move), zap.String("fen", c.position.FEN()), zap.Error(err))
		c.act = interactive()
	}
	c.notifyLocked()
}

// cancelPendingLocked invalidates every outstanding engine request and the
// scheduled engine move. Output tagged with the old epoch is ignored from now on.
func (c *Coordinator) cancelPendingLocked() {
	c.stopEngineTimerLocked()
	c.epoch = nextEpoch()
	if err := c.analyzer.Stop(); err != nil {
		c.log.Warn("engine stop failed", zap.Error(err))
	}
	if c.act.engineThinking() {
		c.act = interactive()
	}
}

func (c *Coordinator) stopEngineTimerLocked() {
	if c.engineTimer != nil {
		c.engineTimer.Stop()
		c.engineTimer = nil
	}
}

func (c *Coordinator) stopReplayLocked() {
	if c.replayTimer != nil {
		c.replayTimer.Stop()
		c.replayTimer = nil
	}
	c.replayGen++
}

func (c *Coordinator) requestAnalysisLocked() {
	req := uci.Request{ID: c.epoch, FEN: c.position.FEN(), Depth: AnalysisDepth}
	if err := c.analyzer.Analyze(req); err != nil {
		c.log.Warn("engine analysis request failed", zap.Uint64("request_id", req.ID), zap.Error(err))
		return
	}
	if c.engineToMoveLocked() && c.cursor == len(c.moves)-1 && !c.position.IsGameOver() {
		c.act = thinking()
	}
}

func (c *Coordinator) clearAnalysisLocked() {
	c.eval = nil
	c.settled = nil
	c.depth = 0
	c.bestLine = nil
}

func (c *Coordinator) engineToMoveLocked() bool {
	return c.autoPlay && c.engineAs != chess.NoColor && c.engineAs == c.position.Turn()
}

func (c *Coordinator) bestMoveLocked() string {
	if len(c.bestLine) == 0 {
		return ""
	}
	return c.bestLine[0]
}

// Subscribe returns a channel that receives a signal after every state change.
// Signals coalesce; read Snapshot for the current state. Call cancel when done.
func (c *Coordinator) Subscribe() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{}, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Coordinator) notifyLocked() {
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops timers and the engine search and ends all subscriptions.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.stopEngineTimerLocked()
	c.stopReplayLocked()
	c.epoch = nextEpoch()
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	if err := c.analyzer.Stop(); err != nil && !errors.Is(err, uci.ErrClosed) {
		return err
	}
	return nil
}

// LiveLine returns the full move list and the position at its end.
func (c *Coordinator) LiveLine() ([]chess.MoveRecord, chess.Position, error) {
	c.mu.Lock()
	moves := append([]chess.MoveRecord(nil), c.moves...)
	c.mu.Unlock()
	pos, err := chess.Replay(moves)
	if err != nil {
		return nil, chess.Position{}, err
	}
	return moves, pos, nil
}
