package board

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-insights-board/internal/chess"
	"github.com/park285/chess-insights-board/internal/chess/uci"
	"github.com/park285/chess-insights-board/pkg/boarddto"
)

const initialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type fakeAnalyzer struct {
	mu       sync.Mutex
	requests []uci.Request
	stops    int
}

func (f *fakeAnalyzer) Analyze(req uci.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeAnalyzer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeAnalyzer) last(t *testing.T) uci.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatalf("no analysis requested")
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeAnalyzer) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests), f.stops
}

type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// manualScheduler never fires on its own; tests decide when callbacks run.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) pending(d time.Duration) []*manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*manualTimer
	for _, t := range s.timers {
		if t.delay == d && !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireNext runs the oldest live timer with delay d and reports whether one existed.
func (s *manualScheduler) fireNext(d time.Duration) bool {
	live := s.pending(d)
	if len(live) == 0 {
		return false
	}
	live[0].fired = true
	live[0].fn()
	return true
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeAnalyzer, *manualScheduler) {
	t.Helper()
	an := &fakeAnalyzer{}
	sched := &manualScheduler{}
	c := NewCoordinator(Config{SessionID: "test", Analyzer: an, Scheduler: sched})
	t.Cleanup(func() { _ = c.Close() })
	return c, an, sched
}

func mustSpec(t *testing.T, uciMove string) chess.MoveSpec {
	t.Helper()
	spec, err := chess.ParseUCIMove(uciMove)
	if err != nil {
		t.Fatalf("ParseUCIMove(%q): %v", uciMove, err)
	}
	return spec
}

func mustMove(t *testing.T, c *Coordinator, uciMove string) chess.MoveRecord {
	t.Helper()
	rec, err := c.ApplyMove(mustSpec(t, uciMove))
	if err != nil {
		t.Fatalf("ApplyMove(%q): %v", uciMove, err)
	}
	return rec
}

func cp(v int) *int { return &v }

func TestInitialAnalysisRequested(t *testing.T) {
	c, an, _ := newTestCoordinator(t)
	req := an.last(t)
	if req.FEN != initialFEN || req.Depth != AnalysisDepth {
		t.Fatalf("unexpected request %+v", req)
	}
	snap := c.Snapshot()
	if snap.State != boarddto.StateIdle || snap.Cursor != -1 || !snap.CanDrag {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
}

func TestApplyMoveThenUndo(t *testing.T) {
	c, an, _ := newTestCoordinator(t)
	rec := mustMove(t, c, "e2e4")
	if rec.SAN != "e4" {
		t.Fatalf("san = %q", rec.SAN)
	}
	snap := c.Snapshot()
	if snap.Cursor != 0 || len(snap.Moves) != 1 || snap.State != boarddto.StateLive {
		t.Fatalf("after e2e4: cursor=%d moves=%d state=%s", snap.Cursor, len(snap.Moves), snap.State)
	}
	if got := an.last(t).FEN; got != snap.FEN {
		t.Fatalf("analysis not issued for new position: %s", got)
	}

	if err := c.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	snap = c.Snapshot()
	if snap.Cursor != -1 || snap.FEN != initialFEN || len(snap.Moves) != 1 {
		t.Fatalf("after undo: cursor=%d fen=%s moves=%d", snap.Cursor, snap.FEN, len(snap.Moves))
	}
	if err := c.Undo(); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("undo past start: %v", err)
	}
}

func TestMoveFromEarlierCursorOverwritesTail(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	mustMove(t, c, "e2e4")
	mustMove(t, c, "e7e5")
	mustMove(t, c, "g1f3")

	if err := c.NavigateTo(0); err != nil {
		t.Fatalf("NavigateTo: %v", err)
	}
	if snap := c.Snapshot(); snap.State != boarddto.StateBrowsing || len(snap.Moves) != 3 {
		t.Fatalf("navigation must not touch the move list: %+v", snap)
	}
	mustMove(t, c, "c7c5")
	snap := c.Snapshot()
	if len(snap.Moves) != 2 || snap.Moves[0].UCI != "e2e4" || snap.Moves[1].UCI != "c7c5" || snap.Cursor != 1 {
		t.Fatalf("unexpected line %+v", snap.Moves)
	}

	if err := c.NavigateTo(-1); err != nil {
		t.Fatalf("NavigateTo(-1): %v", err)
	}
	mustMove(t, c, "c2c4")
	snap = c.Snapshot()
	if len(snap.Moves) != 1 || snap.Moves[0].UCI != "c2c4" {
		t.Fatalf("unexpected line %+v", snap.Moves)
	}
}

func TestRejectedMoveLeavesStateUntouched(t *testing.T) {
	c, an, sched := newTestCoordinator(t)
	mustMove(t, c, "e2e4")
	before := c.Snapshot()
	reqs, stops := an.counts()
	timers := len(sched.timers)

	_, err := c.ApplyMove(chess.MoveSpec{From: "e2", To: "e4"})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	after := c.Snapshot()
	if after.FEN != before.FEN || len(after.Moves) != len(before.Moves) || after.Cursor != before.Cursor {
		t.Fatalf("state changed after rejected move")
	}
	if r, s := an.counts(); r != reqs || s != stops || len(sched.timers) != timers {
		t.Fatalf("rejected move touched the engine: requests %d->%d stops %d->%d", reqs, r, stops, s)
	}
}

func TestNavigateOutOfRange(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	mustMove(t, c, "d2d4")
	for _, idx := range []int{-2, 1, 5} {
		if err := c.NavigateTo(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("NavigateTo(%d): %v", idx, err)
		}
	}
}

func TestEngineEventsFromOlderRequestAreDropped(t *testing.T) {
	c, an, _ := newTestCoordinator(t)
	mustMove(t, c, "e2e4")
	stale := an.last(t).ID
	mustMove(t, c, "e7e5")
	current := an.last(t).ID
	if stale == current {
		t.Fatalf("request ids must differ")
	}

	c.OnEngineEvent(uci.Info{RequestID: stale, Depth: 16, ScoreCP: cp(80), PV: []string{"e7e5"}})
	if snap := c.Snapshot(); snap.Evaluation != nil || len(snap.BestLine.Moves) != 0 {
		t.Fatalf("stale event applied: %+v", snap.Evaluation)
	}

	c.OnEngineEvent(uci.Info{RequestID: current, Depth: 5, ScoreCP: cp(400), PV: []string{"g1f3"}})
	if snap := c.Snapshot(); snap.Evaluation != nil {
		t.Fatalf("shallow event applied")
	}

	c.OnEngineEvent(uci.Info{RequestID: current, Depth: 12, ScoreCP: cp(50), PV: []string{"g1f3", "b8c6"}})
	snap := c.Snapshot()
	if snap.Evaluation == nil || snap.Evaluation.Pawns != 0.5 || snap.Depth != 12 {
		t.Fatalf("unexpected evaluation %+v depth=%d", snap.Evaluation, snap.Depth)
	}
	if snap.BestMove == nil || snap.BestMove.From != "g1" || snap.BestMove.To != "f3" {
		t.Fatalf("best move arrow = %+v", snap.BestMove)
	}
}

func TestBlackToMoveEvaluationIsFlipped(t *testing.T) {
	c, an, _ := newTestCoordinator(t)
	mustMove(t, c, "e2e4")
	c.OnEngineEvent(uci.Info{RequestID: an.last(t).ID, Depth: 10, ScoreCP: cp(-40)})
	ev, ok := c.Evaluation()
	if !ok || ev.Pawns != 0.4 {
		t.Fatalf("evaluation = %+v ok=%v", ev, ok)
	}
}

func TestBestLineTruncatedToPreview(t *testing.T) {
	c, an, _ := newTestCoordinator(t)
	pv := []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6", "b5a4", "g8f6", "e1g1", "f8e7"}
	c.OnEngineEvent(uci.Info{RequestID: an.last(t).ID, Depth: 18, ScoreCP: cp(25), PV: pv})
	snap := c.Snapshot()
	if len(snap.BestLine.Moves) != 8 || !snap.BestLine.Truncated {
		t.Fatalf("best line = %+v", snap.BestLine)
	}
}

func enableEngineAsBlack(t *testing.T, c *Coordinator) {
	t.Helper()
	if got := c.SetEnginePlaysAs(chess.Black); got != chess.Black {
		t.Fatalf("engine color = %q", got)
	}
	c.SetAutoPlay(true)
}

func TestAutoPlayAppliesEngineMoveAfterDelay(t *testing.T) {
	c, an, sched := newTestCoordinator(t)
	enableEngineAsBlack(t, c)
	mustMove(t, c, "e2e4")
	if snap := c.Snapshot(); snap.State != boarddto.StateEngineThinking || snap.CanDrag {
		t.Fatalf("expected engine thinking, got %s", snap.State)
	}
	if _, err := c.ApplyMove(chess.MoveSpec{From: "e7", To: "e5"}); !errors.Is(err, ErrEngineTurn) {
		t.Fatalf("human move on engine turn: %v", err)
	}

	id := an.last(t).ID
	c.OnEngineEvent(uci.Info{RequestID: id, Depth: 10, ScoreCP: cp(-20), PV: []string{"c7c5"}})
	c.OnEngineEvent(uci.Info{RequestID: id, Depth: 14, ScoreCP: cp(-25), PV: []string{"e7e5", "g1f3"}})
	if n := len(sched.pending(EngineMoveDelay)); n != 1 {
		t.Fatalf("expected exactly one pending engine move, got %d", n)
	}
	if !sched.fireNext(EngineMoveDelay) {
		t.Fatalf("no engine move scheduled")
	}
	snap := c.Snapshot()
	if len(snap.Moves) != 2 || snap.Moves[1].UCI != "e7e5" {
		t.Fatalf("engine move not applied: %+v", snap.Moves)
	}
	if snap.State != boarddto.StateLive || !snap.CanDrag {
		t.Fatalf("white should be to move interactively, state=%s", snap.State)
	}
}

func TestScheduledEngineMoveIsNoOpAfterReset(t *testing.T) {
	c, an, sched := newTestCoordinator(t)
	enableEngineAsBlack(t, c)
	mustMove(t, c, "e2e4")
	c.OnEngineEvent(uci.Info{RequestID: an.last(t).ID, Depth: 12, ScoreCP: cp(0), PV: []string{"e7e5"}})
	timers := sched.pending(EngineMoveDelay)
	if len(timers) != 1 {
		t.Fatalf("expected pending engine move")
	}

	c.ResetSession()
	if !timers[0].stopped {
		t.Fatalf("reset must cancel the pending engine move")
	}
	// a timer that already started firing still has to be harmless
	timers[0].fn()
	snap := c.Snapshot()
	if len(snap.Moves) != 0 || snap.FEN != initialFEN || snap.AutoPlay || snap.EngineColor != "" {
		t.Fatalf("stale engine move applied after reset: %+v", snap)
	}
}

func TestScheduledEngineMoveIsNoOpAfterManualMove(t *testing.T) {
	c, an, sched := newTestCoordinator(t)
	enableEngineAsBlack(t, c)
	mustMove(t, c, "e2e4")
	c.OnEngineEvent(uci.Info{RequestID: an.last(t).ID, Depth: 12, ScoreCP: cp(0), PV: []string{"e7e5"}})
	timers := sched.pending(EngineMoveDelay)
	if len(timers) != 1 {
		t.Fatalf("expected pending engine move")
	}

	c.SetAutoPlay(false)
	mustMove(t, c, "c7c5")
	timers[0].fn()
	snap := c.Snapshot()
	if len(snap.Moves) != 2 || snap.Moves[1].UCI != "c7c5" {
		t.Fatalf("stale engine move applied: %+v", snap.Moves)
	}
}

func TestTogglesCancelAndReissueAnalysis(t *testing.T) {
	c, an, _ := newTestCoordinator(t)
	reqs, stops := an.counts()
	if !c.ToggleAutoPlay() {
		t.Fatalf("toggle should enable auto-play")
	}
	r, s := an.counts()
	if r != reqs+1 || s != stops+1 {
		t.Fatalf("toggle must stop and re-request: requests %d->%d stops %d->%d", reqs, r, stops, s)
	}
	c.SetEnginePlaysAs(chess.White)
	if snap := c.Snapshot(); snap.State != boarddto.StateEngineThinking {
		t.Fatalf("engine plays white from the start, state=%s", snap.State)
	}
	if got := c.SetEnginePlaysAs(chess.White); got != chess.NoColor {
		t.Fatalf("same color should toggle off, got %q", got)
	}
	if snap := c.Snapshot(); snap.State == boarddto.StateEngineThinking {
		t.Fatalf("engine still thinking after being released")
	}
}

func TestOpeningReplayIsExclusive(t *testing.T) {
	c, an, sched := newTestCoordinator(t)
	if !c.StartOpeningReplay([]string{"e4", "c5", "Nf3"}) {
		t.Fatalf("replay should start on an empty board")
	}
	if c.StartOpeningReplay([]string{"d4"}) {
		t.Fatalf("second replay must be a no-op")
	}
	if _, err := c.ApplyMove(chess.MoveSpec{From: "d2", To: "d4"}); !errors.Is(err, ErrReplayActive) {
		t.Fatalf("ApplyMove during replay: %v", err)
	}
	if err := c.NavigateTo(-1); !errors.Is(err, ErrReplayActive) {
		t.Fatalf("NavigateTo during replay: %v", err)
	}
	if snap := c.Snapshot(); snap.State != boarddto.StateOpeningReplay || snap.CanDrag || snap.Replay == nil || snap.Replay.Total != 3 {
		t.Fatalf("unexpected replay snapshot %+v", snap)
	}

	reqsBefore, _ := an.counts()
	steps := 0
	for sched.fireNext(OpeningStepDelay) {
		steps++
	}
	if steps != 3 {
		t.Fatalf("expected 3 replay steps, got %d", steps)
	}
	snap := c.Snapshot()
	if len(snap.Moves) != 3 || snap.State != boarddto.StateLive || snap.Replay != nil {
		t.Fatalf("after replay: moves=%d state=%s", len(snap.Moves), snap.State)
	}
	if reqs, _ := an.counts(); reqs != reqsBefore+1 || an.last(t).FEN != snap.FEN {
		t.Fatalf("analysis should be requested once for the final position")
	}
	if c.StartOpeningReplay([]string{"e4"}) {
		t.Fatalf("replay on a non-empty board must be a no-op")
	}
}

func TestOpeningReplayAbortsOnBadToken(t *testing.T) {
	c, _, sched := newTestCoordinator(t)
	if !c.StartOpeningReplay([]string{"e4", "Qxh7", "Nf3"}) {
		t.Fatalf("replay should start")
	}
	sched.fireNext(OpeningStepDelay)
	sched.fireNext(OpeningStepDelay)
	if sched.fireNext(OpeningStepDelay) {
		t.Fatalf("replay continued after a bad token")
	}
	snap := c.Snapshot()
	if len(snap.Moves) != 1 || snap.State != boarddto.StateLive {
		t.Fatalf("unexpected state after abort: moves=%d state=%s", len(snap.Moves), snap.State)
	}
	if !strings.Contains(snap.Notice, "Qxh7") {
		t.Fatalf("notice = %q", snap.Notice)
	}
	mustMove(t, c, "e7e5")
}

func TestResetStopsOpeningReplay(t *testing.T) {
	c, _, sched := newTestCoordinator(t)
	c.StartOpeningReplay([]string{"d4", "d5"})
	timers := sched.pending(OpeningStepDelay)
	c.ResetSession()
	timers[0].fn()
	if snap := c.Snapshot(); len(snap.Moves) != 0 || snap.State != boarddto.StateIdle {
		t.Fatalf("replay step ran after reset: %+v", snap)
	}
}

func TestMoveQualityUsesWhitePerspectiveOnBothSides(t *testing.T) {
	c, an, _ := newTestCoordinator(t)
	// White to move, +0.3 for White.
	c.OnEngineEvent(uci.Info{RequestID: an.last(t).ID, Depth: 18, ScoreCP: cp(30), PV: []string{"e2e4"}})
	mustMove(t, c, "g2g4")
	// Black to move and +1.5 for Black, i.e. -1.5 for White.
	c.OnEngineEvent(uci.Info{RequestID: an.last(t).ID, Depth: 18, ScoreCP: cp(150), PV: []string{"d7d5"}})

	snap := c.Snapshot()
	if snap.Commentary == nil || snap.Commentary.Quality != string(chess.QualityMistake) {
		t.Fatalf("commentary = %+v", snap.Commentary)
	}
	if snap.Commentary.Loss < 1.79 || snap.Commentary.Loss > 1.81 {
		t.Fatalf("loss = %v", snap.Commentary.Loss)
	}
	if !strings.Contains(snap.Commentary.Suggestion, "e2e4") {
		t.Fatalf("suggestion = %q", snap.Commentary.Suggestion)
	}
}

func TestCommentaryWaitsForEvaluation(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	mustMove(t, c, "e2e4")
	snap := c.Snapshot()
	if snap.Commentary == nil || snap.Commentary.Quality != "" {
		t.Fatalf("quality must wait for both evaluations: %+v", snap.Commentary)
	}
	if !strings.Contains(snap.Commentary.Explanation, "central squares") {
		t.Fatalf("explanation = %q", snap.Commentary.Explanation)
	}
}

func TestPlayBestMove(t *testing.T) {
	c, an, _ := newTestCoordinator(t)
	if _, err := c.PlayBestMove(); !errors.Is(err, ErrNoBestMove) {
		t.Fatalf("expected ErrNoBestMove, got %v", err)
	}
	c.OnEngineEvent(uci.Info{RequestID: an.last(t).ID, Depth: 9, ScoreCP: cp(20), PV: []string{"d2d4", "d7d5"}})
	rec, err := c.PlayBestMove()
	if err != nil {
		t.Fatalf("PlayBestMove: %v", err)
	}
	if rec.UCI != "d2d4" {
		t.Fatalf("played %s", rec.UCI)
	}
}

func TestFinalEventWithoutPVSetsBestMove(t *testing.T) {
	c, an, _ := newTestCoordinator(t)
	c.OnEngineEvent(uci.Info{RequestID: an.last(t).ID, Final: true, BestMove: "g1f3"})
	if snap := c.Snapshot(); len(snap.BestLine.Moves) != 1 || snap.BestLine.Moves[0] != "g1f3" {
		t.Fatalf("best line = %+v", snap.BestLine)
	}
}

func TestSubscribeAndClose(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ch, cancel := c.Subscribe()
	defer cancel()
	mustMove(t, c, "e2e4")
	select {
	case <-ch:
	default:
		t.Fatalf("no change notification")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("subscription should be closed")
	}
	if _, err := c.ApplyMove(chess.MoveSpec{From: "e7", To: "e5"}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
