package board

import (
	"github.com/park285/chess-insights-board/internal/chess"
	"github.com/park285/chess-insights-board/pkg/boarddto"
)

const bestLinePreview = 8

// Snapshot copies the board state for presentation.
func (c *Coordinator) Snapshot() boarddto.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos := c.position
	snap := boarddto.Snapshot{
		SessionID:   c.id,
		FEN:         pos.FEN(),
		Turn:        string(pos.Turn()),
		Status:      pos.Status(),
		InCheck:     pos.InCheck(),
		GameOver:    pos.IsGameOver(),
		Moves:       make([]boarddto.MoveView, 0, len(c.moves)),
		Cursor:      c.cursor,
		State:       c.stateLocked(),
		AutoPlay:    c.autoPlay,
		EngineColor: string(c.engineAs),
		Depth:       c.depth,
		Phase:       string(pos.Phase()),
		Notice:      c.notice,
	}
	snap.CanDrag = !c.act.replayActive() && !c.engineToMoveLocked() && !snap.GameOver && !c.closed

	for i := range c.moves {
		snap.Moves = append(snap.Moves, moveView(i, c.moves[i]))
	}
	if c.eval != nil {
		snap.Evaluation = evaluationView(*c.eval)
	}

	line := c.bestLine
	snap.BestLine.Moves = []string{}
	if len(line) > bestLinePreview {
		line = line[:bestLinePreview]
		snap.BestLine.Truncated = true
	}
	snap.BestLine.Moves = append(snap.BestLine.Moves, line...)
	if best := c.bestMoveLocked(); len(best) >= 4 {
		snap.BestMove = &boarddto.Arrow{From: best[0:2], To: best[2:4]}
	}

	var last *chess.MoveRecord
	if c.cursor >= 0 && c.cursor < len(c.moves) {
		last = &c.moves[c.cursor]
		snap.LastMove = &boarddto.Arrow{From: last.From, To: last.To}
	}
	snap.Commentary = c.commentaryLocked(last, pos.Phase())

	if eco, name := pos.Opening(); name != "" {
		snap.Opening = &boarddto.OpeningName{ECO: eco, Name: name}
	}
	if c.act.replayActive() {
		snap.Replay = &boarddto.ReplayState{Total: len(c.act.replay.tokens), Next: c.act.replay.next}
	}
	return snap
}

func (c *Coordinator) stateLocked() string {
	switch {
	case c.act.replayActive():
		return boarddto.StateOpeningReplay
	case c.act.engineThinking():
		return boarddto.StateEngineThinking
	case len(c.moves) == 0:
		return boarddto.StateIdle
	case c.cursor < len(c.moves)-1:
		return boarddto.StateBrowsing
	default:
		return boarddto.StateLive
	}
}

// commentaryLocked grades the last move once the engine has evaluated both the
// position it was played from and the position it produced.
func (c *Coordinator) commentaryLocked(last *chess.MoveRecord, phase chess.Phase) *boarddto.Commentary {
	if last == nil {
		cm := chess.Comment(nil, 0, 0, "", phase)
		return &boarddto.Commentary{
			Quality:     string(cm.Quality),
			Explanation: c.msgs.Text(cm.Explanation.Key, cm.Explanation.Data),
		}
	}
	if c.prior == nil || c.eval == nil {
		note := chess.Explain(last, phase)
		return &boarddto.Commentary{Explanation: c.msgs.Text(note.Key, note.Data)}
	}
	cm := chess.Comment(last, c.prior.Pawns, c.eval.Pawns, c.priorBest, phase)
	out := &boarddto.Commentary{
		Quality:     string(cm.Quality),
		Loss:        cm.Loss,
		Explanation: c.msgs.Text(cm.Explanation.Key, cm.Explanation.Data),
	}
	if cm.Suggestion != nil {
		out.Suggestion = c.msgs.Text(cm.Suggestion.Key, cm.Suggestion.Data)
	}
	return out
}

func moveView(i int, rec chess.MoveRecord) boarddto.MoveView {
	mv := boarddto.MoveView{Ply: i + 1, SAN: rec.SAN, UCI: rec.UCI, Color: string(rec.Color)}
	for _, f := range rec.Flags {
		mv.Flags = append(mv.Flags, string(f))
	}
	return mv
}

// MoveViewOf renders a single record the way Snapshot lists it.
func MoveViewOf(ply int, rec chess.MoveRecord) boarddto.MoveView {
	return moveView(ply-1, rec)
}

func evaluationView(ev chess.Evaluation) *boarddto.Evaluation {
	out := &boarddto.Evaluation{
		Pawns:       ev.Pawns,
		Text:        ev.Text(),
		Description: ev.Description(),
		Percentage:  ev.Percentage(),
	}
	if ev.Mate != nil {
		m := *ev.Mate
		out.Mate = &m
	}
	return out
}

// Evaluation returns the displayed evaluation, if the engine has reported one.
func (c *Coordinator) Evaluation() (chess.Evaluation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eval == nil {
		return chess.Evaluation{}, false
	}
	return *c.eval, true
}
