package board

type activityKind int

const (
	activityInteractive activityKind = iota
	activityOpeningReplay
	activityEngineThinking
)

// activity is the single thing allowed to write the move list right now.
// Replay and engine thinking are variants of the same value, so they cannot overlap.
type activity struct {
	kind   activityKind
	replay *openingSequence
}

type openingSequence struct {
	tokens []string
	next   int
	gen    uint64
}

func interactive() activity { return activity{kind: activityInteractive} }

func thinking() activity { return activity{kind: activityEngineThinking} }

func replaying(seq *openingSequence) activity {
	return activity{kind: activityOpeningReplay, replay: seq}
}

func (a activity) replayActive() bool { return a.kind == activityOpeningReplay && a.replay != nil }

func (a activity) engineThinking() bool { return a.kind == activityEngineThinking }
