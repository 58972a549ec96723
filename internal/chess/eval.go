package chess

import (
	"fmt"
	"math"
)

const (
	// MatePawns is the saturated magnitude of a forced mate, matching the
	// 30000 centipawn mate value the engine adapter reports.
	MatePawns = 300.0

	minDisplayPercent = 5.0
	maxDisplayPercent = 95.0
	logisticSlope     = 0.4
	equalThreshold    = 0.05
)

// Evaluation is an engine score seen from White's side.
// Mate is non-nil for forced mates; positive values mean White mates.
// For a mate of zero, MatedSide names the side already checkmated.
type Evaluation struct {
	Pawns     float64
	Mate      *int
	MatedSide Color
}

// Normalize converts a side-to-move score (centipawns or mate distance)
// into White-perspective pawns. A mate distance always dominates the raw score.
func Normalize(raw *int, mate *int, sideToMove Color) Evaluation {
	sign := 1
	if sideToMove == Black {
		sign = -1
	}
	if mate != nil {
		m := *mate
		ev := Evaluation{}
		w := m * sign
		ev.Mate = &w
		if m == 0 {
			// the side to move is already mated
			ev.MatedSide = sideToMove
			if ev.MatedSide == NoColor {
				ev.MatedSide = White
			}
		}
		ev.Pawns = MatePawns * float64(ev.winner())
		return ev
	}
	if raw == nil {
		return Evaluation{}
	}
	return Evaluation{Pawns: float64(*raw) / 100 * float64(sign)}
}

// winner is +1 when White delivers mate, -1 when Black does and 0 without mate.
func (e Evaluation) winner() int {
	if !e.IsMate() {
		return 0
	}
	switch {
	case *e.Mate > 0:
		return 1
	case *e.Mate < 0:
		return -1
	case e.MatedSide == Black:
		return 1
	default:
		return -1
	}
}

// IsMate reports whether the evaluation is a forced mate.
func (e Evaluation) IsMate() bool { return e.Mate != nil }

// Percentage is White's share of the evaluation bar. Mates map to exactly
// 0 or 100 by the mating side; a mate of zero uses MatedSide.
func (e Evaluation) Percentage() float64 {
	if e.IsMate() {
		if e.winner() > 0 {
			return 100
		}
		return 0
	}
	return DisplayPercentage(e.Pawns)
}

// DisplayPercentage maps a non-mate score in White-perspective pawns to
// White's bar share along a logistic curve, clamped to [5, 95].
func DisplayPercentage(pawns float64) float64 {
	if math.IsNaN(pawns) {
		pawns = 0
	}
	pct := 100 / (1 + math.Exp(-logisticSlope*pawns))
	return math.Max(minDisplayPercent, math.Min(maxDisplayPercent, pct))
}

// Text is the short label printed on the bar: "M3", "+1.2", "-12" or "0.0".
func (e Evaluation) Text() string {
	if e.IsMate() {
		m := *e.Mate
		if m < 0 {
			m = -m
		}
		return fmt.Sprintf("M%d", m)
	}
	abs := math.Abs(e.Pawns)
	if abs < equalThreshold {
		return "0.0"
	}
	sign := ""
	if e.Pawns > 0 {
		sign = "+"
	}
	if abs >= 10 {
		return fmt.Sprintf("%s%.0f", sign, e.Pawns)
	}
	return fmt.Sprintf("%s%.1f", sign, e.Pawns)
}

// Description names the size of the advantage for the side that holds it.
func (e Evaluation) Description() string {
	if e.IsMate() {
		m := *e.Mate
		if m < 0 {
			m = -m
		}
		if m == 0 {
			return "Checkmate"
		}
		return fmt.Sprintf("Checkmate in %d", m)
	}
	abs := math.Abs(e.Pawns)
	side := "White"
	if e.Pawns < 0 {
		side = "Black"
	}
	switch {
	case abs >= 10:
		return side + ": Completely winning"
	case abs >= 5:
		return side + ": Decisive advantage"
	case abs >= 3:
		return side + ": Major advantage"
	case abs >= 1.5:
		return side + ": Clear advantage"
	case abs >= 0.5:
		return side + ": Slight advantage"
	default:
		return "Equal position"
	}
}
