package chess

import "math"

// Quality grades a move by how much evaluation the mover gave away.
type Quality string

const (
	QualityExcellent  Quality = "excellent"
	QualityGood       Quality = "good"
	QualityInaccurate Quality = "inaccurate"
	QualityMistake    Quality = "mistake"
	QualityBlunder    Quality = "blunder"
)

// band upper bounds in pawns, inclusive
var qualityBands = []struct {
	limit   float64
	quality Quality
}{
	{0.2, QualityExcellent},
	{0.7, QualityGood},
	{1.5, QualityInaccurate},
	{3.0, QualityMistake},
}

// Loss is the evaluation the mover gave away, in pawns. Both inputs are
// White-perspective. Improvements yield 0; non-finite inputs count as 0.
func Loss(before, after float64, mover Color) float64 {
	before, after = finite(before), finite(after)
	var loss float64
	if mover == Black {
		loss = after - before
	} else {
		loss = before - after
	}
	if loss < 0 {
		return 0
	}
	return loss
}

// Classify buckets the mover's loss into a Quality. It never fails.
func Classify(before, after float64, mover Color) Quality {
	return ClassifyLoss(Loss(before, after, mover))
}

func ClassifyLoss(loss float64) Quality {
	loss = finite(loss)
	if loss < 0 {
		loss = 0
	}
	for _, b := range qualityBands {
		if loss <= b.limit {
			return b.quality
		}
	}
	return QualityBlunder
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
