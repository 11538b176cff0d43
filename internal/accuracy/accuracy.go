// Package accuracy converts engine evaluations into win percentages and
// per-move accuracy scores.
//
// Win percentage uses a logistic curve over centipawns (White's view):
//
//	win% = 50 + 50 * (2 / (1 + exp(-k*cp)) - 1)
//
// Move accuracy decays exponentially with the win-percentage loss:
//
//	acc = 103.1668 * exp(-0.04354 * loss) - 3.1669, clamped to [0, 100]
package accuracy

import "math"

const (
	// WinPercentSlope is k in the win-percentage curve.
	WinPercentSlope = 0.00368208

	AccuracyScale  = 103.1668
	AccuracyDecay  = 0.04354
	AccuracyOffset = 3.1669

	MaxAccuracy = 100.0
	MinAccuracy = 0.0
)

// Pair is an evaluation before and after a move, in centipawns, from the
// mover's point of view.
type Pair struct {
	Before int
	After  int
}

// WinPercent maps a centipawn score to a win percentage in (0, 100).
func WinPercent(cp int) float64 {
	return 50 + 50*(2/(1+math.Exp(-WinPercentSlope*float64(cp)))-1)
}

// MoveAccuracy returns the accuracy of a move that took the mover from
// winBefore to winAfter. A move that does not lose win percentage scores 100.
func MoveAccuracy(winBefore, winAfter float64) float64 {
	loss := winBefore - winAfter
	if loss <= 0 {
		return MaxAccuracy
	}
	acc := AccuracyScale*math.Exp(-AccuracyDecay*loss) - AccuracyOffset
	return math.Max(MinAccuracy, math.Min(MaxAccuracy, acc))
}

// Average returns the mean move accuracy over pairs, or 0 for no pairs.
func Average(pairs []Pair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pairs {
		sum += MoveAccuracy(WinPercent(p.Before), WinPercent(p.After))
	}
	return sum / float64(len(pairs))
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
