package analysis

import (
	"github.com/freeeve/chessgraph/accuracy/internal/accuracy"
)

// PlayerStats accumulates one side's moves during a game.
// Best+Good+Inaccuracies+Mistakes+Blunders+Book == TotalMoves().
type PlayerStats struct {
	Best         int
	Good         int
	Inaccuracies int
	Mistakes     int
	Blunders     int
	Book         int

	// Pairs holds (before, after) evaluations from this player's point of
	// view, one per engine-evaluated move.
	Pairs []accuracy.Pair
}

func (p *PlayerStats) record(c Classification, pair accuracy.Pair) {
	switch c {
	case Best:
		p.Best++
	case Good:
		p.Good++
	case Inaccuracy:
		p.Inaccuracies++
	case Mistake:
		p.Mistakes++
	default:
		p.Blunders++
	}
	p.Pairs = append(p.Pairs, pair)
}

// TotalMoves is the number of moves played, book moves included.
func (p *PlayerStats) TotalMoves() int {
	return len(p.Pairs) + p.Book
}

// Summary freezes the accumulator into its reported form.
func (p *PlayerStats) Summary() PlayerSummary {
	return PlayerSummary{
		Accuracy:     accuracy.Round1(accuracy.Average(p.Pairs)),
		Best:         p.Best,
		Good:         p.Good,
		Inaccuracies: p.Inaccuracies,
		Mistakes:     p.Mistakes,
		Blunders:     p.Blunders,
		Book:         p.Book,
		Total:        p.TotalMoves(),
	}
}

// PlayerSummary is one side's result for a game.
type PlayerSummary struct {
	Accuracy     float64
	Best         int
	Good         int
	Inaccuracies int
	Mistakes     int
	Blunders     int
	Book         int
	Total        int
}

// GameStats is the analysed result of one game.
type GameStats struct {
	Filename    string
	WhitePlayer string
	BlackPlayer string
	WhiteElo    int
	BlackElo    int
	TimeControl TimeControl
	Opening     string
	Result      int // 1 White won, -1 Black won, 0 draw or unknown
	White       PlayerSummary
	Black       PlayerSummary
}

// Placeholder is the row written for a game that could not be analysed.
func Placeholder(filename string) GameStats {
	return GameStats{
		Filename:    filename,
		TimeControl: TimeControlUnknown,
		Opening:     Unknown,
	}
}
