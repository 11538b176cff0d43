package analysis

// Classification is the quality of a non-book move.
type Classification int

const (
	Best Classification = iota
	Good
	Inaccuracy
	Mistake
	Blunder
)

// Inclusive upper bounds of centipawn loss per classification. Anything
// above MistakeMaxLoss is a blunder.
const (
	BestMaxLoss       = 10
	GoodMaxLoss       = 25
	InaccuracyMaxLoss = 50
	MistakeMaxLoss    = 100
)

// Classify maps a non-negative centipawn loss to a Classification.
func Classify(loss int) Classification {
	switch {
	case loss <= BestMaxLoss:
		return Best
	case loss <= GoodMaxLoss:
		return Good
	case loss <= InaccuracyMaxLoss:
		return Inaccuracy
	case loss <= MistakeMaxLoss:
		return Mistake
	default:
		return Blunder
	}
}

func (c Classification) String() string {
	switch c {
	case Best:
		return "best"
	case Good:
		return "good"
	case Inaccuracy:
		return "inaccuracy"
	case Mistake:
		return "mistake"
	case Blunder:
		return "blunder"
	}
	return "unknown"
}

// Color is the side making a move.
type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}
