package engine

import (
	"fmt"
	"strings"
)

const (
	// MateBase is the centipawn value of an immediate mate.
	MateBase = 10000
	// MatePenaltyPerMove is subtracted from MateBase per move of mate distance.
	MatePenaltyPerMove = 50
	// MateCeiling is the flat value the reference policy uses for mate scores
	// after a move.
	MateCeiling = 10000
)

// Score is an engine evaluation from White's point of view: either
// centipawns or a signed mate distance (positive when White mates).
type Score struct {
	Centipawns int
	Mate       int
}

// CP returns a centipawn score.
func CP(cp int) Score { return Score{Centipawns: cp} }

// MateIn returns a mate score; n > 0 means White mates in n.
func MateIn(n int) Score { return Score{Mate: n} }

func (s Score) IsMate() bool { return s.Mate != 0 }

func (s Score) String() string {
	if s.IsMate() {
		return fmt.Sprintf("#%d", s.Mate)
	}
	return fmt.Sprintf("%+dcp", s.Centipawns)
}

// MateToCentipawns converts a mate distance to centipawns with a distance
// penalty: mate in 1 is 9950, mate in 2 is 9900, and so on. Negative
// distances (Black mates) give negative values.
func MateToCentipawns(distance int) int {
	v := MateBase - MatePenaltyPerMove*abs(distance)
	if distance > 0 {
		return v
	}
	return -v
}

// MatePolicy decides how mate scores become centipawns at the two
// evaluation points of a move.
type MatePolicy int

const (
	// MatePolicyReference applies the distance penalty before the move and
	// the flat MateCeiling after it.
	MatePolicyReference MatePolicy = iota
	// MatePolicyUniform applies the distance penalty at both points.
	MatePolicyUniform
)

// ParseMatePolicy parses "reference" or "uniform".
func ParseMatePolicy(s string) (MatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reference":
		return MatePolicyReference, nil
	case "uniform":
		return MatePolicyUniform, nil
	}
	return 0, fmt.Errorf("unknown mate policy %q", s)
}

func (p MatePolicy) String() string {
	if p == MatePolicyUniform {
		return "uniform"
	}
	return "reference"
}

// Before converts the evaluation of the position before a move.
func (p MatePolicy) Before(s Score) int {
	if !s.IsMate() {
		return s.Centipawns
	}
	return MateToCentipawns(s.Mate)
}

// After converts the evaluation of the position after a move.
func (p MatePolicy) After(s Score) int {
	if !s.IsMate() {
		return s.Centipawns
	}
	if p == MatePolicyUniform {
		return MateToCentipawns(s.Mate)
	}
	if s.Mate > 0 {
		return MateCeiling
	}
	return -MateCeiling
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
