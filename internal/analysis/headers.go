package analysis

import (
	"strconv"
	"strings"
)

// Unknown is used for missing header values.
const Unknown = "unknown"

const (
	ResultWhiteWin = "1-0"
	ResultBlackWin = "0-1"
	ResultDraw     = "1/2-1/2"
)

// TimeControl is the speed class of a game.
type TimeControl string

const (
	TimeControlBullet    TimeControl = "bullet"
	TimeControlBlitz     TimeControl = "blitz"
	TimeControlRapid     TimeControl = "rapid"
	TimeControlClassical TimeControl = "classical"
	TimeControlDaily     TimeControl = "daily"
	TimeControlUnknown   TimeControl = Unknown
)

// Upper bounds, in seconds of base time.
const (
	bulletBelow = 180
	blitzUpTo   = 300
	rapidUpTo   = 3600
)

// Headers are the game-record tags the report uses.
type Headers struct {
	White       string
	Black       string
	WhiteElo    int
	BlackElo    int
	TimeControl TimeControl
	Opening     string
	Result      int
}

// ParseHeaders extracts Headers from PGN tags. It never fails: missing or
// malformed values fall back to defaults.
func ParseHeaders(tags map[string]string) Headers {
	return Headers{
		White:       tagOr(tags, "White", Unknown),
		Black:       tagOr(tags, "Black", Unknown),
		WhiteElo:    ParseRating(tags["WhiteElo"]),
		BlackElo:    ParseRating(tags["BlackElo"]),
		TimeControl: ClassifyTimeControl(tags["TimeControl"]),
		Opening:     tagOr(tags, "ECO", Unknown),
		Result:      ParseResult(tags["Result"]),
	}
}

func tagOr(tags map[string]string, key, def string) string {
	if v, ok := tags[key]; ok {
		return v
	}
	return def
}

// ParseRating parses an Elo tag, 0 when missing or not a number ("?", "-").
func ParseRating(s string) int {
	r, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return r
}

// ParseResult maps a result tag to 1 (White won), -1 (Black won) or 0.
// Unfinished and unknown results count as draws.
func ParseResult(s string) int {
	switch s {
	case ResultWhiteWin:
		return 1
	case ResultBlackWin:
		return -1
	}
	return 0
}

// ClassifyTimeControl classifies a TimeControl tag such as "180+2" by its
// base time. Correspondence controls ("1/86400") are daily.
func ClassifyTimeControl(tc string) TimeControl {
	tc = strings.TrimSpace(tc)
	if tc == "" || tc == "-" {
		return TimeControlUnknown
	}
	if strings.Contains(tc, "/") {
		return TimeControlDaily
	}

	base, _, _ := strings.Cut(tc, "+")
	seconds, err := strconv.Atoi(strings.TrimSpace(base))
	if err != nil {
		return TimeControlUnknown
	}
	switch {
	case seconds < bulletBelow:
		return TimeControlBullet
	case seconds <= blitzUpTo:
		return TimeControlBlitz
	case seconds <= rapidUpTo:
		return TimeControlRapid
	default:
		return TimeControlClassical
	}
}
