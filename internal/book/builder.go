package book

import (
	"context"
	"sort"
	"strconv"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessgraph/accuracy/internal/movetext"
)

// BuilderConfig configures book construction from game collections.
type BuilderConfig struct {
	MaxPlies  int // Plies per game to include (default 16)
	RatingMin int // Both players must be rated at least this (0 = no filter)
	MinCount  int // Moves seen fewer times are dropped (default 1)
	Logger    zerolog.Logger
}

// Builder accumulates move counts per position from replayed games.
type Builder struct {
	cfg    BuilderConfig
	counts map[pgn.PackedPosition]map[Move]int

	games   int64
	skipped int64
}

// NewBuilder creates a builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.MaxPlies <= 0 {
		cfg.MaxPlies = 16
	}
	if cfg.MinCount <= 0 {
		cfg.MinCount = 1
	}
	return &Builder{
		cfg:    cfg,
		counts: make(map[pgn.PackedPosition]map[Move]int),
	}
}

// AddMoves replays moves from the starting position and counts the first
// MaxPlies of them. Replay stops at the first move that cannot be applied;
// that move is not counted. It returns the number of plies counted.
func (bl *Builder) AddMoves(moves []pgn.Mv) int {
	pos := pgn.NewStartingPosition()
	plies := 0
	for _, mv := range moves {
		if plies >= bl.cfg.MaxPlies {
			break
		}
		key := pos.Pack()
		if err := pgn.ApplyMove(pos, mv); err != nil {
			break
		}
		m := bl.counts[key]
		if m == nil {
			m = make(map[Move]int)
			bl.counts[key] = m
		}
		m[FromMv(mv)]++
		plies++
	}
	return plies
}

// AddSAN is AddMoves for a SAN move list. The whole list must replay.
func (bl *Builder) AddSAN(sans []string) (int, error) {
	moves, err := movetext.Replay(pgn.NewStartingPosition(), sans)
	if err != nil {
		return 0, err
	}
	return bl.AddMoves(moves), nil
}

// AddPGN adds every game of a PGN file (.pgn or .pgn.zst) that passes the
// rating filter. Games with a FEN tag are skipped.
func (bl *Builder) AddPGN(ctx context.Context, path string) error {
	parser := pgn.Games(path)

	stopped := false
gameLoop:
	for game := range parser.Games {
		select {
		case <-ctx.Done():
			if !stopped {
				parser.Stop()
				stopped = true
			}
			break gameLoop
		default:
		}

		// Games from a set-up position do not start where AddMoves replays.
		if game.Tags["FEN"] != "" {
			bl.skipped++
			continue
		}
		if bl.cfg.RatingMin > 0 {
			white := parseRating(game.Tags["WhiteElo"])
			black := parseRating(game.Tags["BlackElo"])
			if white < bl.cfg.RatingMin || black < bl.cfg.RatingMin {
				bl.skipped++
				continue
			}
		}
		if bl.AddMoves(game.Moves) == 0 {
			bl.skipped++
			continue
		}
		bl.games++

		if bl.games%10000 == 0 {
			bl.cfg.Logger.Info().
				Int64("games", bl.games).
				Int64("skipped", bl.skipped).
				Int("positions", len(bl.counts)).
				Msg("book build progress")
		}
	}

	if err := parser.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// Games returns the number of games counted so far.
func (bl *Builder) Games() int64 { return bl.games }

// Skipped returns the number of games rejected by the filters.
func (bl *Builder) Skipped() int64 { return bl.skipped }

// Build returns the book of moves seen at least MinCount times.
func (bl *Builder) Build() *Book {
	b := New()
	for pos, moves := range bl.counts {
		for mv, n := range moves {
			if n >= bl.cfg.MinCount {
				b.Add(pos, mv)
			}
		}
	}
	for _, moves := range b.entries {
		sort.Slice(moves, func(i, j int) bool { return moves[i] < moves[j] })
	}
	return b
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}
