package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessgraph/accuracy/internal/eco"
	"github.com/freeeve/chessgraph/accuracy/internal/engine"
	"github.com/freeeve/chessgraph/accuracy/internal/metrics"
	"github.com/freeeve/chessgraph/accuracy/internal/movetext"
)

// ErrRecordParse is returned for a game record that cannot be read or
// replayed.
var ErrRecordParse = errors.New("game record")

// Config configures the per-game pipeline.
type Config struct {
	Depth      int
	Launcher   engine.Launcher // starts one engine session per game
	Book       BookLookup      // optional
	ECO        *eco.Database   // optional, names openings lacking an ECO tag
	MatePolicy engine.MatePolicy
	Logger     zerolog.Logger
}

// Result is the outcome of analysing one game: Stats on success, or Err
// with a placeholder Stats carrying only the filename.
type Result struct {
	Stats GameStats
	Err   error
}

// OK reports whether the game was analysed.
func (r Result) OK() bool { return r.Err == nil }

// Success wraps analysed stats.
func Success(stats GameStats) Result { return Result{Stats: stats} }

// Failure builds the result for a game that could not be analysed.
func Failure(filename string, err error) Result {
	return Result{Stats: Placeholder(filename), Err: err}
}

// Analyser runs the analysis pipeline for single games. It keeps no
// per-game state and may be shared by goroutines.
type Analyser struct {
	cfg Config
	log zerolog.Logger
}

// NewAnalyser creates an analyser.
func NewAnalyser(cfg Config) (*Analyser, error) {
	if cfg.Launcher == nil {
		return nil, fmt.Errorf("engine launcher required")
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 18
	}
	return &Analyser{cfg: cfg, log: cfg.Logger}, nil
}

// Analyse analyses the game record at path. It never returns an error and
// never panics: failures become a Failure result and are logged.
func (a *Analyser) Analyse(path string) (res Result) {
	name := filepath.Base(path)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = Failure(name, fmt.Errorf("panic: %v", r))
		}
		if res.Err != nil {
			metrics.GamesAnalysed.WithLabelValues("failure").Inc()
			a.log.Error().Err(res.Err).Str("file", name).Msg("game analysis failed")
			return
		}
		metrics.GamesAnalysed.WithLabelValues("success").Inc()
		a.log.Debug().
			Str("file", name).
			Int("white_moves", res.Stats.White.Total).
			Int("black_moves", res.Stats.Black.Total).
			Dur("elapsed", time.Since(start)).
			Msg("game analysed")
	}()

	stats, err := a.analyse(path)
	if err != nil {
		return Failure(name, err)
	}
	return Success(stats)
}

func (a *Analyser) analyse(path string) (GameStats, error) {
	game, err := ReadGame(path)
	if err != nil {
		return GameStats{}, err
	}
	hdr := ParseHeaders(game.Tags)

	pos := pgn.NewStartingPosition()
	firstMover := White
	if fen, ok := game.Tags["FEN"]; ok && fen != "" {
		pos, err = pgn.NewGame(fen)
		if err != nil {
			return GameStats{}, fmt.Errorf("%w: FEN tag: %v", ErrRecordParse, err)
		}
		if engine.BlackToMove(fen) {
			firstMover = Black
		}
	}

	session, err := a.cfg.Launcher()
	if err != nil {
		return GameStats{}, err
	}
	defer func() {
		if err := session.Stop(); err != nil {
			a.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("engine stop failed")
		}
	}()

	ev := NewMoveEvaluator(session, a.cfg.Book, a.cfg.Depth, a.cfg.MatePolicy)
	for ply, mv := range game.Moves {
		mover := firstMover
		if ply%2 == 1 {
			mover = 1 - firstMover
		}
		rec, err := ev.Play(pos, mv, mover)
		if err != nil {
			return GameStats{}, fmt.Errorf("ply %d: %w", ply+1, err)
		}
		if rec.Book {
			a.log.Debug().
				Str("file", filepath.Base(path)).
				Int("ply", ply+1).
				Str("uci", rec.BookMove.String()).
				Msg("book move")
		}
	}

	opening := hdr.Opening
	if opening == Unknown && game.Tags["FEN"] == "" {
		if o := a.cfg.ECO.Classify(game.Moves); o != nil {
			opening = o.ECO
		}
	}

	return GameStats{
		Filename:    filepath.Base(path),
		WhitePlayer: hdr.White,
		BlackPlayer: hdr.Black,
		WhiteElo:    hdr.WhiteElo,
		BlackElo:    hdr.BlackElo,
		TimeControl: hdr.TimeControl,
		Opening:     opening,
		Result:      hdr.Result,
		White:       ev.White.Summary(),
		Black:       ev.Black.Summary(),
	}, nil
}

// ReadGame reads the first game of a game-record file (.pgn or .pgn.zst).
// Every move token must be legal: a record with an unreadable or illegal
// move is rejected with ErrRecordParse rather than analysed as a shorter or
// different game.
func ReadGame(path string) (*pgn.Game, error) {
	name := filepath.Base(path)
	data, err := readRecord(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRecordParse, name, err)
	}

	parser := pgn.GamesFromReader(bytes.NewReader(data), 1)
	game, ok := <-parser.Games
	parser.Stop()
	if !ok {
		if err := parser.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRecordParse, name, err)
		}
		return nil, fmt.Errorf("%w: %s: no game found", ErrRecordParse, name)
	}
	if game == nil {
		return nil, fmt.Errorf("%w: %s: empty game", ErrRecordParse, name)
	}

	pos := pgn.NewStartingPosition()
	if fen := game.Tags["FEN"]; fen != "" {
		if pos, err = pgn.NewGame(fen); err != nil {
			return nil, fmt.Errorf("%w: %s: FEN tag: %v", ErrRecordParse, name, err)
		}
	}
	moves, err := movetext.Parse(pos, movetext.Extract(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRecordParse, name, err)
	}
	game.Moves = moves
	return game, nil
}

func readRecord(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".zst") {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
