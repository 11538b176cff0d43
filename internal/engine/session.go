package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/freeeve/uci"

	"github.com/freeeve/chessgraph/accuracy/internal/metrics"
)

var (
	// ErrEngineLaunch is returned when the engine cannot be started or does
	// not answer the UCI handshake.
	ErrEngineLaunch = errors.New("engine launch")
	// ErrEngine is returned when a running engine fails mid-analysis.
	ErrEngine = errors.New("engine")
)

// Session evaluates positions with one engine process. Calls must not be
// concurrent.
type Session interface {
	Evaluate(pos *pgn.GameState, depth int) (Score, error)
	Stop() error
}

// Launcher starts a new Session.
type Launcher func() (Session, error)

// Options configures the engine process.
type Options struct {
	HashMB  int
	Threads int
	Nice    int // 0 = leave priority unchanged
}

// UCISession drives an external UCI engine.
type UCISession struct {
	path    string
	engine  *uci.Engine
	stopped bool
}

// NewLauncher returns a Launcher that starts a UCISession for path.
func NewLauncher(path string, opts Options) Launcher {
	return func() (Session, error) {
		return Start(path, opts)
	}
}

// Start launches the engine at path, configures it and checks that it speaks
// UCI. A start that fails for any reason is ErrEngineLaunch. Start blocks
// until the engine answers the handshake search.
func Start(path string, opts Options) (*UCISession, error) {
	if opts.HashMB <= 0 {
		opts.HashMB = 16
	}
	if opts.Threads <= 0 {
		opts.Threads = 1
	}

	eng, err := uci.NewEngine(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineLaunch, path, err)
	}
	if err := eng.UCI(); err != nil {
		eng.Close()
		return nil, fmt.Errorf("%w: %s: uci: %v", ErrEngineLaunch, path, err)
	}

	uciOpts := uci.Options{
		Hash:    opts.HashMB,
		Threads: opts.Threads,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	if err := eng.SetOptions(uciOpts); err != nil {
		eng.Close()
		return nil, fmt.Errorf("%w: set options: %v", ErrEngineLaunch, err)
	}

	// After options so the engine is initialized
	if opts.Nice > 0 {
		nice := opts.Nice
		if nice > 19 {
			nice = 19
		}
		if err := eng.SetNice(nice); err != nil {
			eng.Close()
			return nil, fmt.Errorf("%w: set nice: %v", ErrEngineLaunch, err)
		}
	}

	if err := handshake(eng); err != nil {
		eng.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineLaunch, path, err)
	}

	metrics.EnginesStarted.Inc()
	return &UCISession{path: path, engine: eng}, nil
}

// handshake runs a depth 1 search of the starting position. A process that
// is not a UCI engine either exits, which surfaces as a read error, or never
// reports a scored search line.
func handshake(eng *uci.Engine) error {
	if err := eng.SetFEN(pgn.NewStartingPosition().ToFEN()); err != nil {
		return fmt.Errorf("handshake: %v", err)
	}
	results, err := eng.GoDepth(1)
	if err != nil {
		return fmt.Errorf("handshake: %v", err)
	}
	if len(results.Results) == 0 {
		return errors.New("handshake: no search info before bestmove")
	}
	return nil
}

// Evaluate searches pos to a fixed depth and returns the score from White's
// point of view.
func (s *UCISession) Evaluate(pos *pgn.GameState, depth int) (Score, error) {
	if s.stopped {
		return Score{}, fmt.Errorf("%w: session stopped", ErrEngine)
	}

	fen := pos.ToFEN()
	if err := s.engine.SetFEN(fen); err != nil {
		return Score{}, fmt.Errorf("%w: set FEN: %v", ErrEngine, err)
	}

	start := time.Now()
	results, err := s.engine.GoDepth(depth)
	metrics.EvalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return Score{}, fmt.Errorf("%w: go depth %d: %v", ErrEngine, depth, err)
	}
	if len(results.Results) == 0 {
		return Score{}, fmt.Errorf("%w: no results for %s", ErrEngine, fen)
	}

	// Deepest exact score. An engine may stop short of depth, e.g. when the
	// position is a forced mate.
	best := results.Results[0]
	for _, r := range results.Results {
		if r.Depth > best.Depth {
			best = r
		}
	}

	// Engine scores are from the side to move; flip for Black.
	score := WhiteRelative(fen, best.Score)
	if best.Mate {
		return MateIn(score), nil
	}
	return CP(score), nil
}

// Stop terminates the engine process. Only the first call has an effect.
func (s *UCISession) Stop() error {
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.engine.Close()
	return nil
}

// WhiteRelative converts a side-to-move score for the position in fen to
// White's point of view.
func WhiteRelative(fen string, score int) int {
	if BlackToMove(fen) {
		return -score
	}
	return score
}

// BlackToMove reports whether the side-to-move field of fen is "b".
func BlackToMove(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) > 1 && fields[1] == "b"
}
