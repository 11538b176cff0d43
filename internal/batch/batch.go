// Package batch analyses a directory of game records in parallel, appending
// one report row per game and skipping games an earlier run already wrote.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chessgraph/accuracy/internal/analysis"
	"github.com/freeeve/chessgraph/accuracy/internal/engine"
	"github.com/freeeve/chessgraph/accuracy/internal/metrics"
	"github.com/freeeve/chessgraph/accuracy/internal/report"
)

// ErrInput is returned for an unusable input directory or engine.
var ErrInput = errors.New("input")

const (
	// DefaultProgressEvery is how often, in completed games, progress is
	// logged.
	DefaultProgressEvery = 10
	// DefaultPreflightTimeout bounds the preflight engine start.
	DefaultPreflightTimeout = 30 * time.Second
)

// GameAnalyser analyses one game file. Implementations must not panic and
// must be safe for concurrent use.
type GameAnalyser interface {
	Analyse(path string) analysis.Result
}

// Config configures a batch run.
type Config struct {
	InputDir   string
	OutputPath string
	Workers    int
	Analyser   GameAnalyser

	// Preflight, if set, is started and stopped once before any game is
	// dispatched so a broken engine fails the run instead of every game.
	Preflight        engine.Launcher
	PreflightTimeout time.Duration // default DefaultPreflightTimeout

	ProgressEvery int
	Logger        zerolog.Logger
}

// Summary describes a finished run.
type Summary struct {
	Discovered  int // game files in the input directory
	Skipped     int // already present in the report
	Analysed    int // rows written for successful games
	Failed      int // placeholder rows written
	Interrupted bool
}

// Written returns the number of rows appended by the run.
func (s Summary) Written() int { return s.Analysed + s.Failed }

// Discover lists the game files (.pgn, .pgn.zst) directly in dir, sorted by
// name.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: input directory: %v", ErrInput, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsGameFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no game files in %s", ErrInput, dir)
	}
	sort.Strings(files)
	return files, nil
}

// IsGameFile reports whether name looks like a game record.
func IsGameFile(name string) bool {
	return strings.HasSuffix(name, ".pgn") || strings.HasSuffix(name, ".pgn.zst")
}

// Pending drops files whose base name is in done, keeping order.
func Pending(files []string, done map[string]struct{}) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := done[filepath.Base(f)]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Run analyses every pending game in cfg.InputDir. Cancelling ctx stops
// dispatch; games already being analysed are finished and written.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	log := cfg.Logger
	var sum Summary

	if cfg.Analyser == nil {
		return sum, fmt.Errorf("analyser required")
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	every := cfg.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	files, err := Discover(cfg.InputDir)
	if err != nil {
		return sum, err
	}
	sum.Discovered = len(files)

	done, err := report.ReadResumeSet(cfg.OutputPath)
	if err != nil {
		log.Warn().Err(err).Str("output", cfg.OutputPath).Msg("could not read existing results, treating as empty")
		done = map[string]struct{}{}
	}
	pending := Pending(files, done)
	sum.Skipped = len(files) - len(pending)

	log.Info().
		Int("found", len(files)).
		Int("already_analysed", sum.Skipped).
		Int("pending", len(pending)).
		Int("workers", workers).
		Msg("input scanned")

	if len(pending) == 0 {
		log.Info().Msg("nothing to do")
		return sum, nil
	}

	if cfg.Preflight != nil {
		if err := preflight(ctx, cfg.Preflight, cfg.PreflightTimeout, log); err != nil {
			if ctx.Err() != nil {
				sum.Interrupted = true
				log.Warn().Msg("interrupted before analysis started")
				return sum, nil
			}
			return sum, err
		}
	}

	out, err := report.OpenWriter(cfg.OutputPath)
	if err != nil {
		return sum, err
	}

	metrics.GamesPending.Set(float64(len(pending)))
	defer metrics.GamesPending.Set(0)

	start := time.Now()
	err = dispatch(ctx, cfg.Analyser, pending, workers, func(r analysis.Result) error {
		if err := out.Append(r.Stats); err != nil {
			return err
		}
		metrics.GamesPending.Dec()
		if r.OK() {
			sum.Analysed++
		} else {
			sum.Failed++
		}
		n := sum.Written()
		if n%every == 0 || n == len(pending) {
			elapsed := time.Since(start)
			log.Info().
				Int("done", n).
				Int("total", len(pending)).
				Int("failed", sum.Failed).
				Float64("games_per_sec", float64(n)/elapsed.Seconds()).
				Dur("elapsed", elapsed).
				Msgf("progress: %d/%d games analysed", n, len(pending))
		}
		return nil
	})
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close report: %w", cerr)
	}
	if err != nil {
		return sum, err
	}

	sum.Interrupted = ctx.Err() != nil && sum.Written() < len(pending)
	ev := log.Info()
	if sum.Interrupted {
		ev = log.Warn()
	}
	ev.
		Int("analysed", sum.Analysed).
		Int("failed", sum.Failed).
		Int("remaining", len(pending)-sum.Written()).
		Bool("interrupted", sum.Interrupted).
		Dur("elapsed", time.Since(start)).
		Msg("batch complete")
	return sum, nil
}

// preflight starts and stops one engine session. An engine that does not
// finish its handshake within timeout fails the run; its launch goroutine is
// left to stop the session if it ever starts.
func preflight(ctx context.Context, launch engine.Launcher, timeout time.Duration, log zerolog.Logger) error {
	if timeout <= 0 {
		timeout = DefaultPreflightTimeout
	}
	type launched struct {
		s   engine.Session
		err error
	}
	done := make(chan launched)
	abandoned := make(chan struct{})
	go func() {
		s, err := launch()
		select {
		case done <- launched{s, err}:
		case <-abandoned:
			if err == nil {
				s.Stop()
			}
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case l := <-done:
		if l.err != nil {
			return fmt.Errorf("%w: engine: %v", ErrInput, l.err)
		}
		if err := l.s.Stop(); err != nil {
			log.Warn().Err(err).Msg("preflight engine stop failed")
		}
		return nil
	case <-timer.C:
		close(abandoned)
		return fmt.Errorf("%w: engine: no handshake within %s", ErrInput, timeout)
	case <-ctx.Done():
		close(abandoned)
		return ctx.Err()
	}
}

// dispatch fans paths out to workers and hands every result to collect on
// a single goroutine, in completion order. Cancelling ctx only stops new
// paths from being sent. An error from collect aborts the run.
func dispatch(ctx context.Context, a GameAnalyser, paths []string, workers int, collect func(analysis.Result) error) error {
	g, gctx := errgroup.WithContext(context.Background())

	jobs := make(chan string)
	results := make(chan analysis.Result, workers)

	g.Go(func() error {
		defer close(jobs)
		for _, p := range paths {
			if ctx.Err() != nil || gctx.Err() != nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-gctx.Done():
				return nil
			case jobs <- p:
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for p := range jobs {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r := a.Analyse(p)
				select {
				case results <- r:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		wg.Wait()
		close(results)
		return nil
	})

	g.Go(func() error {
		for r := range results {
			if err := collect(r); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}
