// Command analyse scores every game record in a directory with a UCI engine
// and appends per-player accuracy and move-quality counts to a TSV report.
// Games already in the report are skipped, so an interrupted run can simply
// be started again.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessgraph/accuracy/internal/analysis"
	"github.com/freeeve/chessgraph/accuracy/internal/batch"
	"github.com/freeeve/chessgraph/accuracy/internal/book"
	"github.com/freeeve/chessgraph/accuracy/internal/config"
	"github.com/freeeve/chessgraph/accuracy/internal/eco"
	"github.com/freeeve/chessgraph/accuracy/internal/engine"
	"github.com/freeeve/chessgraph/accuracy/internal/logx"
	"github.com/freeeve/chessgraph/accuracy/internal/metrics"
)

const usage = "Usage: analyse [flags] <input_directory> <engine_path> [flags]"

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stderr, os.Getenv))
}

func run(args []string, stderr io.Writer, getenv func(string) string) int {
	cfg, err := parseConfig(args, stderr, getenv, runtime.NumCPU())
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		return 1
	}

	// run_id separates the log lines of successive resumed runs.
	logger := logx.NewLogger(stderr, cfg.LogLevel).With().Str("run_id", uuid.NewString()).Logger()
	logger.Info().
		Str("input", cfg.InputDir).
		Str("engine", cfg.EnginePath).
		Str("output", cfg.Output).
		Int("depth", cfg.Depth).
		Int("workers", cfg.Workers).
		Str("book", cfg.Book).
		Str("mate_policy", cfg.MatePolicy).
		Msg("starting analysis")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint")
			}
		}()
	}

	sum, err := analyse(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("analysis failed")
		return 1
	}
	if sum.Interrupted {
		return 130
	}
	return 0
}

// analyse wires the book, the opening database and the engine into a batch
// run over cfg.InputDir.
func analyse(ctx context.Context, cfg config.Config, logger zerolog.Logger) (batch.Summary, error) {
	policy, err := engine.ParseMatePolicy(cfg.MatePolicy)
	if err != nil {
		return batch.Summary{}, err
	}

	acfg := analysis.Config{
		Depth:      cfg.Depth,
		Launcher:   engine.NewLauncher(cfg.EnginePath, cfg.EngineOptions()),
		MatePolicy: policy,
		Logger:     logger,
	}

	if cfg.Book != "" {
		bk, err := book.Open(cfg.Book)
		if err != nil {
			logger.Warn().Err(err).Msg("opening book unavailable, continuing without it")
		} else {
			defer bk.Close()
			logger.Info().
				Int("positions", bk.Positions()).
				Int("moves", bk.MoveCount()).
				Msg("opening book loaded")
			acfg.Book = bk
		}
	}

	if cfg.ECODir != "" {
		db := eco.NewDatabase()
		if err := db.LoadDir(cfg.ECODir); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.ECODir).Msg("opening database unavailable")
		} else {
			logger.Info().
				Int("openings", db.Count()).
				Int("skipped_rows", db.Skipped()).
				Msg("opening database loaded")
			acfg.ECO = db
		}
	}

	analyser, err := analysis.NewAnalyser(acfg)
	if err != nil {
		return batch.Summary{}, err
	}

	return batch.Run(ctx, batch.Config{
		InputDir:   cfg.InputDir,
		OutputPath: cfg.Output,
		Workers:    cfg.Workers,
		Analyser:   analyser,
		Preflight:  acfg.Launcher,
		Logger:     logger,
	})
}

// parseConfig layers defaults, the -config file, the environment and the
// flags the user set, then takes the positional arguments.
func parseConfig(args []string, stderr io.Writer, getenv func(string) string, numCPU int) (config.Config, error) {
	def := config.Defaults(numCPU)

	fs := flag.NewFlagSet("analyse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}

	var (
		output      string
		depth       int
		workers     int
		bookPath    string
		ecoDir      string
		configPath  string
		matePolicy  string
		metricsAddr string
		logLevel    string
	)
	fs.StringVar(&output, "output", def.Output, "Output TSV file")
	fs.StringVar(&output, "o", def.Output, "Shorthand for -output")
	fs.IntVar(&depth, "depth", def.Depth, "Engine search depth per position")
	fs.IntVar(&depth, "d", def.Depth, "Shorthand for -depth")
	fs.IntVar(&workers, "workers", def.Workers, "Games analysed in parallel")
	fs.IntVar(&workers, "p", def.Workers, "Shorthand for -workers")
	fs.StringVar(&bookPath, "book", "", "Opening book file (see build-book)")
	fs.StringVar(&bookPath, "b", "", "Shorthand for -book")
	fs.StringVar(&ecoDir, "eco-dir", "", "Directory of ECO TSV files for games without an ECO tag")
	fs.StringVar(&configPath, "config", "", "YAML config file")
	fs.StringVar(&matePolicy, "mate-policy", def.MatePolicy, "Mate score conversion: reference or uniform")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (disabled if empty)")
	fs.StringVar(&logLevel, "log-level", def.LogLevel, "Log level")

	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return def, err
	}

	cfg := def
	if configPath != "" {
		if err := config.LoadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output", "o":
			cfg.Output = output
		case "depth", "d":
			cfg.Depth = depth
		case "workers", "p":
			cfg.Workers = workers
		case "book", "b":
			cfg.Book = bookPath
		case "eco-dir":
			cfg.ECODir = ecoDir
		case "mate-policy":
			cfg.MatePolicy = matePolicy
		case "metrics-addr":
			cfg.MetricsAddr = metricsAddr
		case "log-level":
			cfg.LogLevel = logLevel
		}
	})

	switch len(positional) {
	case 2:
		cfg.InputDir = positional[0]
		cfg.EnginePath = positional[1]
	case 1:
		cfg.InputDir = positional[0]
	}
	if cfg.InputDir == "" || cfg.EnginePath == "" || len(positional) > 2 {
		return cfg, fmt.Errorf("%w: %s", errUsage, usage)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseInterleaved parses flags placed before, between or after the
// positional arguments and returns the positionals in order. Everything
// after "--" is positional.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		consumed := len(rest) - fs.NArg()
		if consumed > 0 && rest[consumed-1] == "--" {
			return append(positional, fs.Args()...), nil
		}
		rest = fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		rest = rest[1:]
	}
}
