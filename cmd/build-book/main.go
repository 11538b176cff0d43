// Command build-book builds an opening book file from PGN game collections.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/freeeve/chessgraph/accuracy/internal/batch"
	"github.com/freeeve/chessgraph/accuracy/internal/book"
	"github.com/freeeve/chessgraph/accuracy/internal/logx"
)

func main() {
	var (
		inputPath = flag.String("pgn", "", "PGN file or directory of PGN files (supports .zst)")
		outPath   = flag.String("out", "book.bin", "Output book file")
		maxPlies  = flag.Int("max-plies", 16, "Plies per game to include")
		ratingMin = flag.Int("rating-min", 0, "Rating floor for both players (0 = no filter)")
		minCount  = flag.Int("min-count", 1, "Drop moves seen fewer times than this")
		logLevel  = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: build-book -pgn <file|dir> -out <book.bin> [options]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := logx.NewLogger(os.Stderr, *logLevel)

	files, err := inputFiles(*inputPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("find input")
	}
	logger.Info().
		Int("files", len(files)).
		Str("out", *outPath).
		Int("max_plies", *maxPlies).
		Int("rating_min", *ratingMin).
		Int("min_count", *minCount).
		Msg("starting book build")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	builder := book.NewBuilder(book.BuilderConfig{
		MaxPlies:  *maxPlies,
		RatingMin: *ratingMin,
		MinCount:  *minCount,
		Logger:    logger,
	})

	start := time.Now()
	for _, f := range files {
		if err := builder.AddPGN(ctx, f); err != nil {
			logger.Fatal().Err(err).Str("file", f).Msg("read games")
		}
		logger.Info().Str("file", filepath.Base(f)).Int64("games", builder.Games()).Msg("file done")
	}

	bk := builder.Build()
	if err := bk.WriteFile(*outPath); err != nil {
		logger.Fatal().Err(err).Msg("write book")
	}
	logger.Info().
		Int64("games", builder.Games()).
		Int64("skipped", builder.Skipped()).
		Int("positions", bk.Positions()).
		Int("moves", bk.MoveCount()).
		Dur("elapsed", time.Since(start)).
		Msg("book written")
}

func inputFiles(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}
	return batch.Discover(path)
}
