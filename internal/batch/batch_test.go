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
	"sync/atomic"
	"testing"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessgraph/accuracy/internal/analysis"
	"github.com/freeeve/chessgraph/accuracy/internal/engine"
	"github.com/freeeve/chessgraph/accuracy/internal/report"
)

type fakeAnalyser struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeAnalyser) Analyse(path string) analysis.Result {
	name := filepath.Base(path)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	fail := f.fail[name]
	f.mu.Unlock()

	if fail {
		return analysis.Failure(name, errors.New("bad game"))
	}
	return analysis.Success(analysis.GameStats{
		Filename:    name,
		WhitePlayer: "w",
		BlackPlayer: "b",
		TimeControl: analysis.TimeControlBlitz,
		Opening:     "C20",
		Result:      1,
		White:       analysis.PlayerSummary{Accuracy: 90, Best: 3, Total: 3},
		Black:       analysis.PlayerSummary{Accuracy: 80, Best: 2, Good: 1, Total: 3},
	})
}

func (f *fakeAnalyser) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

type nopSession struct{ stopped *int }

func (s nopSession) Evaluate(*pgn.GameState, int) (engine.Score, error) { return engine.CP(0), nil }
func (s nopSession) Stop() error {
	*s.stopped++
	return nil
}

type countingSession struct{ stops *atomic.Int32 }

func (s countingSession) Evaluate(*pgn.GameState, int) (engine.Score, error) {
	return engine.CP(0), nil
}
func (s countingSession) Stop() error {
	s.stops.Add(1)
	return nil
}

func inputDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("1. e4 *\n"), 0o644))
	}
	return dir
}

func testConfig(dir, out string, a GameAnalyser) Config {
	return Config{
		InputDir:   dir,
		OutputPath: out,
		Workers:    3,
		Analyser:   a,
		Logger:     zerolog.Nop(),
	}
}

func readRows(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.NotEmpty(t, lines)
	require.Equal(t, strings.Join(report.Columns, "\t"), lines[0])
	return lines[1:]
}

func firstColumns(rows []string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i], _, _ = strings.Cut(r, "\t")
	}
	sort.Strings(out)
	return out
}

func TestDiscover(t *testing.T) {
	dir := inputDir(t, "b.pgn", "a.pgn", "c.pgn.zst", "notes.txt", "d.zst")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pgn"), 0o755))

	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.pgn"),
		filepath.Join(dir, "b.pgn"),
		filepath.Join(dir, "c.pgn.zst"),
	}, files)
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrInput)

	_, err = Discover(inputDir(t, "readme.md"))
	assert.ErrorIs(t, err, ErrInput)
}

func TestPending(t *testing.T) {
	files := []string{"/in/a.pgn", "/in/b.pgn", "/in/c.pgn"}
	got := Pending(files, map[string]struct{}{"b.pgn": {}, "z.pgn": {}})
	assert.Equal(t, []string{"/in/a.pgn", "/in/c.pgn"}, got)
}

func TestRun_AnalysesEveryGame(t *testing.T) {
	dir := inputDir(t, "g1.pgn", "g2.pgn", "g3.pgn", "g4.pgn", "g5.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")
	fa := &fakeAnalyser{}

	sum, err := Run(context.Background(), testConfig(dir, out, fa))
	require.NoError(t, err)
	assert.Equal(t, Summary{Discovered: 5, Analysed: 5}, sum)

	rows := readRows(t, out)
	assert.Equal(t, []string{"g1.pgn", "g2.pgn", "g3.pgn", "g4.pgn", "g5.pgn"}, firstColumns(rows))
	assert.Equal(t, []string{"g1.pgn", "g2.pgn", "g3.pgn", "g4.pgn", "g5.pgn"}, fa.called())
}

func TestRun_SecondRunIsNoOp(t *testing.T) {
	dir := inputDir(t, "g1.pgn", "g2.pgn", "g3.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")

	_, err := Run(context.Background(), testConfig(dir, out, &fakeAnalyser{fail: map[string]bool{"g2.pgn": true}}))
	require.NoError(t, err)
	before, err := os.ReadFile(out)
	require.NoError(t, err)

	fa := &fakeAnalyser{}
	sum, err := Run(context.Background(), testConfig(dir, out, fa))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Skipped)
	assert.Zero(t, sum.Written())
	assert.Empty(t, fa.called())

	after, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRun_ResumesPartialOutput(t *testing.T) {
	dir := inputDir(t, "g1.pgn", "g2.pgn", "g3.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")

	w, err := report.OpenWriter(out)
	require.NoError(t, err)
	require.NoError(t, w.Append(analysis.Placeholder("g2.pgn")))
	require.NoError(t, w.Close())

	fa := &fakeAnalyser{}
	sum, err := Run(context.Background(), testConfig(dir, out, fa))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.Analysed)
	assert.Equal(t, []string{"g1.pgn", "g3.pgn"}, fa.called())

	rows := readRows(t, out)
	assert.Equal(t, []string{"g1.pgn", "g2.pgn", "g3.pgn"}, firstColumns(rows))
}

func TestRun_FailureIsIsolated(t *testing.T) {
	dir := inputDir(t, "ok1.pgn", "bad.pgn", "ok2.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")
	fa := &fakeAnalyser{fail: map[string]bool{"bad.pgn": true}}

	sum, err := Run(context.Background(), testConfig(dir, out, fa))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Analysed)
	assert.Equal(t, 1, sum.Failed)

	rows := readRows(t, out)
	require.Len(t, rows, 3)
	placeholder := strings.Join(report.Row(analysis.Placeholder("bad.pgn")), "\t")
	assert.Contains(t, rows, placeholder)
}

func TestRun_SingleWorkerFloor(t *testing.T) {
	dir := inputDir(t, "g1.pgn", "g2.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")
	cfg := testConfig(dir, out, &fakeAnalyser{})
	cfg.Workers = 0

	sum, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Analysed)
}

func TestRun_EmptyInputIsError(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.tsv")
	_, err := Run(context.Background(), testConfig(t.TempDir(), out, &fakeAnalyser{}))
	assert.ErrorIs(t, err, ErrInput)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_PreflightFailure(t *testing.T) {
	dir := inputDir(t, "g1.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")
	fa := &fakeAnalyser{}
	cfg := testConfig(dir, out, fa)
	cfg.Preflight = func() (engine.Session, error) {
		return nil, fmt.Errorf("%w: not found", engine.ErrEngineLaunch)
	}

	_, err := Run(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInput)
	assert.Empty(t, fa.called())

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_PreflightStopsSession(t *testing.T) {
	dir := inputDir(t, "g1.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")
	stopped := 0
	cfg := testConfig(dir, out, &fakeAnalyser{})
	cfg.Preflight = func() (engine.Session, error) { return nopSession{stopped: &stopped}, nil }

	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, stopped)
}

func TestRun_PreflightTimeout(t *testing.T) {
	dir := inputDir(t, "g1.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")
	fa := &fakeAnalyser{}
	release := make(chan struct{})
	var stops atomic.Int32
	cfg := testConfig(dir, out, fa)
	cfg.PreflightTimeout = 50 * time.Millisecond
	cfg.Preflight = func() (engine.Session, error) {
		<-release
		return countingSession{stops: &stops}, nil
	}

	_, err := Run(context.Background(), cfg)
	require.ErrorIs(t, err, ErrInput)
	assert.Contains(t, err.Error(), "handshake")
	assert.Empty(t, fa.called())
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))

	// A session that starts after the deadline is stopped, not leaked.
	close(release)
	assert.Eventually(t, func() bool { return stops.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRun_CancelledDuringPreflight(t *testing.T) {
	dir := inputDir(t, "g1.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")
	fa := &fakeAnalyser{}
	release := make(chan struct{})
	defer close(release)
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig(dir, out, fa)
	cfg.Preflight = func() (engine.Session, error) {
		cancel()
		<-release
		return nil, errors.New("launch failed")
	}

	sum, err := Run(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Empty(t, fa.called())
}

func TestRun_NoPreflightWhenNothingPending(t *testing.T) {
	dir := inputDir(t, "g1.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")
	_, err := Run(context.Background(), testConfig(dir, out, &fakeAnalyser{}))
	require.NoError(t, err)

	cfg := testConfig(dir, out, &fakeAnalyser{})
	cfg.Preflight = func() (engine.Session, error) {
		t.Fatal("preflight should not run")
		return nil, nil
	}
	_, err = Run(context.Background(), cfg)
	require.NoError(t, err)
}

func TestRun_CancelledStopsDispatch(t *testing.T) {
	dir := inputDir(t, "g1.pgn", "g2.pgn", "g3.pgn")
	out := filepath.Join(t.TempDir(), "results.tsv")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fa := &fakeAnalyser{}
	sum, err := Run(ctx, testConfig(dir, out, fa))
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Empty(t, fa.called())
	assert.Empty(t, readRows(t, out))
}

func TestRun_UnwritableOutput(t *testing.T) {
	dir := inputDir(t, "g1.pgn")
	out := filepath.Join(t.TempDir(), "missing", "results.tsv")
	_, err := Run(context.Background(), testConfig(dir, out, &fakeAnalyser{}))
	assert.Error(t, err)
}
