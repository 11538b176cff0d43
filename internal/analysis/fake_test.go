package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/freeeve/pgn/v3"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessgraph/accuracy/internal/engine"
)

// fakeSession returns scripted scores in call order.
type fakeSession struct {
	scores  []engine.Score
	calls   int
	stopped int
	panicAt int // 1-based call that panics, 0 = never
}

func (f *fakeSession) Evaluate(pos *pgn.GameState, depth int) (engine.Score, error) {
	f.calls++
	if f.panicAt > 0 && f.calls == f.panicAt {
		panic("engine exploded")
	}
	if f.calls > len(f.scores) {
		return engine.Score{}, fmt.Errorf("%w: unexpected call %d", engine.ErrEngine, f.calls)
	}
	return f.scores[f.calls-1], nil
}

func (f *fakeSession) Stop() error {
	f.stopped++
	return nil
}

func cps(values ...int) []engine.Score {
	out := make([]engine.Score, len(values))
	for i, v := range values {
		out[i] = engine.CP(v)
	}
	return out
}

func launcherFor(s *fakeSession) engine.Launcher {
	return func() (engine.Session, error) { return s, nil }
}

// play feeds SAN moves through ev, alternating colors from White.
func play(t *testing.T, ev *MoveEvaluator, sans ...string) []MoveRecord {
	t.Helper()
	pos := pgn.NewStartingPosition()
	var recs []MoveRecord
	for i, san := range sans {
		mv, err := pgn.ParseSAN(pos, san)
		require.NoError(t, err, san)
		mover := White
		if i%2 == 1 {
			mover = Black
		}
		rec, err := ev.Play(pos, mv, mover)
		require.NoError(t, err, san)
		recs = append(recs, rec)
	}
	return recs
}

func writeGame(t *testing.T, dir, name string, tags map[string]string, moves string) string {
	t.Helper()
	var sb strings.Builder
	for _, k := range []string{"Event", "White", "Black", "Result", "WhiteElo", "BlackElo", "TimeControl", "ECO", "SetUp", "FEN"} {
		if v, ok := tags[k]; ok {
			fmt.Fprintf(&sb, "[%s \"%s\"]\n", k, v)
		}
	}
	sb.WriteString("\n")
	sb.WriteString(moves)
	sb.WriteString("\n\n")
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func requireInvariant(t *testing.T, s PlayerSummary) {
	t.Helper()
	require.Equal(t, s.Total, s.Best+s.Good+s.Inaccuracies+s.Mistakes+s.Blunders+s.Book,
		"classification counts must add up to total moves: %+v", s)
}
