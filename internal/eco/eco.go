// Package eco names the opening of a game whose record carries no ECO tag.
// Openings are loaded from TSV files of "eco<TAB>name<TAB>movetext" rows and
// indexed by the position the movetext reaches, so transpositions into a
// known line are recognised.
package eco

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/chessgraph/accuracy/internal/movetext"
)

// Opening is one classified line.
type Opening struct {
	ECO   string
	Name  string
	Plies int // length of the defining line
}

// Database maps positions to openings. It is read-only after loading and
// safe for concurrent Classify calls.
type Database struct {
	byPosition map[pgn.PackedPosition]Opening
	maxPlies   int
	skipped    int
}

// NewDatabase creates an empty database.
func NewDatabase() *Database {
	return &Database{byPosition: make(map[pgn.PackedPosition]Opening)}
}

// LoadDir loads every .tsv file in dir, in name order.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}
	sort.Strings(files)
	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads one TSV file.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return db.Load(f)
}

// Load reads TSV rows from r. A header row is allowed. Rows with the wrong
// number of fields or a line that does not replay are counted as skipped.
// When two lines reach the same position the first one loaded is kept.
func (db *Database) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		header := first && strings.HasPrefix(strings.ToLower(line), "eco\t")
		first = false
		if header || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			db.skipped++
			continue
		}
		pos := pgn.NewStartingPosition()
		moves, err := movetext.Parse(pos, fields[2])
		if err != nil || len(moves) == 0 {
			db.skipped++
			continue
		}

		key := pos.Pack()
		if _, dup := db.byPosition[key]; dup {
			continue
		}
		db.byPosition[key] = Opening{ECO: fields[0], Name: fields[1], Plies: len(moves)}
		if len(moves) > db.maxPlies {
			db.maxPlies = len(moves)
		}
	}
	return sc.Err()
}

// Lookup returns the opening whose line reaches pos, or nil.
func (db *Database) Lookup(pos *pgn.GameState) *Opening {
	if db == nil || pos == nil {
		return nil
	}
	if o, ok := db.byPosition[pos.Pack()]; ok {
		return &o
	}
	return nil
}

// Classify replays moves from the starting position and returns the opening
// of the deepest matching position, or nil. Replay stops once no loaded line
// is long enough to match.
func (db *Database) Classify(moves []pgn.Mv) *Opening {
	if db == nil {
		return nil
	}
	var found *Opening
	pos := pgn.NewStartingPosition()
	for ply, mv := range moves {
		if ply >= db.maxPlies {
			break
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			break
		}
		if o := db.Lookup(pos); o != nil {
			found = o
		}
	}
	return found
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	if db == nil {
		return 0
	}
	return len(db.byPosition)
}

// Skipped returns the number of rows that could not be loaded.
func (db *Database) Skipped() int {
	if db == nil {
		return 0
	}
	return db.skipped
}
