// Package report writes analysed games as tab-separated rows and reads back
// which games an existing report already holds.
package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/freeeve/chessgraph/accuracy/internal/analysis"
)

// Columns is the header row, in output order.
var Columns = []string{
	"filename", "white_player", "black_player", "white_elo", "black_elo",
	"time_control", "opening", "result",
	"white_accuracy", "white_best_moves", "white_good_moves", "white_inaccuracies",
	"white_mistakes", "white_blunders", "white_book_moves", "white_total_moves",
	"black_accuracy", "black_best_moves", "black_good_moves", "black_inaccuracies",
	"black_mistakes", "black_blunders", "black_book_moves", "black_total_moves",
}

// ErrResumeRead is returned when an existing report cannot be read.
var ErrResumeRead = errors.New("read existing report")

// Row formats stats in column order.
func Row(s analysis.GameStats) []string {
	row := make([]string, 0, len(Columns))
	row = append(row,
		s.Filename,
		s.WhitePlayer,
		s.BlackPlayer,
		strconv.Itoa(s.WhiteElo),
		strconv.Itoa(s.BlackElo),
		string(s.TimeControl),
		s.Opening,
		strconv.Itoa(s.Result),
	)
	row = appendPlayer(row, s.White)
	row = appendPlayer(row, s.Black)
	return row
}

func appendPlayer(row []string, p analysis.PlayerSummary) []string {
	return append(row,
		strconv.FormatFloat(p.Accuracy, 'f', 1, 64),
		strconv.Itoa(p.Best),
		strconv.Itoa(p.Good),
		strconv.Itoa(p.Inaccuracies),
		strconv.Itoa(p.Mistakes),
		strconv.Itoa(p.Blunders),
		strconv.Itoa(p.Book),
		strconv.Itoa(p.Total),
	)
}

// Writer appends rows to a report file. Each Append is flushed before it
// returns so a crash loses at most the row being written.
type Writer struct {
	f *os.File
	w *csv.Writer
}

// OpenWriter opens path for appending, writing the header if the file is
// new or empty.
func OpenWriter(path string) (*Writer, error) {
	needHeader := true
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		needHeader = false
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	w := csv.NewWriter(f)
	w.Comma = '\t'

	rw := &Writer{f: f, w: w}
	if needHeader {
		if err := rw.write(Columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return rw, nil
}

// Append writes one game row.
func (rw *Writer) Append(s analysis.GameStats) error {
	if err := rw.write(Row(s)); err != nil {
		return fmt.Errorf("append %s: %w", s.Filename, err)
	}
	return nil
}

func (rw *Writer) write(record []string) error {
	if err := rw.w.Write(record); err != nil {
		return err
	}
	rw.w.Flush()
	return rw.w.Error()
}

// Close flushes and closes the file.
func (rw *Writer) Close() error {
	rw.w.Flush()
	if err := rw.w.Error(); err != nil {
		rw.f.Close()
		return err
	}
	return rw.f.Close()
}

// ReadResumeSet returns the filenames in the first column of every row of
// an existing report. A missing file is an empty set.
func ReadResumeSet(path string) (map[string]struct{}, error) {
	done := make(map[string]struct{})

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return done, nil
	}
	if err != nil {
		return done, fmt.Errorf("%w: %v", ErrResumeRead, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 && strings.HasPrefix(line, Columns[0]+"\t") {
			continue
		}
		name, _, _ := strings.Cut(line, "\t")
		name = unquote(strings.TrimSpace(name))
		if name != "" {
			done[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return make(map[string]struct{}), fmt.Errorf("%w: %s: %v", ErrResumeRead, path, err)
	}
	return done, nil
}

// unquote undoes csv quoting of a single field.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}
