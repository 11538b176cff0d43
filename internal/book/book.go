// Package book implements the opening book: a compressed, read-only map
// from board position to the moves known to be theory in that position.
//
// File format:
//
//	magic   [4]byte "PGBK"
//	version uint8
//	zstd stream of records:
//	  position [packed position]
//	  n        uint16 (big endian)
//	  moves    n * uint32 (big endian, see Move)
//
// A Book is immutable once loaded and safe for concurrent lookups.
package book

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/freeeve/pgn/v3"
	"github.com/klauspost/compress/zstd"
)

const (
	formatVersion = 1
	keySize       = len(pgn.PackedPosition{})
)

var magic = [4]byte{'P', 'G', 'B', 'K'}

// ErrBook is returned when a book file cannot be read.
var ErrBook = errors.New("opening book")

// Lookup is the outcome of a book query: Found with the matching move, or
// not found.
type Lookup struct {
	Found bool
	Move  Move
}

// NotFound is the zero Lookup.
var NotFound = Lookup{}

// Book maps positions to known moves.
type Book struct {
	entries map[pgn.PackedPosition][]Move
	moves   int
}

// New returns an empty book.
func New() *Book {
	return &Book{entries: make(map[pgn.PackedPosition][]Move)}
}

// Add records mv as a book move at the given position.
func (b *Book) Add(pos pgn.PackedPosition, mv Move) {
	for _, m := range b.entries[pos] {
		if m == mv {
			return
		}
	}
	b.entries[pos] = append(b.entries[pos], mv)
	b.moves++
}

// Moves returns the book moves for a position, nil if the position is not
// in the book.
func (b *Book) Moves(pos pgn.PackedPosition) []Move {
	if b == nil {
		return nil
	}
	return b.entries[pos]
}

// Lookup reports whether mv is a book move in pos. A nil book or a position
// missing from the book is NotFound.
func (b *Book) Lookup(pos *pgn.GameState, mv pgn.Mv) Lookup {
	if b == nil || pos == nil {
		return NotFound
	}
	want := FromMv(mv)
	for _, m := range b.entries[pos.Pack()] {
		if m == want {
			return Lookup{Found: true, Move: m}
		}
	}
	return NotFound
}

// Positions returns the number of positions in the book.
func (b *Book) Positions() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// MoveCount returns the number of (position, move) entries.
func (b *Book) MoveCount() int {
	if b == nil {
		return 0
	}
	return b.moves
}

// Close releases the book's memory. Lookups on a closed book are NotFound.
func (b *Book) Close() error {
	if b == nil {
		return nil
	}
	b.entries = nil
	b.moves = 0
	return nil
}

// Open loads a book file.
func Open(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBook, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(len(magic))
	if st, err := f.Stat(); err == nil && isPolyglot(head, st.Size()) {
		return nil, fmt.Errorf("%w: %s: %w", ErrBook, path, ErrPolyglot)
	}
	b, err := Read(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBook, path, err)
	}
	return b, nil
}

// ErrPolyglot is returned by Open for a Polyglot (.bin) opening book. Those
// books key positions by Zobrist hash; convert the source games with
// build-book instead.
var ErrPolyglot = errors.New("polyglot .bin books are not supported, build one with build-book")

// isPolyglot reports whether a file that does not start with the book magic
// has the shape of a Polyglot book: a whole number of 16-byte entries.
func isPolyglot(head []byte, size int64) bool {
	return size > 0 && size%16 == 0 && !bytes.Equal(head, magic[:])
}

// Read decodes a book from r.
func Read(r io.Reader) (*Book, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return nil, fmt.Errorf("bad magic %q", hdr[:4])
	}
	if hdr[4] != formatVersion {
		return nil, fmt.Errorf("unsupported version %d", hdr[4])
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	b := New()
	br := bufio.NewReader(dec)
	var key pgn.PackedPosition
	var count [2]byte
	var mv [4]byte
	for {
		if _, err := io.ReadFull(br, key[:]); err != nil {
			if err == io.EOF {
				return b, nil
			}
			return nil, fmt.Errorf("read position: %w", err)
		}
		if _, err := io.ReadFull(br, count[:]); err != nil {
			return nil, fmt.Errorf("read move count: %w", err)
		}
		n := int(binary.BigEndian.Uint16(count[:]))
		for i := 0; i < n; i++ {
			if _, err := io.ReadFull(br, mv[:]); err != nil {
				return nil, fmt.Errorf("read move: %w", err)
			}
			b.Add(key, Move(binary.BigEndian.Uint32(mv[:])))
		}
	}
}

// WriteTo encodes the book to w. Positions are written in key order so the
// same book always produces the same bytes.
func (b *Book) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	hdr := append(magic[:], formatVersion)
	if _, err := cw.Write(hdr); err != nil {
		return cw.n, err
	}

	enc, err := zstd.NewWriter(cw, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return cw.n, fmt.Errorf("zstd writer: %w", err)
	}

	keys := make([]pgn.PackedPosition, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})

	buf := make([]byte, 0, keySize+2+4*8)
	for _, k := range keys {
		moves := b.entries[k]
		if len(moves) > 0xFFFF {
			moves = moves[:0xFFFF]
		}
		buf = buf[:0]
		buf = append(buf, k[:]...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(moves)))
		for _, m := range moves {
			buf = binary.BigEndian.AppendUint32(buf, uint32(m))
		}
		if _, err := enc.Write(buf); err != nil {
			enc.Close()
			return cw.n, err
		}
	}
	if err := enc.Close(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// WriteFile writes the book to path, replacing it atomically.
func (b *Book) WriteFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if _, err := b.WriteTo(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
