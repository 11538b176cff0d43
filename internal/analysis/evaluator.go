package analysis

import (
	"fmt"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/chessgraph/accuracy/internal/accuracy"
	"github.com/freeeve/chessgraph/accuracy/internal/book"
	"github.com/freeeve/chessgraph/accuracy/internal/engine"
	"github.com/freeeve/chessgraph/accuracy/internal/metrics"
)

// BookLookup answers whether a move is opening theory in a position.
type BookLookup interface {
	Lookup(pos *pgn.GameState, mv pgn.Mv) book.Lookup
}

// MoveRecord describes one analysed move. EvalBefore and EvalAfter are in
// centipawns from White's point of view; they are zero for book moves.
// BookMove is the matched book entry when Book is set.
type MoveRecord struct {
	Mover      Color
	Book       bool
	BookMove   book.Move
	EvalBefore int
	EvalAfter  int
	Loss       int
	Class      Classification
}

// MoveEvaluator classifies the moves of one game and accumulates per-player
// stats. It owns no resources; the session and book belong to the caller.
type MoveEvaluator struct {
	session engine.Session
	book    BookLookup
	depth   int
	policy  engine.MatePolicy

	White PlayerStats
	Black PlayerStats
}

// NewMoveEvaluator creates an evaluator. bk may be nil.
func NewMoveEvaluator(session engine.Session, bk BookLookup, depth int, policy engine.MatePolicy) *MoveEvaluator {
	return &MoveEvaluator{
		session: session,
		book:    bk,
		depth:   depth,
		policy:  policy,
	}
}

// Stats returns the accumulator for a color.
func (e *MoveEvaluator) Stats(c Color) *PlayerStats {
	if c == Black {
		return &e.Black
	}
	return &e.White
}

// Play analyses mv, played by mover in pos, and advances pos past it.
// Book moves are counted without consulting the engine.
func (e *MoveEvaluator) Play(pos *pgn.GameState, mv pgn.Mv, mover Color) (MoveRecord, error) {
	stats := e.Stats(mover)
	rec := MoveRecord{Mover: mover}

	if l := e.lookup(pos, mv); l.Found {
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return rec, fmt.Errorf("%w: apply book move: %v", ErrRecordParse, err)
		}
		stats.Book++
		rec.Book = true
		rec.BookMove = l.Move
		metrics.Moves.WithLabelValues(mover.String(), "book").Inc()
		return rec, nil
	}

	before, err := e.evaluate(pos)
	if err != nil {
		return rec, err
	}
	if err := pgn.ApplyMove(pos, mv); err != nil {
		return rec, fmt.Errorf("%w: apply move: %v", ErrRecordParse, err)
	}
	after, err := e.evaluate(pos)
	if err != nil {
		return rec, err
	}

	rec.EvalBefore = e.policy.Before(before)
	rec.EvalAfter = e.policy.After(after)
	rec.Loss = Loss(rec.EvalBefore, rec.EvalAfter, mover)
	rec.Class = Classify(rec.Loss)

	pair := accuracy.Pair{Before: rec.EvalBefore, After: rec.EvalAfter}
	if mover == Black {
		pair = accuracy.Pair{Before: -rec.EvalBefore, After: -rec.EvalAfter}
	}
	stats.record(rec.Class, pair)
	metrics.Moves.WithLabelValues(mover.String(), rec.Class.String()).Inc()
	return rec, nil
}

func (e *MoveEvaluator) lookup(pos *pgn.GameState, mv pgn.Mv) book.Lookup {
	if e.book == nil {
		return book.NotFound
	}
	return e.book.Lookup(pos, mv)
}

// Loss is the evaluation the mover gave away, never negative.
func Loss(before, after int, mover Color) int {
	loss := before - after
	if mover == Black {
		loss = after - before
	}
	if loss < 0 {
		return 0
	}
	return loss
}

// evaluate scores pos from White's point of view. Positions without legal
// moves are scored directly: checkmate is MateBase against the side to
// move, stalemate is 0.
func (e *MoveEvaluator) evaluate(pos *pgn.GameState) (engine.Score, error) {
	if len(pgn.GenerateLegalMoves(pos)) == 0 {
		if !pos.IsInCheck() {
			return engine.CP(0), nil
		}
		if engine.BlackToMove(pos.ToFEN()) {
			return engine.CP(engine.MateBase), nil
		}
		return engine.CP(-engine.MateBase), nil
	}
	return e.session.Evaluate(pos, e.depth)
}
