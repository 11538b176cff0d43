package book

import "github.com/freeeve/pgn/v3"

// Move encoding (uint32):
//   bits 0-5:   from square (0-63)
//   bits 6-11:  to square (0-63)
//   bits 12-14: promotion piece (0=none, 1=Q, 2=R, 3=B, 4=N)
//   bits 15-31: reserved

// Move is a book move packed into a uint32.
type Move uint32

const (
	moveFromMask   = 0x3F
	moveToMask     = 0xFC0
	movePromoMask  = 0x7000
	moveToShift    = 6
	movePromoShift = 12
)

// Promotion piece types
const (
	PromoNone   = 0
	PromoQueen  = 1
	PromoRook   = 2
	PromoBishop = 3
	PromoKnight = 4
)

// EncodeMove creates a Move from square indices (A1=0 ... H8=63) and an
// optional promotion piece. Out of range squares encode as 0.
func EncodeMove(from, to int, promo byte) Move {
	if from < 0 || from > 63 || to < 0 || to > 63 {
		return 0
	}
	return Move(uint32(from) | uint32(to)<<moveToShift | uint32(promo)<<movePromoShift)
}

// FromMv converts a parsed game move into its book encoding.
func FromMv(mv pgn.Mv) Move {
	var promo byte
	switch mv.Promo {
	case pgn.PromoQueen:
		promo = PromoQueen
	case pgn.PromoRook:
		promo = PromoRook
	case pgn.PromoBishop:
		promo = PromoBishop
	case pgn.PromoKnight:
		promo = PromoKnight
	}
	return EncodeMove(int(mv.From), int(mv.To), promo)
}

func (m Move) FromSquare() int {
	return int(m & moveFromMask)
}

func (m Move) ToSquare() int {
	return int((m & moveToMask) >> moveToShift)
}

func (m Move) Promotion() byte {
	return byte((m & movePromoMask) >> movePromoShift)
}

// String returns the move in UCI notation (e.g. "e2e4", "e7e8q").
func (m Move) String() string {
	from, to := m.FromSquare(), m.ToSquare()
	s := string([]byte{
		byte('a' + from%8), byte('1' + from/8),
		byte('a' + to%8), byte('1' + to/8),
	})
	if p := m.Promotion(); p > PromoNone && p <= PromoKnight {
		s += string("qrbn"[p-1])
	}
	return s
}
