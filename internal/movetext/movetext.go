// Package movetext reads the move section of PGN text: it splits it into SAN
// tokens and replays them strictly, so a record with an illegal or
// unreadable move is rejected instead of being replayed as a different game.
package movetext

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// ErrIllegalMove is returned by Replay for a token that is not a legal move
// in the position reached so far.
var ErrIllegalMove = errors.New("illegal move")

// Extract returns the movetext of the first game in a PGN document: the
// non-tag lines after its tag section, up to the next tag line.
func Extract(doc string) string {
	var sb strings.Builder
	inMoves := false
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '%' {
			continue
		}
		if line[0] == '[' {
			if inMoves {
				break
			}
			continue
		}
		inMoves = true
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Tokens splits movetext into SAN move tokens. Move numbers, comments,
// variations, NAGs and annotation glyphs are dropped; a game result ends the
// list. Castling written with zeros is normalised to O-O / O-O-O.
func Tokens(text string) []string {
	var out []string
	n := len(text)
	for i := 0; i < n; {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '.':
			i++
		case c == '{':
			for i < n && text[i] != '}' {
				i++
			}
			i++
		case c == ';':
			for i < n && text[i] != '\n' {
				i++
			}
		case c == '(':
			depth := 0
			for ; i < n; i++ {
				if text[i] == '(' {
					depth++
				} else if text[i] == ')' {
					depth--
					if depth == 0 {
						i++
						break
					}
				}
			}
		case c == '*':
			return out
		case c >= '0' && c <= '9':
			start := i
			for i < n && !isSeparator(text[i]) {
				i++
			}
			switch tok := text[start:i]; tok {
			case "1-0", "0-1", "1/2-1/2":
				return out
			case "0-0", "0-0+", "0-0#":
				out = append(out, "O-O"+tok[3:])
			case "0-0-0", "0-0-0+", "0-0-0#":
				out = append(out, "O-O-O"+tok[5:])
			}
		case isMoveLetter(c):
			start := i
			for i < n && isMoveChar(text[i]) {
				i++
			}
			out = append(out, text[start:i])
		default:
			// NAGs ($1), glyphs (!?), null moves and stray punctuation.
			for i < n && !isSeparator(text[i]) {
				i++
			}
		}
	}
	return out
}

// Replay applies SAN tokens to pos in order and returns the parsed moves.
// It stops at the first token that is not a legal move.
func Replay(pos *pgn.GameState, tokens []string) ([]pgn.Mv, error) {
	moves := make([]pgn.Mv, 0, len(tokens))
	for i, tok := range tokens {
		mv, err := pgn.ParseSAN(pos, strings.TrimRight(tok, "+#"))
		if err != nil {
			return moves, fmt.Errorf("%w %q at ply %d: %v", ErrIllegalMove, tok, i+1, err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return moves, fmt.Errorf("%w %q at ply %d: %v", ErrIllegalMove, tok, i+1, err)
		}
		moves = append(moves, mv)
	}
	return moves, nil
}

// Parse is Replay(pos, Tokens(text)).
func Parse(pos *pgn.GameState, text string) ([]pgn.Mv, error) {
	return Replay(pos, Tokens(text))
}

func isSeparator(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '.' ||
		c == '{' || c == '(' || c == ')' || c == ';'
}

func isMoveLetter(c byte) bool {
	return (c >= 'a' && c <= 'h') || (c >= 'A' && c <= 'Z')
}

func isMoveChar(c byte) bool {
	return (c >= 'a' && c <= 'h') || (c >= '1' && c <= '8') ||
		(c >= 'A' && c <= 'Z') || c == '-' || c == '=' ||
		c == '+' || c == '#' || c == 'x'
}
