package chess

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var ErrIllegalMove = errors.New("illegal chess move")

// Color identifies a side. The zero value means "no side".
type Color string

const (
	NoColor Color = ""
	White   Color = "white"
	Black   Color = "black"
)

func (c Color) Title() string {
	switch c {
	case White:
		return "White"
	case Black:
		return "Black"
	default:
		return ""
	}
}

// ParseColor accepts "white"/"w" and "black"/"b" in any case.
func ParseColor(raw string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	case "", "none":
		return NoColor, nil
	default:
		return NoColor, fmt.Errorf("unknown color %q", raw)
	}
}

func colorFromLib(c nchess.Color) Color {
	switch c {
	case nchess.White:
		return White
	case nchess.Black:
		return Black
	default:
		return NoColor
	}
}

// Phase is the coarse stage of the game shown next to the move counter.
type Phase string

const (
	PhaseOpening    Phase = "opening"
	PhaseMiddlegame Phase = "middlegame"
	PhaseEndgame    Phase = "endgame"
)

const (
	openingPhasePlies = 20
	middlegameHeavies = 4
)

// Position is an immutable board state. Every successful move yields a new Position.
type Position struct {
	game *nchess.Game
}

func StartPosition() Position {
	return Position{game: nchess.NewGame()}
}

func (p Position) lib() *nchess.Game {
	if p.game == nil {
		return nchess.NewGame()
	}
	return p.game
}

func (p Position) FEN() string {
	return p.lib().FEN()
}

func (p Position) Turn() Color {
	return colorFromLib(p.lib().Position().Turn())
}

// Ply is the number of half-moves played from the initial position.
func (p Position) Ply() int {
	return len(p.lib().Moves())
}

// InCheck reports whether the side to move is in check, read from the check
// suffix of the last move's algebraic notation.
func (p Position) InCheck() bool {
	g := p.lib()
	moves := g.Moves()
	positions := g.Positions()
	n := len(moves)
	if n == 0 || n > len(positions) {
		return false
	}
	san := nchess.AlgebraicNotation{}.Encode(positions[n-1], moves[n-1])
	return strings.ContainsAny(san, "+#")
}

func (p Position) IsCheckmate() bool {
	return p.lib().Method() == nchess.Checkmate
}

func (p Position) IsDraw() bool {
	return p.lib().Outcome() == nchess.Draw
}

func (p Position) IsGameOver() bool {
	return p.lib().Outcome() != nchess.NoOutcome
}

// Status is the one-line game state shown under the board.
func (p Position) Status() string {
	g := p.lib()
	switch g.Outcome() {
	case nchess.WhiteWon:
		return "White wins!"
	case nchess.BlackWon:
		return "Black wins!"
	case nchess.Draw:
		return "Game drawn"
	case nchess.NoOutcome:
		return p.Turn().Title() + " to move"
	default:
		return "Game over"
	}
}

func (p Position) Phase() Phase {
	if p.Ply() < openingPhasePlies {
		return PhaseOpening
	}
	board := p.lib().Position().Board()
	heavies := 0
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			switch board.Piece(nchess.NewSquare(file, rank)).Type() {
			case nchess.Queen, nchess.Rook:
				heavies++
			}
		}
	}
	if heavies > middlegameHeavies {
		return PhaseMiddlegame
	}
	return PhaseEndgame
}

var ecoBook = sync.OnceValue(opening.NewBookECO)

// Opening names the ECO opening matching the moves played so far, if any.
func (p Position) Opening() (string, string) {
	moves := p.lib().Moves()
	if len(moves) == 0 {
		return "", ""
	}
	book := ecoBook()
	if book == nil {
		return "", ""
	}
	if eco := book.Find(moves); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

// Apply plays spec on a copy of p. The receiver is never modified.
func (p Position) Apply(spec MoveSpec) (MoveRecord, Position, error) {
	game := p.lib()
	pos := game.Position()
	text := spec.uci(pos)
	move, err := nchess.UCINotation{}.Decode(pos, text)
	if err != nil {
		return MoveRecord{}, p, fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	return p.play(move)
}

// ApplySAN plays a move written in standard algebraic notation, as found in opening lines.
func (p Position) ApplySAN(token string) (MoveRecord, Position, error) {
	text := strings.TrimSpace(token)
	if text == "" {
		return MoveRecord{}, p, fmt.Errorf("%w: empty move", ErrIllegalMove)
	}
	pos := p.lib().Position()
	move, err := nchess.AlgebraicNotation{}.Decode(pos, text)
	if err != nil {
		move, err = nchess.UCINotation{}.Decode(pos, strings.ToLower(text))
		if err != nil {
			return MoveRecord{}, p, fmt.Errorf("%w: %s", ErrIllegalMove, text)
		}
	}
	return p.play(move)
}

func (p Position) play(move *nchess.Move) (MoveRecord, Position, error) {
	game := p.lib()
	before := game.Position()
	next := game.Clone()
	if err := next.Move(move, nil); err != nil {
		return MoveRecord{}, p, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	record := newMoveRecord(before, move, next)
	return record, Position{game: next}, nil
}

// Replay rebuilds the position reached by playing moves from the initial position.
func Replay(moves []MoveRecord) (Position, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, mv := range moves {
		move, err := notation.Decode(game.Position(), mv.UCI)
		if err != nil {
			return Position{}, fmt.Errorf("decode move %s: %w", mv.UCI, err)
		}
		if err := game.Move(move, nil); err != nil {
			return Position{}, fmt.Errorf("apply move %s: %w", mv.UCI, err)
		}
	}
	return Position{game: game}, nil
}

// PGN renders the moves played so far in PGN movetext with the result token.
func (p Position) PGN() string {
	return p.lib().String()
}

// Result is the PGN result token: "1-0", "0-1", "1/2-1/2" or "*".
func (p Position) Result() string {
	return string(p.lib().Outcome())
}
