package chess

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// MoveSpec is a candidate move as proposed by a human drag, an engine line or a replay step.
type MoveSpec struct {
	From      string
	To        string
	Promotion string
}

// ParseUCIMove converts engine notation such as "e2e4" or "e7e8q" into a MoveSpec.
func ParseUCIMove(raw string) (MoveSpec, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if len(text) != 4 && len(text) != 5 {
		return MoveSpec{}, fmt.Errorf("malformed uci move %q", raw)
	}
	spec := MoveSpec{From: text[0:2], To: text[2:4]}
	if len(text) == 5 {
		spec.Promotion = text[4:]
	}
	if !validSquare(spec.From) || !validSquare(spec.To) {
		return MoveSpec{}, fmt.Errorf("malformed uci move %q", raw)
	}
	return spec, nil
}

func (s MoveSpec) String() string {
	return strings.ToLower(s.From + s.To + s.Promotion)
}

func validSquare(sq string) bool {
	return len(sq) == 2 && sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}

// uci drops a promotion piece that does not apply: board drags always offer a queen.
func (s MoveSpec) uci(pos *nchess.Position) string {
	from := strings.ToLower(strings.TrimSpace(s.From))
	to := strings.ToLower(strings.TrimSpace(s.To))
	promo := strings.ToLower(strings.TrimSpace(s.Promotion))
	if promo == "" || !validSquare(from) || !validSquare(to) {
		return from + to
	}
	if !isPromotionMove(pos, from, to) {
		return from + to
	}
	return from + to + promo[:1]
}

func isPromotionMove(pos *nchess.Position, from, to string) bool {
	if pos == nil {
		return false
	}
	sq := squareFromString(from)
	piece := pos.Board().Piece(sq)
	if piece.Type() != nchess.Pawn {
		return false
	}
	return to[1] == '8' || to[1] == '1'
}

func squareFromString(sq string) nchess.Square {
	file := nchess.File(sq[0] - 'a')
	rank := nchess.Rank(sq[1] - '1')
	return nchess.NewSquare(file, rank)
}

// MoveFlag marks notable properties of a played move.
type MoveFlag string

const (
	FlagCapture   MoveFlag = "capture"
	FlagCheck     MoveFlag = "check"
	FlagCastle    MoveFlag = "castle"
	FlagPromotion MoveFlag = "promotion"
	FlagCheckmate MoveFlag = "checkmate"
)

// MoveRecord is a fully resolved legal move. It is never modified after creation.
type MoveRecord struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	Promotion string     `json:"promotion,omitempty"`
	SAN       string     `json:"san"`
	UCI       string     `json:"uci"`
	Color     Color      `json:"color"`
	Piece     string     `json:"piece"`
	Captured  string     `json:"captured,omitempty"`
	Flags     []MoveFlag `json:"flags,omitempty"`
}

func (m MoveRecord) Has(flag MoveFlag) bool {
	for _, f := range m.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func newMoveRecord(before *nchess.Position, move *nchess.Move, after *nchess.Game) MoveRecord {
	board := before.Board()
	mover := board.Piece(move.S1())
	san := nchess.AlgebraicNotation{}.Encode(before, move)
	rec := MoveRecord{
		From:  move.S1().String(),
		To:    move.S2().String(),
		SAN:   san,
		UCI:   strings.ToLower(nchess.UCINotation{}.Encode(before, move)),
		Color: colorFromLib(before.Turn()),
		Piece: pieceLetter(mover.Type()),
	}
	if target := board.Piece(move.S2()); target != nchess.NoPiece {
		rec.Captured = pieceLetter(target.Type())
	} else if mover.Type() == nchess.Pawn && move.S1().File() != move.S2().File() {
		rec.Captured = "p"
	}
	if rec.Captured != "" {
		rec.Flags = append(rec.Flags, FlagCapture)
	}
	if strings.HasPrefix(san, "O-O") {
		rec.Flags = append(rec.Flags, FlagCastle)
	}
	if promo := move.Promo(); promo != nchess.NoPieceType {
		rec.Promotion = pieceLetter(promo)
		rec.Flags = append(rec.Flags, FlagPromotion)
	}
	if strings.ContainsAny(san, "+#") {
		rec.Flags = append(rec.Flags, FlagCheck)
	}
	if strings.Contains(san, "#") || (after != nil && after.Method() == nchess.Checkmate) {
		rec.Flags = append(rec.Flags, FlagCheckmate)
	}
	return rec
}

func pieceLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.King:
		return "k"
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	case nchess.Pawn:
		return "p"
	default:
		return ""
	}
}
