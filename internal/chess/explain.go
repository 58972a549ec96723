package chess

import (
	"regexp"
	"strings"
)

// Note is a catalog message key plus the values its template needs.
// Rendering happens at the presentation edge (see internal/msgcat).
type Note struct {
	Key  string
	Data map[string]any
}

// Commentary is the move panel content for the last played move.
type Commentary struct {
	Quality     Quality
	Loss        float64
	Explanation Note
	Suggestion  *Note
}

const (
	NoteNoMove          = "explain.no_move"
	NoteCheckmate       = "explain.checkmate"
	NoteCheck           = "explain.check"
	NoteCastle          = "explain.castle"
	NotePromotion       = "explain.promotion"
	NoteCaptureHigh     = "explain.capture_high"
	NoteCaptureValuable = "explain.capture_valuable"
	NoteCapture         = "explain.capture"
	NoteCentralPush     = "explain.central_push"
	NoteDevelopment     = "explain.development"
	NoteDefault         = "explain.default"

	NoteBestExcellent = "suggest.best_excellent"
	NoteBestGood      = "suggest.best_good"
	NoteBestSolid     = "suggest.best_solid"
	NoteConsider      = "suggest.consider"
)

var (
	pawnPushSAN    = regexp.MustCompile(`^[a-h][1-8](=?[QRBN])?$`)
	centralSquares = map[string]bool{"e4": true, "d4": true, "e5": true, "d5": true}
)

var pieceNames = map[string]string{
	"p": "pawn",
	"n": "knight",
	"b": "bishop",
	"r": "rook",
	"q": "queen",
	"k": "king",
}

var pieceValues = map[string]int{"p": 1, "n": 3, "b": 3, "r": 5, "q": 9, "k": 0}

// Explain picks the first matching rule for a played move.
func Explain(rec *MoveRecord, phase Phase) Note {
	if rec == nil {
		return Note{Key: NoteNoMove}
	}
	switch {
	case rec.Has(FlagCheckmate) || strings.Contains(rec.SAN, "#"):
		return Note{Key: NoteCheckmate}
	case rec.Has(FlagCheck):
		return Note{Key: NoteCheck}
	case rec.Has(FlagCastle):
		return Note{Key: NoteCastle}
	case rec.Has(FlagPromotion):
		return Note{Key: NotePromotion}
	case rec.Has(FlagCapture):
		name, ok := pieceNames[rec.Captured]
		if !ok {
			name = "piece"
		}
		data := map[string]any{"Piece": name}
		switch v := pieceValues[rec.Captured]; {
		case v >= 5:
			return Note{Key: NoteCaptureHigh, Data: data}
		case v >= 3:
			return Note{Key: NoteCaptureValuable, Data: data}
		default:
			return Note{Key: NoteCapture, Data: data}
		}
	case pawnPushSAN.MatchString(rec.SAN) && centralSquares[rec.To]:
		return Note{Key: NoteCentralPush}
	case phase == PhaseOpening && isBackRankMinor(rec):
		return Note{Key: NoteDevelopment}
	default:
		return Note{Key: NoteDefault}
	}
}

func isBackRankMinor(rec *MoveRecord) bool {
	if rec.Piece != "n" && rec.Piece != "b" {
		return false
	}
	if len(rec.From) != 2 {
		return false
	}
	return rec.From[1] == '1' || rec.From[1] == '8'
}

// Suggest compares the played move with the engine's best move for the
// position it was played from. An empty best move yields no suggestion.
func Suggest(rec *MoveRecord, best string, quality Quality) *Note {
	best = strings.TrimSpace(best)
	if best == "" {
		return nil
	}
	if rec != nil && (strings.EqualFold(rec.UCI, best) || rec.SAN == best) {
		switch quality {
		case QualityExcellent:
			return &Note{Key: NoteBestExcellent}
		case QualityGood:
			return &Note{Key: NoteBestGood}
		default:
			return &Note{Key: NoteBestSolid}
		}
	}
	return &Note{Key: NoteConsider, Data: map[string]any{"Move": best}}
}

// Comment builds the full panel. Without a last move the quality is "good",
// mirroring what the board shows before the first move.
func Comment(rec *MoveRecord, before, after float64, best string, phase Phase) Commentary {
	if rec == nil {
		return Commentary{Quality: QualityGood, Explanation: Explain(nil, phase)}
	}
	loss := Loss(before, after, rec.Color)
	quality := ClassifyLoss(loss)
	return Commentary{
		Quality:     quality,
		Loss:        loss,
		Explanation: Explain(rec, phase),
		Suggestion:  Suggest(rec, best, quality),
	}
}
