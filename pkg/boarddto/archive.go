package boarddto

import "time"

type ArchivedLine struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	PGN       string    `json:"pgn"`
	MovesSAN  []string  `json:"moves_san"`
	MovesUCI  []string  `json:"moves_uci"`
	Result    string    `json:"result"`
	Opening   string    `json:"opening,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
