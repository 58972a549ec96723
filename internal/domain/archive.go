package domain

import "time"

// ArchivedLine is one analysed move list saved from a board session.
type ArchivedLine struct {
	ID          int64
	SessionUUID string
	PGN         string
	MovesSAN    []string
	MovesUCI    []string
	Result      string
	ResultText  string
	ECO         string
	OpeningName string
	CreatedAt   time.Time
}
