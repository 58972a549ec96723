package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/chess-insights-board/internal/domain"
	"go.uber.org/zap"
)

var ErrNothingToArchive = errors.New("no moves to archive")

// Archiver saves a board's live line (every recorded move, regardless of the cursor) as PGN.
type Archiver struct {
	repo Repository
	now  func() time.Time
	log  *zap.Logger
}

func NewArchiver(repo Repository, logger *zap.Logger) *Archiver {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{repo: repo, now: time.Now, log: logger}
}

func (a *Archiver) Archive(ctx context.Context, c *Coordinator) (*domain.ArchivedLine, error) {
	moves, pos, err := c.LiveLine()
	if err != nil {
		return nil, fmt.Errorf("rebuild live line: %w", err)
	}
	if len(moves) == 0 {
		return nil, ErrNothingToArchive
	}
	line := &domain.ArchivedLine{
		SessionUUID: c.ID(),
		PGN:         pos.PGN(),
		MovesSAN:    make([]string, 0, len(moves)),
		MovesUCI:    make([]string, 0, len(moves)),
		Result:      pos.Result(),
		ResultText:  pos.Status(),
		CreatedAt:   a.now().UTC(),
	}
	for _, mv := range moves {
		line.MovesSAN = append(line.MovesSAN, mv.SAN)
		line.MovesUCI = append(line.MovesUCI, mv.UCI)
	}
	line.ECO, line.OpeningName = pos.Opening()

	id, err := a.repo.InsertLine(ctx, line)
	if err != nil {
		return nil, err
	}
	line.ID = id
	a.log.Info("analysis line archived",
		zap.String("session_id", line.SessionUUID),
		zap.Int64("line_id", id),
		zap.Int("plies", len(moves)))
	return line, nil
}

func (a *Archiver) List(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedLine, error) {
	return a.repo.ListBySession(ctx, sessionID, limit)
}

// Get returns one archived line of the session. Lines of other sessions are reported as not found.
func (a *Archiver) Get(ctx context.Context, sessionID string, id int64) (*domain.ArchivedLine, error) {
	line, err := a.repo.GetLine(ctx, id)
	if err != nil {
		return nil, err
	}
	if line.SessionUUID != sessionID {
		return nil, ErrLineNotFound
	}
	return line, nil
}
