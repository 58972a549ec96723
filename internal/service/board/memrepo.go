package board

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/chess-insights-board/internal/domain"
)

// memrepo keeps archived lines in process memory when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID    int64
	byID      map[int64]*domain.ArchivedLine
	bySession map[string][]*domain.ArchivedLine
	byPGN     map[string]struct{}
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byID:      make(map[int64]*domain.ArchivedLine),
		bySession: make(map[string][]*domain.ArchivedLine),
		byPGN:     make(map[string]struct{}),
	}
}

func (m *memrepo) InsertLine(ctx context.Context, line *domain.ArchivedLine) (int64, error) {
	if line == nil {
		return 0, ErrDuplicateLine
	}
	key := line.SessionUUID + "|" + line.PGN

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byPGN[key]; exists {
		return 0, ErrDuplicateLine
	}
	m.nextID++
	stored := *line
	stored.ID = m.nextID
	stored.MovesSAN = append([]string(nil), line.MovesSAN...)
	stored.MovesUCI = append([]string(nil), line.MovesUCI...)

	m.byID[stored.ID] = &stored
	m.bySession[stored.SessionUUID] = append(m.bySession[stored.SessionUUID], &stored)
	m.byPGN[key] = struct{}{}
	return stored.ID, nil
}

func (m *memrepo) GetLine(ctx context.Context, id int64) (*domain.ArchivedLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	line, ok := m.byID[id]
	if !ok {
		return nil, ErrLineNotFound
	}
	out := *line
	return &out, nil
}

func (m *memrepo) ListBySession(ctx context.Context, sessionUUID string, limit int) ([]*domain.ArchivedLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := append([]*domain.ArchivedLine(nil), m.bySession[sessionUUID]...)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
