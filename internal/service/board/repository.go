package board

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/chess-insights-board/internal/domain"
)

var (
	ErrDuplicateLine = errors.New("analysis line already archived")
	ErrLineNotFound  = errors.New("archived line not found")
)

// Repository stores analysed lines.
type Repository interface {
	InsertLine(ctx context.Context, line *domain.ArchivedLine) (int64, error)
	GetLine(ctx context.Context, id int64) (*domain.ArchivedLine, error)
	ListBySession(ctx context.Context, sessionUUID string, limit int) ([]*domain.ArchivedLine, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS board_lines (
	id           BIGSERIAL PRIMARY KEY,
	session_uuid TEXT NOT NULL,
	pgn          TEXT NOT NULL,
	moves_san    JSONB NOT NULL,
	moves_uci    JSONB NOT NULL,
	result       TEXT NOT NULL,
	result_text  TEXT NOT NULL,
	eco          TEXT NOT NULL DEFAULT '',
	opening_name TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_uuid, pgn)
)`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// OpenPostgres opens the archive database and makes sure its table exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure board_lines: %w", err)
	}
	return db, nil
}

func (r *repository) InsertLine(ctx context.Context, line *domain.ArchivedLine) (int64, error) {
	if line == nil {
		return 0, fmt.Errorf("nil archived line")
	}
	movesSAN, err := json.Marshal(line.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}
	movesUCI, err := json.Marshal(line.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}

	const query = `
		INSERT INTO board_lines (
			session_uuid,
			pgn,
			moves_san,
			moves_uci,
			result,
			result_text,
			eco,
			opening_name,
			created_at
		)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7, $8, $9)
		ON CONFLICT (session_uuid, pgn) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		line.SessionUUID,
		line.PGN,
		movesSAN,
		movesUCI,
		line.Result,
		line.ResultText,
		line.ECO,
		line.OpeningName,
		line.CreatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateLine
	}
	if err != nil {
		return 0, fmt.Errorf("insert board line: %w", err)
	}
	return id.Int64, nil
}

const selectLine = `
		SELECT
			id,
			session_uuid,
			pgn,
			moves_san,
			moves_uci,
			result,
			result_text,
			eco,
			opening_name,
			created_at
		FROM board_lines`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(row rowScanner) (*domain.ArchivedLine, error) {
	var (
		line    domain.ArchivedLine
		sanJSON []byte
		uciJSON []byte
	)
	if err := row.Scan(
		&line.ID,
		&line.SessionUUID,
		&line.PGN,
		&sanJSON,
		&uciJSON,
		&line.Result,
		&line.ResultText,
		&line.ECO,
		&line.OpeningName,
		&line.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sanJSON, &line.MovesSAN); err != nil {
		return nil, fmt.Errorf("decode moves_san: %w", err)
	}
	if err := json.Unmarshal(uciJSON, &line.MovesUCI); err != nil {
		return nil, fmt.Errorf("decode moves_uci: %w", err)
	}
	return &line, nil
}

func (r *repository) GetLine(ctx context.Context, id int64) (*domain.ArchivedLine, error) {
	row := r.db.QueryRowContext(ctx, selectLine+` WHERE id = $1`, id)
	line, err := scanLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select board line: %w", err)
	}
	return line, nil
}

func (r *repository) ListBySession(ctx context.Context, sessionUUID string, limit int) ([]*domain.ArchivedLine, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, selectLine+` WHERE session_uuid = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, sessionUUID, limit)
	if err != nil {
		return nil, fmt.Errorf("select board lines: %w", err)
	}
	defer rows.Close()

	lines := make([]*domain.ArchivedLine, 0, limit)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan board line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board lines: %w", err)
	}
	return lines, nil
}
