package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/synthgen/internal/core"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS generation_history (
	id          UUID PRIMARY KEY,
	model_id    TEXT NOT NULL,
	modality    TEXT NOT NULL,
	rows        INTEGER NOT NULL,
	status      TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	ip_address  TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS generation_history_created_at_idx ON generation_history (created_at DESC);
`

// PostgresStore persists submissions in the generation_history table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the history table if needed and returns a store.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("create generation_history: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Record(ctx context.Context, s core.Submission) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO generation_history
			(id, model_id, modality, rows, status, kind, message, bytes, duration_ms, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.ModelID, string(s.Modality), s.Rows, string(s.Status), string(s.Kind), s.Message,
		s.Bytes, s.Duration.Milliseconds(), s.IPAddress, s.UserAgent, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert generation_history: %w", err)
	}
	return nil
}

func (p *PostgresStore) Recent(ctx context.Context, limit int) ([]core.Submission, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, model_id, modality, rows, status, kind, message, bytes, duration_ms, ip_address, user_agent, created_at
		FROM generation_history
		ORDER BY created_at DESC
		LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query generation_history: %w", err)
	}
	defer rows.Close()

	var out []core.Submission
	for rows.Next() {
		var (
			s                      core.Submission
			modality, status, kind string
			durationMs             int64
		)
		if err := rows.Scan(&s.ID, &s.ModelID, &modality, &s.Rows, &status, &kind, &s.Message,
			&s.Bytes, &durationMs, &s.IPAddress, &s.UserAgent, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation_history: %w", err)
		}
		s.Modality = core.Modality(modality)
		s.Status = core.OutcomeStatus(status)
		s.Kind = core.Kind(kind)
		s.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM generation_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune generation_history: %w", err)
	}
	return tag.RowsAffected(), nil
}
