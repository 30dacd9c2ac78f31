package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/domain/ports/repository"
)

var _ repository.ReadingRepository = (*PostgresReadingRepo)(nil)

type PostgresReadingRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresReadingRepo(pool *pgxpool.Pool) *PostgresReadingRepo {
	return &PostgresReadingRepo{pool: pool}
}

func (r *PostgresReadingRepo) Save(ctx context.Context, rd *model.Reading) error {
	cards, err := json.Marshal(rd.Cards)
	if err != nil {
		return fmt.Errorf("marshal cards: %w", err)
	}
	clar, err := json.Marshal(clarificationsOrEmpty(rd.Clarifications))
	if err != nil {
		return fmt.Errorf("marshal clarifications: %w", err)
	}
	const q = `
INSERT INTO readings (
  id, user_id, spread, category, question, cards, interpretation,
  clarifications, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);
`
	_, err = r.pool.Exec(ctx, q,
		rd.ID, rd.UserID, string(rd.Spread), rd.Category, rd.Question,
		cards, rd.Interpretation, clar, rd.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save reading: %w", err)
	}
	return nil
}

func (r *PostgresReadingRepo) FindByID(ctx context.Context, id string) (*model.Reading, error) {
	const q = `
SELECT id, user_id, spread, category, question, cards, interpretation,
       clarifications, created_at
  FROM readings WHERE id=$1;
`
	return scanReading(r.pool.QueryRow(ctx, q, id))
}

func (r *PostgresReadingRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Reading, error) {
	const q = `
SELECT id, user_id, spread, category, question, cards, interpretation,
       clarifications, created_at
  FROM readings
 WHERE user_id=$1
 ORDER BY created_at DESC
 LIMIT $2;
`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var out []*model.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

// AppendClarification concatenates one entry onto the jsonb array in
// place; prior entries are never rewritten.
func (r *PostgresReadingRepo) AppendClarification(ctx context.Context, readingID string, c model.Clarification) error {
	entry, err := json.Marshal([]model.Clarification{c})
	if err != nil {
		return fmt.Errorf("marshal clarification: %w", err)
	}
	const q = `
UPDATE readings
   SET clarifications = clarifications || $2::jsonb
 WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, q, readingID, entry)
	if err != nil {
		return fmt.Errorf("append clarification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanReading(row pgx.Row) (*model.Reading, error) {
	var rd model.Reading
	var spread string
	var cards, clar []byte
	if err := row.Scan(
		&rd.ID, &rd.UserID, &spread, &rd.Category, &rd.Question,
		&cards, &rd.Interpretation, &clar, &rd.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rd.Spread = model.SpreadType(spread)
	if err := json.Unmarshal(cards, &rd.Cards); err != nil {
		return nil, fmt.Errorf("unmarshal cards: %w", err)
	}
	if err := json.Unmarshal(clar, &rd.Clarifications); err != nil {
		return nil, fmt.Errorf("unmarshal clarifications: %w", err)
	}
	return &rd, nil
}

func clarificationsOrEmpty(cs []model.Clarification) []model.Clarification {
	if cs == nil {
		return []model.Clarification{}
	}
	return cs
}
