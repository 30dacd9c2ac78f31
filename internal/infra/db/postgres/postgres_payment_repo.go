package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*PostgresPaymentRepo)(nil)

type PostgresPaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPaymentRepo(pool *pgxpool.Pool) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{pool: pool}
}

const paymentColumns = `
  id, provider_id, user_id, telegram_id, plan_type, amount, currency,
  status, created_at, updated_at, paid_at
`

func (r *PostgresPaymentRepo) Save(ctx context.Context, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, provider_id, user_id, telegram_id, plan_type, amount, currency,
  status, created_at, updated_at, paid_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);
`
	_, err := r.pool.Exec(ctx, q,
		p.ID, p.ProviderID, p.UserID, p.TelegramID, p.PlanType, p.Amount,
		p.Currency, string(p.Status), p.CreatedAt, p.UpdatedAt, p.PaidAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (r *PostgresPaymentRepo) FindByProviderID(ctx context.Context, providerID string) (*model.Payment, error) {
	q := `SELECT` + paymentColumns + `FROM payments WHERE provider_id=$1;`
	return scanPayment(r.pool.QueryRow(ctx, q, providerID))
}

// MarkSucceeded performs the pending->succeeded transition conditionally.
// RowsAffected tells whether this delivery won; a redelivered webhook
// finds the row already succeeded and reports false.
func (r *PostgresPaymentRepo) MarkSucceeded(ctx context.Context, providerID string, paidAt time.Time) (bool, error) {
	const q = `
UPDATE payments
   SET status = 'succeeded', paid_at = $2, updated_at = $2
 WHERE provider_id = $1 AND status <> 'succeeded';
`
	tag, err := r.pool.Exec(ctx, q, providerID, paidAt)
	if err != nil {
		return false, fmt.Errorf("mark payment succeeded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresPaymentRepo) MarkCanceled(ctx context.Context, providerID string) error {
	const q = `
UPDATE payments
   SET status = 'canceled', updated_at = $2
 WHERE provider_id = $1 AND status = 'pending';
`
	if _, err := r.pool.Exec(ctx, q, providerID, time.Now()); err != nil {
		return fmt.Errorf("mark payment canceled: %w", err)
	}
	return nil
}

func (r *PostgresPaymentRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error) {
	q := `SELECT` + paymentColumns + `
  FROM payments
 WHERE status = 'pending' AND created_at < $1
 ORDER BY created_at
 LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	var status string
	if err := row.Scan(
		&p.ID, &p.ProviderID, &p.UserID, &p.TelegramID, &p.PlanType,
		&p.Amount, &p.Currency, &status, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	return &p, nil
}
