package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `
  id, telegram_id, username, registered_at, last_active_at,
  subscription_status, subscription_expiry, subscription_activated_at,
  free_daily_advice_used, free_yes_no_used, free_three_cards_used,
  last_daily_advice_date
`

func (r *PostgresUserRepo) Save(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (
  id, telegram_id, username, registered_at, last_active_at,
  subscription_status, subscription_expiry, subscription_activated_at,
  free_daily_advice_used, free_yes_no_used, free_three_cards_used,
  last_daily_advice_date
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (telegram_id) DO UPDATE SET
  username=$3, last_active_at=$5;
`
	_, err := r.pool.Exec(ctx, q,
		u.ID, u.TelegramID, u.Username, u.RegisteredAt, u.LastActiveAt,
		int(u.SubscriptionStatus), u.SubscriptionExpiry, u.SubscriptionActivatedAt,
		u.FreeDailyAdviceUsed, u.FreeYesNoUsed, u.FreeThreeCardsUsed,
		u.LastDailyAdviceDate,
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) FindByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	q := `SELECT` + userColumns + `FROM users WHERE telegram_id=$1;`
	return r.scanOne(r.pool.QueryRow(ctx, q, tgID))
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	q := `SELECT` + userColumns + `FROM users WHERE id=$1;`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

func (r *PostgresUserRepo) scanOne(row pgx.Row) (*model.User, error) {
	var u model.User
	var status int
	if err := row.Scan(
		&u.ID, &u.TelegramID, &u.Username, &u.RegisteredAt, &u.LastActiveAt,
		&status, &u.SubscriptionExpiry, &u.SubscriptionActivatedAt,
		&u.FreeDailyAdviceUsed, &u.FreeYesNoUsed, &u.FreeThreeCardsUsed,
		&u.LastDailyAdviceDate,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.SubscriptionStatus = model.SubscriptionStatus(status)
	return &u, nil
}

// latchColumn maps a spread to its one-way flag column. The column names
// are fixed, never built from request input.
func latchColumn(spread model.SpreadType) (string, error) {
	switch spread {
	case model.SpreadDailyAdvice:
		return "free_daily_advice_used", nil
	case model.SpreadYesNo:
		return "free_yes_no_used", nil
	case model.SpreadThreeCards:
		return "free_three_cards_used", nil
	}
	return "", domain.ErrUnknownSpread
}

// ConsumeFreeSpread is a single conditional write: the latch flips only if
// it is still unset, so two racing requests cannot both spend the same
// free use.
func (r *PostgresUserRepo) ConsumeFreeSpread(ctx context.Context, tgID int64, spread model.SpreadType) error {
	col, err := latchColumn(spread)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
UPDATE users
   SET %[1]s = TRUE,
       last_active_at = $2,
       last_daily_advice_date = CASE WHEN %[1]s = FALSE AND $3 THEN $2 ELSE last_daily_advice_date END
 WHERE telegram_id = $1 AND %[1]s = FALSE;
`, col)
	tag, err := r.pool.Exec(ctx, q, tgID, time.Now(), spread == model.SpreadDailyAdvice)
	if err != nil {
		return fmt.Errorf("consume free spread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFreeSpreadUsed
	}
	return nil
}

func (r *PostgresUserRepo) Activate(ctx context.Context, userID string, expiry, activatedAt time.Time) error {
	const q = `
UPDATE users
   SET subscription_status = 1,
       subscription_expiry = $2,
       subscription_activated_at = $3
 WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, q, userID, expiry, activatedAt)
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeactivateExpired corrects stale ACTIVE flags. The entitlement evaluator
// never trusts the flag on its own, so this is convergence, not
// enforcement.
func (r *PostgresUserRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	const q = `
UPDATE users
   SET subscription_status = 0
 WHERE subscription_status = 1
   AND (subscription_expiry IS NULL OR subscription_expiry <= $1);
`
	tag, err := r.pool.Exec(ctx, q, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
