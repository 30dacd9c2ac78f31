package repository

import (
	"context"
	"time"

	"telegram-tarot-miniapp/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, u *model.User) error
	FindByTelegramID(ctx context.Context, tgID int64) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)

	// ConsumeFreeSpread sets the latch matching spread, but only if it is
	// still unset, in a single conditional write. Returns
	// domain.ErrFreeSpreadUsed when no row changed, so two racing requests
	// cannot both spend the same free use.
	ConsumeFreeSpread(ctx context.Context, tgID int64, spread model.SpreadType) error

	// Activate puts the user into paid status with an absolute expiry.
	Activate(ctx context.Context, userID string, expiry, activatedAt time.Time) error

	// DeactivateExpired flips stale ACTIVE rows whose expiry passed and
	// returns how many were corrected. Read-time evaluation stays
	// authoritative; this only makes the stored flag converge.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}
