package usecase

import (
	"context"
	"errors"
	"time"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// EntitlementUseCase answers "may this user do this spread" and spends
// free uses. The evaluation itself is pure (model.EvaluateEntitlement);
// this layer adds the persistence around it.
type EntitlementUseCase struct {
	users repository.UserRepository
	now   func() time.Time
	log   *zerolog.Logger
}

func NewEntitlementUseCase(users repository.UserRepository, logger *zerolog.Logger) *EntitlementUseCase {
	l := logger.With().Str("component", "EntitlementUC").Logger()
	return &EntitlementUseCase{users: users, now: time.Now, log: &l}
}

// Status returns the current summary without mutating anything.
func (uc *EntitlementUseCase) Status(ctx context.Context, tgID int64) (model.Entitlement, error) {
	u, err := uc.users.FindByTelegramID(ctx, tgID)
	if err != nil {
		return model.Entitlement{}, err
	}
	return model.EvaluateEntitlement(u, uc.now()), nil
}

// UseSpread decides and, for free-tier users, spends the matching latch in
// one conditional write. allowed=false comes back as a normal outcome
// (the frontend renders an upsell), not an error. A request that loses
// the latch race is denied the same way.
func (uc *EntitlementUseCase) UseSpread(ctx context.Context, tgID int64, spread model.SpreadType) (model.Entitlement, bool, error) {
	u, err := uc.users.FindByTelegramID(ctx, tgID)
	if err != nil {
		return model.Entitlement{}, false, err
	}
	now := uc.now()
	ent := model.EvaluateEntitlement(u, now)

	if u.HasActiveSubscription(now) {
		// Subscribers are never charged against the latches.
		return ent, true, nil
	}
	if !ent.CanUse(spread) {
		return ent, false, nil
	}

	if err := uc.users.ConsumeFreeSpread(ctx, tgID, spread); err != nil {
		if errors.Is(err, domain.ErrFreeSpreadUsed) {
			// Another request spent the free use between our read and the
			// conditional write.
			refreshed, rerr := uc.Status(ctx, tgID)
			if rerr != nil {
				refreshed = ent
			}
			return refreshed, false, nil
		}
		return model.Entitlement{}, false, err
	}

	refreshed, err := uc.Status(ctx, tgID)
	if err != nil {
		return model.Entitlement{}, false, err
	}
	return refreshed, true, nil
}

// ActivateDirect is the non-webhook activation path (admin / legacy
// flows): the caller supplies the expiry outright.
func (uc *EntitlementUseCase) ActivateDirect(ctx context.Context, tgID int64, expiry time.Time) (model.Entitlement, error) {
	u, err := uc.users.FindByTelegramID(ctx, tgID)
	if err != nil {
		return model.Entitlement{}, err
	}
	now := uc.now()
	if !expiry.After(now) {
		return model.Entitlement{}, domain.ErrInvalidArgument
	}
	if err := uc.users.Activate(ctx, u.ID, expiry, now); err != nil {
		return model.Entitlement{}, err
	}
	uc.log.Info().Int64("tg_id", tgID).Time("expiry", expiry).Msg("subscription activated directly")
	return uc.Status(ctx, tgID)
}
