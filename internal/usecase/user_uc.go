package usecase

import (
	"context"
	"errors"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// UserUseCase keeps user lookup/registration in one place. Users are
// created lazily on first authenticated request from the Mini-App.
type UserUseCase struct {
	users repository.UserRepository
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, logger *zerolog.Logger) *UserUseCase {
	l := logger.With().Str("component", "UserUC").Logger()
	return &UserUseCase{users: users, log: &l}
}

func (uc *UserUseCase) GetOrCreate(ctx context.Context, tgID int64, username string) (*model.User, error) {
	u, err := uc.users.FindByTelegramID(ctx, tgID)
	if err == nil {
		u.Touch()
		if err := uc.users.Save(ctx, u); err != nil {
			uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("touch user")
		}
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	u, err = model.NewUser("", tgID, username)
	if err != nil {
		return nil, err
	}
	if err := uc.users.Save(ctx, u); err != nil {
		return nil, err
	}
	uc.log.Info().Int64("tg_id", tgID).Msg("user registered")
	return u, nil
}

func (uc *UserUseCase) FindByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	return uc.users.FindByTelegramID(ctx, tgID)
}
