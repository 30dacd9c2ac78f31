package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-tarot-miniapp/internal/domain/ports/repository"
	"telegram-tarot-miniapp/internal/infra/metrics"
)

// ExpiryWorker periodically deactivates subscriptions whose expiry has
// passed. Entitlement reads never trust the stored status alone, so the
// sweep only converges stored state; a missed tick costs nothing.
type ExpiryWorker struct {
	interval time.Duration
	users    repository.UserRepository
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, users repository.UserRepository, logger *zerolog.Logger) *ExpiryWorker {
	compLog := logger.With().Str("component", "ExpiryWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpiryWorker{
		interval: interval,
		users:    users,
		log:      &compLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.users.DeactivateExpired(ctx, time.Now())
			if err != nil {
				w.log.Error().Err(err).Msg("expiry sweep error")
			}
			if n > 0 {
				metrics.IncSubscriptionsExpired(n)
				w.log.Info().Int("count", n).Msg("expired subscriptions deactivated")
			}
		}
	}
}
