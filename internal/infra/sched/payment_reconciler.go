package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-tarot-miniapp/internal/usecase"
)

// PaymentReconciler scans for stale pending payments and re-checks them
// against the provider. Covers deliveries the webhook endpoint never
// received or that failed mid-activation.
type PaymentReconciler struct {
	uc         *usecase.PaymentUseCase
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc *usecase.PaymentUseCase, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &PaymentReconciler{uc: uc, interval: interval, staleAfter: staleAfter, log: &compLog}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.uc.ListPendingOlderThan(ctx, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending payments failed")
		return
	}
	for _, p := range pending {
		applied, err := w.uc.FinalizeFromProvider(ctx, p)
		if err != nil {
			w.log.Warn().Err(err).Str("payment_id", p.ID).Str("provider_id", p.ProviderID).Msg("reconcile failed")
			continue
		}
		if applied {
			w.log.Info().Str("payment_id", p.ID).Msg("stale payment reconciled")
		}
	}
}
