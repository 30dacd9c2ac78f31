package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/domain/ports/adapter"
	"telegram-tarot-miniapp/internal/domain/ports/repository"
)

// WebhookPayload mirrors the provider's notification body. Only the
// fields this system reads are declared.
type WebhookPayload struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Paid   bool   `json:"paid"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

const (
	eventPaymentSucceeded = "payment.succeeded"
	eventPaymentCanceled  = "payment.canceled"
)

// PaymentUseCase creates provider payments and applies their webhooks.
type PaymentUseCase struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	gateway  adapter.PaymentGateway
	notifier adapter.TelegramNotifier
	now      func() time.Time
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	gateway adapter.PaymentGateway,
	notifier adapter.TelegramNotifier,
	logger *zerolog.Logger,
) *PaymentUseCase {
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &PaymentUseCase{
		payments: payments,
		users:    users,
		gateway:  gateway,
		notifier: notifier,
		now:      time.Now,
		log:      &l,
	}
}

// CreatePayment registers a payment intent with the provider, stamping
// metadata {userId, planType} that comes back on the webhook, and
// persists the local record keyed by the provider's payment id.
func (uc *PaymentUseCase) CreatePayment(ctx context.Context, tgID int64, planType, returnURL string) (*model.Payment, string, error) {
	u, err := uc.users.FindByTelegramID(ctx, tgID)
	if err != nil {
		return nil, "", err
	}
	plan, err := model.FindPlan(planType)
	if err != nil {
		return nil, "", err
	}

	meta := map[string]string{
		"userId":   u.ID,
		"planType": plan.Type,
	}
	desc := fmt.Sprintf("Tarot subscription: %s", plan.Name)
	created, err := uc.gateway.CreatePayment(ctx, plan.PriceValue(), plan.Currency, desc, returnURL, meta)
	if err != nil {
		uc.log.Error().Err(err).Int64("tg_id", tgID).Str("plan", plan.Type).Msg("provider payment create failed")
		return nil, "", fmt.Errorf("%w: %v", domain.ErrPaymentUnavailable, err)
	}

	now := uc.now()
	p := &model.Payment{
		ID:         uuid.NewString(),
		ProviderID: created.ProviderID,
		UserID:     u.ID,
		TelegramID: tgID,
		PlanType:   plan.Type,
		Amount:     plan.PriceKopecks,
		Currency:   plan.Currency,
		Status:     model.PaymentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.payments.Save(ctx, p); err != nil {
		return nil, "", err
	}
	uc.log.Info().Str("payment_id", p.ID).Str("provider_id", p.ProviderID).Str("plan", plan.Type).Msg("payment created")
	return p, created.ConfirmationURL, nil
}

// HandleWebhook consumes one provider notification. The return value says
// whether a subscription transition was applied; malformed or non-success
// events are logged and acked without mutating anything. A redelivered
// payment.succeeded is recognized by the provider payment id and does not
// extend expiry a second time.
func (uc *PaymentUseCase) HandleWebhook(ctx context.Context, payload *WebhookPayload) (bool, error) {
	if payload == nil || payload.Object.ID == "" {
		uc.log.Warn().Msg("webhook without payment id ignored")
		return false, nil
	}
	log := uc.log.With().Str("event", payload.Event).Str("provider_id", payload.Object.ID).Logger()

	switch payload.Event {
	case eventPaymentSucceeded:
		// handled below
	case eventPaymentCanceled:
		if err := uc.payments.MarkCanceled(ctx, payload.Object.ID); err != nil {
			log.Warn().Err(err).Msg("mark canceled failed")
		}
		log.Info().Msg("payment canceled")
		return false, nil
	default:
		log.Info().Msg("webhook event ignored")
		return false, nil
	}

	userID := payload.Object.Metadata["userId"]
	planType := payload.Object.Metadata["planType"]
	if userID == "" || planType == "" {
		log.Warn().Msg("succeeded webhook missing metadata, ignored")
		return false, nil
	}
	plan, err := model.FindPlan(planType)
	if err != nil {
		log.Warn().Str("plan", planType).Msg("succeeded webhook with unknown plan, ignored")
		return false, nil
	}

	p, err := uc.payments.FindByProviderID(ctx, payload.Object.ID)
	if errors.Is(err, domain.ErrNotFound) {
		// We did not create this payment (or lost the record). Persist it
		// so the idempotency key exists, then proceed.
		p = uc.paymentFromPayload(payload, userID)
		if err := uc.payments.Save(ctx, p); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return false, err
		}
	} else if err != nil {
		return false, err
	}
	if p.Status == model.PaymentStatusSucceeded {
		log.Info().Msg("duplicate webhook delivery, already applied")
		return false, nil
	}

	// Activation commits before the succeeded mark. If activation fails the
	// payment stays pending, so a redelivery or the reconciler retries the
	// whole transition; the reverse order would consume the idempotency key
	// with the user never activated. Expiry is absolute from now; remaining
	// time from a prior subscription is not stacked.
	now := uc.now()
	expiry := now.Add(plan.Duration())
	if err := uc.users.Activate(ctx, userID, expiry, now); err != nil {
		return false, err
	}
	applied, err := uc.payments.MarkSucceeded(ctx, payload.Object.ID, now)
	if err != nil {
		return false, err
	}
	if !applied {
		// A concurrent delivery won the conditional update and owns the
		// notification.
		return false, nil
	}
	log.Info().Str("plan", plan.Type).Time("expiry", expiry).Msg("subscription activated")

	uc.notifyActivated(ctx, p, plan, expiry)
	return true, nil
}

// Status proxies a provider-side status query. Provider failures surface
// as ErrPaymentUnavailable; there is no internal retry.
func (uc *PaymentUseCase) Status(ctx context.Context, providerID string) (*adapter.ProviderPayment, error) {
	st, err := uc.gateway.GetPayment(ctx, providerID)
	if err != nil {
		uc.log.Error().Err(err).Str("provider_id", providerID).Msg("provider status query failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentUnavailable, err)
	}
	return st, nil
}

// FinalizeFromProvider lets the reconciler finish a stale pending payment
// whose webhook never arrived. It reuses the webhook path so idempotency
// and activation behave identically.
func (uc *PaymentUseCase) FinalizeFromProvider(ctx context.Context, p *model.Payment) (bool, error) {
	st, err := uc.gateway.GetPayment(ctx, p.ProviderID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrPaymentUnavailable, err)
	}
	if st.Status != "succeeded" || !st.Paid {
		return false, nil
	}
	payload := &WebhookPayload{Event: eventPaymentSucceeded}
	payload.Object.ID = p.ProviderID
	payload.Object.Status = st.Status
	payload.Object.Paid = st.Paid
	payload.Object.Metadata = map[string]string{
		"userId":   p.UserID,
		"planType": p.PlanType,
	}
	return uc.HandleWebhook(ctx, payload)
}

// ListPendingOlderThan exposes reconciler input.
func (uc *PaymentUseCase) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error) {
	return uc.payments.ListPendingOlderThan(ctx, cutoff, limit)
}

func (uc *PaymentUseCase) paymentFromPayload(payload *WebhookPayload, userID string) *model.Payment {
	now := uc.now()
	amount := int64(0)
	if v, err := strconv.ParseFloat(payload.Object.Amount.Value, 64); err == nil {
		amount = int64(v*100 + 0.5)
	}
	return &model.Payment{
		ID:         uuid.NewString(),
		ProviderID: payload.Object.ID,
		UserID:     userID,
		PlanType:   payload.Object.Metadata["planType"],
		Amount:     amount,
		Currency:   payload.Object.Amount.Currency,
		Status:     model.PaymentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (uc *PaymentUseCase) notifyActivated(ctx context.Context, p *model.Payment, plan model.SubscriptionPlan, expiry time.Time) {
	if uc.notifier == nil || p == nil || p.TelegramID == 0 {
		return
	}
	text := fmt.Sprintf("Подписка \"%s\" активна до %s. Приятных раскладов!", plan.Name, expiry.Format("02.01.2006"))
	if err := uc.notifier.SendMessage(ctx, p.TelegramID, text); err != nil {
		uc.log.Warn().Err(err).Int64("tg_id", p.TelegramID).Msg("activation notify failed")
	}
}
