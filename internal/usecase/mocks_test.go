//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/domain/ports/adapter"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ===== User repository =====

// memUserRepo is a small in-memory implementation used by unit tests.
// Func fields override individual methods when a test needs to fail them.
type memUserRepo struct {
	mu    sync.Mutex
	store map[int64]*model.User // by TelegramID

	SaveFunc             func(ctx context.Context, u *model.User) error
	FindByTelegramIDFunc func(ctx context.Context, tgID int64) (*model.User, error)
	ConsumeFunc          func(ctx context.Context, tgID int64, spread model.SpreadType) error
	ActivateFunc         func(ctx context.Context, userID string, expiry, activatedAt time.Time) error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{store: make(map[int64]*model.User)}
}

func (m *memUserRepo) put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.TelegramID] = &cp
}

func (m *memUserRepo) Save(ctx context.Context, u *model.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, u)
	}
	m.put(u)
	return nil
}

func (m *memUserRepo) FindByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	if m.FindByTelegramIDFunc != nil {
		return m.FindByTelegramIDFunc(ctx, tgID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.store {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ConsumeFreeSpread mirrors the conditional UPDATE: the latch flips only
// if it is still unset, under the repo lock.
func (m *memUserRepo) ConsumeFreeSpread(ctx context.Context, tgID int64, spread model.SpreadType) error {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, tgID, spread)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[tgID]
	if !ok {
		return domain.ErrFreeSpreadUsed
	}
	switch spread {
	case model.SpreadDailyAdvice:
		if u.FreeDailyAdviceUsed {
			return domain.ErrFreeSpreadUsed
		}
		u.FreeDailyAdviceUsed = true
		now := time.Now()
		u.LastDailyAdviceDate = &now
	case model.SpreadYesNo:
		if u.FreeYesNoUsed {
			return domain.ErrFreeSpreadUsed
		}
		u.FreeYesNoUsed = true
	case model.SpreadThreeCards:
		if u.FreeThreeCardsUsed {
			return domain.ErrFreeSpreadUsed
		}
		u.FreeThreeCardsUsed = true
	default:
		return domain.ErrUnknownSpread
	}
	return nil
}

func (m *memUserRepo) Activate(ctx context.Context, userID string, expiry, activatedAt time.Time) error {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, userID, expiry, activatedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.store {
		if u.ID == userID {
			u.Activate(expiry, activatedAt)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memUserRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.store {
		if u.SubscriptionStatus == model.SubscriptionStatusActive &&
			(u.SubscriptionExpiry == nil || !u.SubscriptionExpiry.After(now)) {
			u.SubscriptionStatus = model.SubscriptionStatusInactive
			n++
		}
	}
	return n, nil
}

// ===== Reading repository =====

type memReadingRepo struct {
	mu    sync.Mutex
	store map[string]*model.Reading
	order []string // insertion order, newest last

	SaveFunc func(ctx context.Context, r *model.Reading) error
}

func newMemReadingRepo() *memReadingRepo {
	return &memReadingRepo{store: make(map[string]*model.Reading)}
}

func (m *memReadingRepo) Save(ctx context.Context, r *model.Reading) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.store[r.ID] = &cp
	m.order = append(m.order, r.ID)
	return nil
}

func (m *memReadingRepo) FindByID(ctx context.Context, id string) (*model.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReadingRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Reading, 0)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.store[m.order[i]]
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memReadingRepo) AppendClarification(ctx context.Context, readingID string, c model.Clarification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[readingID]
	if !ok {
		return domain.ErrNotFound
	}
	r.Clarifications = append(r.Clarifications, c)
	return nil
}

// ===== Payment repository =====

type memPaymentRepo struct {
	mu    sync.Mutex
	store map[string]*model.Payment // by ProviderID
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{store: make(map[string]*model.Payment)}
}

func (m *memPaymentRepo) Save(ctx context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.store[p.ProviderID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.store[p.ProviderID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByProviderID(ctx context.Context, providerID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[providerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) MarkSucceeded(ctx context.Context, providerID string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[providerID]
	if !ok || p.Status == model.PaymentStatusSucceeded {
		return false, nil
	}
	p.Status = model.PaymentStatusSucceeded
	p.PaidAt = &paidAt
	p.UpdatedAt = paidAt
	return true, nil
}

func (m *memPaymentRepo) MarkCanceled(ctx context.Context, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[providerID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status == model.PaymentStatusPending {
		p.Status = model.PaymentStatusCanceled
	}
	return nil
}

func (m *memPaymentRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Payment, 0)
	for _, p := range m.store {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(cutoff) && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ===== Adapters =====

type fakeAI struct {
	CompleteFunc func(ctx context.Context, messages []adapter.Message) (string, error)
}

func (f *fakeAI) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, messages)
	}
	return "The cards speak of change.", nil
}

func (f *fakeAI) Name() string { return "fake" }

type fakeGateway struct {
	CreateFunc func(ctx context.Context, amountValue, currency, description, returnURL string, metadata map[string]string) (*adapter.CreatedPayment, error)
	GetFunc    func(ctx context.Context, providerID string) (*adapter.ProviderPayment, error)
}

func (f *fakeGateway) CreatePayment(ctx context.Context, amountValue, currency, description, returnURL string, metadata map[string]string) (*adapter.CreatedPayment, error) {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, amountValue, currency, description, returnURL, metadata)
	}
	return &adapter.CreatedPayment{ProviderID: "prov-1", ConfirmationURL: "https://pay.example/prov-1"}, nil
}

func (f *fakeGateway) GetPayment(ctx context.Context, providerID string) (*adapter.ProviderPayment, error) {
	if f.GetFunc != nil {
		return f.GetFunc(ctx, providerID)
	}
	return &adapter.ProviderPayment{ID: providerID, Status: "pending"}, nil
}

func (f *fakeGateway) Name() string { return "fake" }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
