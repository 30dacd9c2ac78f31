//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/domain/ports/adapter"
	"telegram-tarot-miniapp/internal/tarot"
	"telegram-tarot-miniapp/internal/usecase"
)

func newReadingUC(users *memUserRepo, readings *memReadingRepo, ai *fakeAI) *usecase.ReadingUseCase {
	log := newTestLogger()
	entUC := usecase.NewEntitlementUseCase(users, log)
	return usecase.NewReadingUseCase(readings, users, entUC, ai, tarot.NewDeck(), 5*time.Second, log)
}

func TestReadingUseCase_CreateReading(t *testing.T) {
	ctx := context.Background()

	t.Run("free user gets one reading per spread", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, 600)
		readings := newMemReadingRepo()
		uc := newReadingUC(users, readings, &fakeAI{})

		rd, ent, allowed, err := uc.CreateReading(ctx, 600, model.SpreadDailyAdvice, "love", "should I write?")
		if err != nil {
			t.Fatalf("CreateReading: %v", err)
		}
		if !allowed {
			t.Fatal("first reading should be allowed")
		}
		if len(rd.Cards) != 1 {
			t.Errorf("daily advice draws 1 card, got %d", len(rd.Cards))
		}
		if rd.Interpretation == "" {
			t.Error("interpretation should be filled in")
		}
		if ent.CanUseDailyAdvice {
			t.Error("refreshed summary should show daily advice spent")
		}

		rd2, _, allowed, err := uc.CreateReading(ctx, 600, model.SpreadDailyAdvice, "", "")
		if err != nil {
			t.Fatalf("second reading: %v", err)
		}
		if allowed || rd2 != nil {
			t.Fatal("second free daily reading must be denied without persisting")
		}
	})

	t.Run("three card spread draws positioned cards", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, 601)
		uc := newReadingUC(users, newMemReadingRepo(), &fakeAI{})

		rd, _, allowed, err := uc.CreateReading(ctx, 601, model.SpreadThreeCards, "", "what lies ahead?")
		if err != nil || !allowed {
			t.Fatalf("three cards: allowed=%v err=%v", allowed, err)
		}
		if len(rd.Cards) != 3 {
			t.Fatalf("expected 3 cards, got %d", len(rd.Cards))
		}
		if rd.Cards[0].Position != "past" || rd.Cards[2].Position != "future" {
			t.Errorf("positions = %q..%q", rd.Cards[0].Position, rd.Cards[2].Position)
		}
	})

	t.Run("AI failure does not spend the free use", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, 602)
		ai := &fakeAI{CompleteFunc: func(ctx context.Context, _ []adapter.Message) (string, error) {
			return "", errors.New("model overloaded")
		}}
		uc := newReadingUC(users, newMemReadingRepo(), ai)

		_, _, _, err := uc.CreateReading(ctx, 602, model.SpreadYesNo, "", "will it rain?")
		if !errors.Is(err, domain.ErrReadingUnavailable) {
			t.Fatalf("expected ErrReadingUnavailable, got %v", err)
		}

		u, _ := users.FindByTelegramID(ctx, 602)
		if u.FreeYesNoUsed {
			t.Error("failed reading must not spend the latch")
		}
	})

	t.Run("wrapped latch-spent error from the store is a denial", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, 604)
		users.ConsumeFunc = func(ctx context.Context, tgID int64, spread model.SpreadType) error {
			return fmt.Errorf("consume free spread: %w", domain.ErrFreeSpreadUsed)
		}
		uc := newReadingUC(users, newMemReadingRepo(), &fakeAI{})

		rd, _, allowed, err := uc.CreateReading(ctx, 604, model.SpreadYesNo, "", "again?")
		if err != nil {
			t.Fatalf("a spent latch is a denial, not an error: %v", err)
		}
		if allowed || rd != nil {
			t.Fatal("reading must be denied when the latch write reports it spent")
		}
	})

	t.Run("subscriber readings never touch the latches", func(t *testing.T) {
		users := newMemUserRepo()
		u := seedUser(t, users, 603)
		u.Activate(time.Now().Add(24*time.Hour), time.Now())
		users.put(u)
		uc := newReadingUC(users, newMemReadingRepo(), &fakeAI{})

		for i := 0; i < 3; i++ {
			if _, _, allowed, err := uc.CreateReading(ctx, 603, model.SpreadYesNo, "", "again?"); err != nil || !allowed {
				t.Fatalf("subscriber reading %d: allowed=%v err=%v", i, allowed, err)
			}
		}
		got, _ := users.FindByTelegramID(ctx, 603)
		if got.FreeYesNoUsed {
			t.Error("subscriber readings must not flip the free latch")
		}
	})
}

func TestReadingUseCase_Clarify(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, subscribed bool) (*usecase.ReadingUseCase, *memUserRepo, *model.Reading) {
		users := newMemUserRepo()
		u := seedUser(t, users, 700)
		if subscribed {
			u.Activate(time.Now().Add(24*time.Hour), time.Now())
			users.put(u)
		}
		readings := newMemReadingRepo()
		uc := newReadingUC(users, readings, &fakeAI{})

		rd, _, allowed, err := uc.CreateReading(ctx, 700, model.SpreadThreeCards, "", "context?")
		if err != nil || !allowed {
			t.Fatalf("seed reading: allowed=%v err=%v", allowed, err)
		}
		return uc, users, rd
	}

	t.Run("subscriber can clarify an owned reading", func(t *testing.T) {
		uc, _, rd := setup(t, true)
		got, err := uc.Clarify(ctx, 700, rd.ID, "what about the reversed card?")
		if err != nil {
			t.Fatalf("Clarify: %v", err)
		}
		if len(got.Clarifications) != 1 {
			t.Fatalf("expected 1 clarification, got %d", len(got.Clarifications))
		}
		if got.Clarifications[0].Answer == "" {
			t.Error("clarification answer should be filled in")
		}
	})

	t.Run("free tier cannot clarify", func(t *testing.T) {
		uc, _, rd := setup(t, false)
		if _, err := uc.Clarify(ctx, 700, rd.ID, "tell me more"); !errors.Is(err, domain.ErrNoActiveSubscription) {
			t.Fatalf("expected ErrNoActiveSubscription, got %v", err)
		}
	})

	t.Run("clarifying someone else's reading is forbidden", func(t *testing.T) {
		uc, users, rd := setup(t, true)
		other := seedUser(t, users, 701)
		other.Activate(time.Now().Add(24*time.Hour), time.Now())
		users.put(other)

		if _, err := uc.Clarify(ctx, 701, rd.ID, "mine now"); !errors.Is(err, domain.ErrNotOwner) {
			t.Fatalf("expected ErrNotOwner, got %v", err)
		}
	})
}

func TestReadingUseCase_History(t *testing.T) {
	ctx := context.Background()
	users := newMemUserRepo()
	u := seedUser(t, users, 800)
	u.Activate(time.Now().Add(24*time.Hour), time.Now())
	users.put(u)
	readings := newMemReadingRepo()
	uc := newReadingUC(users, readings, &fakeAI{})

	for i := 0; i < 4; i++ {
		if _, _, allowed, err := uc.CreateReading(ctx, 800, model.SpreadDailyAdvice, "", ""); err != nil || !allowed {
			t.Fatalf("seed reading %d: allowed=%v err=%v", i, allowed, err)
		}
	}

	t.Run("subscriber sees history", func(t *testing.T) {
		list, err := uc.History(ctx, 800)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(list) != 4 {
			t.Fatalf("expected 4 readings, got %d", len(list))
		}
	})

	t.Run("lapsed subscriber gets an empty history", func(t *testing.T) {
		got, _ := users.FindByTelegramID(ctx, 800)
		got.Activate(time.Now().Add(-time.Hour), time.Now().Add(-48*time.Hour))
		users.put(got)

		list, err := uc.History(ctx, 800)
		if err != nil {
			t.Fatalf("History after lapse: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("history must be gated off for the free tier, got %d entries", len(list))
		}
	})
}
