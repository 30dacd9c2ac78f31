package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/domain/ports/adapter"
	"telegram-tarot-miniapp/internal/domain/ports/repository"
	"telegram-tarot-miniapp/internal/tarot"

	"github.com/rs/zerolog"
)

const interpreterPersona = "You are a thoughtful tarot reader. Interpret the drawn cards for the " +
	"querent in 3-5 short paragraphs. Be warm and concrete, never fatalistic, and never promise " +
	"specific real-world outcomes."

// ReadingUseCase runs the full reading flow: entitlement check, draw,
// interpretation, persistence, usage recording.
type ReadingUseCase struct {
	readings     repository.ReadingRepository
	users        repository.UserRepository
	entitlements *EntitlementUseCase
	ai           adapter.AIServiceAdapter
	deck         *tarot.Deck
	aiTimeout    time.Duration
	now          func() time.Time
	log          *zerolog.Logger
}

func NewReadingUseCase(
	readings repository.ReadingRepository,
	users repository.UserRepository,
	entitlements *EntitlementUseCase,
	ai adapter.AIServiceAdapter,
	deck *tarot.Deck,
	aiTimeout time.Duration,
	logger *zerolog.Logger,
) *ReadingUseCase {
	l := logger.With().Str("component", "ReadingUC").Logger()
	return &ReadingUseCase{
		readings:     readings,
		users:        users,
		entitlements: entitlements,
		ai:           ai,
		deck:         deck,
		aiTimeout:    aiTimeout,
		now:          time.Now,
		log:          &l,
	}
}

// CreateReading performs one draw. allowed=false means entitlement denied
// (summary carries the upsell state); no reading is produced then.
//
// Order matters for the free tier: the interpretation is generated first
// (no side effects), then the latch is claimed with a conditional write,
// then the reading is saved. Two racing requests both reach the claim but
// only one wins it; the loser is denied without having persisted anything.
func (uc *ReadingUseCase) CreateReading(ctx context.Context, tgID int64, spread model.SpreadType, category, question string) (*model.Reading, model.Entitlement, bool, error) {
	u, err := uc.users.FindByTelegramID(ctx, tgID)
	if err != nil {
		return nil, model.Entitlement{}, false, err
	}
	now := uc.now()
	ent := model.EvaluateEntitlement(u, now)
	if !ent.CanUse(spread) {
		return nil, ent, false, nil
	}

	n := 1
	if spread == model.SpreadThreeCards {
		n = 3
	}
	cards, err := uc.deck.Draw(n)
	if err != nil {
		return nil, ent, false, fmt.Errorf("draw cards: %w", err)
	}

	interpretation, err := uc.interpret(ctx, spread, category, question, cards)
	if err != nil {
		uc.log.Error().Err(err).Int64("tg_id", tgID).Str("spread", string(spread)).Msg("interpretation failed")
		return nil, ent, false, fmt.Errorf("%w: %v", domain.ErrReadingUnavailable, err)
	}

	if !u.HasActiveSubscription(now) {
		if err := uc.users.ConsumeFreeSpread(ctx, tgID, spread); err != nil {
			if errors.Is(err, domain.ErrFreeSpreadUsed) {
				refreshed, rerr := uc.entitlements.Status(ctx, tgID)
				if rerr != nil {
					refreshed = ent
				}
				return nil, refreshed, false, nil
			}
			return nil, ent, false, err
		}
	}

	rd, err := model.NewReading(u.ID, spread, category, question, cards, interpretation)
	if err != nil {
		return nil, ent, false, err
	}
	if err := uc.readings.Save(ctx, rd); err != nil {
		// The free use is already spent at this point; surface the failure
		// rather than pretending the reading exists.
		return nil, ent, false, err
	}

	refreshed, err := uc.entitlements.Status(ctx, tgID)
	if err != nil {
		refreshed = ent
	}
	return rd, refreshed, true, nil
}

// Clarify appends a follow-up question to an owned reading. Follow-ups
// are a subscriber feature.
func (uc *ReadingUseCase) Clarify(ctx context.Context, tgID int64, readingID, question string) (*model.Reading, error) {
	u, err := uc.users.FindByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}
	if !u.HasActiveSubscription(uc.now()) {
		return nil, domain.ErrNoActiveSubscription
	}
	rd, err := uc.readings.FindByID(ctx, readingID)
	if err != nil {
		return nil, err
	}
	if rd.UserID != u.ID {
		return nil, domain.ErrNotOwner
	}

	answer, err := uc.answerClarification(ctx, rd, question)
	if err != nil {
		uc.log.Error().Err(err).Str("reading_id", readingID).Msg("clarification failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrReadingUnavailable, err)
	}

	c := model.Clarification{Question: question, Answer: answer, AskedAt: uc.now()}
	if err := uc.readings.AppendClarification(ctx, readingID, c); err != nil {
		return nil, err
	}
	rd.Clarifications = append(rd.Clarifications, c)
	return rd, nil
}

// History returns the newest readings, capped by the entitlement's
// history limit. Unsubscribed users get an empty list without touching
// the readings table.
func (uc *ReadingUseCase) History(ctx context.Context, tgID int64) ([]*model.Reading, error) {
	u, err := uc.users.FindByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}
	ent := model.EvaluateEntitlement(u, uc.now())
	if ent.HistoryLimit <= 0 {
		return []*model.Reading{}, nil
	}
	return uc.readings.ListByUser(ctx, u.ID, ent.HistoryLimit)
}

func (uc *ReadingUseCase) interpret(ctx context.Context, spread model.SpreadType, category, question string, cards []model.DrawnCard) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.aiTimeout)
	defer cancel()

	var b strings.Builder
	switch spread {
	case model.SpreadDailyAdvice:
		b.WriteString("Spread: daily advice, one card.\n")
	case model.SpreadYesNo:
		b.WriteString("Spread: yes/no question, one card. End with a clear lean toward yes or no.\n")
	case model.SpreadThreeCards:
		b.WriteString("Spread: three cards for past, present and future.\n")
	}
	if category != "" {
		b.WriteString("Topic: " + category + "\n")
	}
	if question != "" {
		b.WriteString("The querent asks: " + question + "\n")
	}
	b.WriteString("Cards drawn:\n")
	for _, c := range cards {
		b.WriteString("- " + cardLine(uc.deck, c) + "\n")
	}

	return uc.ai.Complete(ctx, []adapter.Message{
		{Role: "system", Content: interpreterPersona},
		{Role: "user", Content: b.String()},
	})
}

func (uc *ReadingUseCase) answerClarification(ctx context.Context, rd *model.Reading, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.aiTimeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("Earlier reading (spread " + string(rd.Spread) + "):\n")
	for _, c := range rd.Cards {
		b.WriteString("- " + cardLine(uc.deck, c) + "\n")
	}
	b.WriteString("Your interpretation was:\n" + rd.Interpretation + "\n")
	b.WriteString("The querent now asks a clarifying question: " + question + "\n")
	b.WriteString("Answer within the frame of the cards already on the table; do not draw new cards.")

	return uc.ai.Complete(ctx, []adapter.Message{
		{Role: "system", Content: interpreterPersona},
		{Role: "user", Content: b.String()},
	})
}

func cardLine(deck *tarot.Deck, c model.DrawnCard) string {
	line := c.Name
	if c.Position != "" {
		line += " (" + c.Position + ")"
	}
	if c.Reversed {
		line += ", reversed"
	}
	if card, ok := deck.Lookup(c.Name); ok {
		if c.Reversed {
			line += ": " + card.Reversed
		} else {
			line += ": " + card.Upright
		}
	}
	return line
}
