package model

import (
	"time"

	"telegram-tarot-miniapp/internal/domain"

	"github.com/oklog/ulid/v2"
)

// DrawnCard is one card of a spread as it landed on the table.
type DrawnCard struct {
	Name     string `json:"name"`
	Arcana   string `json:"arcana"`
	Reversed bool   `json:"reversed"`
	Position string `json:"position,omitempty"` // past/present/future for three-card spreads
}

// Clarification is a follow-up question asked against an existing reading.
// Entries are appended over time and never removed.
type Clarification struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"askedAt"`
}

// Reading is one completed tarot draw belonging to a user. Created once
// per reading request; only clarifications are ever appended afterwards.
type Reading struct {
	ID             string // ULID, sortable by creation time
	UserID         string // UUID of the owning user
	Spread         SpreadType
	Category       string
	Question       string
	Cards          []DrawnCard
	Interpretation string
	Clarifications []Clarification
	CreatedAt      time.Time
}

func NewReading(userID string, spread SpreadType, category, question string, cards []DrawnCard, interpretation string) (*Reading, error) {
	if userID == "" || len(cards) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Reading{
		ID:             ulid.Make().String(),
		UserID:         userID,
		Spread:         spread,
		Category:       category,
		Question:       question,
		Cards:          cards,
		Interpretation: interpretation,
		CreatedAt:      time.Now(),
	}, nil
}

func (r *Reading) AddClarification(question, answer string, at time.Time) {
	r.Clarifications = append(r.Clarifications, Clarification{
		Question: question,
		Answer:   answer,
		AskedAt:  at,
	})
}
