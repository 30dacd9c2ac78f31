package repository

import (
	"context"

	"telegram-tarot-miniapp/internal/domain/model"
)

type ReadingRepository interface {
	Save(ctx context.Context, r *model.Reading) error
	FindByID(ctx context.Context, id string) (*model.Reading, error)
	// ListByUser returns the newest readings first, at most limit entries.
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Reading, error)
	// AppendClarification adds one follow-up entry; existing entries are
	// never touched.
	AppendClarification(ctx context.Context, readingID string, c model.Clarification) error
}
