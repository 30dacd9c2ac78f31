package ai

import (
	"context"
	"strings"
	"time"

	"telegram-tarot-miniapp/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter serves canned interpretation text when no AI provider is
// configured (local/dev). The reading flow stays fully functional.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{}
}

func (a *NoopAIAdapter) Name() string { return "noop" }

func (a *NoopAIAdapter) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	var prompt string
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	var b strings.Builder
	b.WriteString("The cards on the table speak for themselves today.\n\n")
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "- ") {
			b.WriteString(strings.TrimPrefix(line, "- "))
			b.WriteString(". Sit with what this stirs in you.\n")
		}
	}
	b.WriteString("\nTake what resonates and leave the rest.")
	return b.String(), nil
}
