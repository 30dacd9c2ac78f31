package ai

import (
	"context"

	"github.com/pkoukk/tiktoken-go"

	"telegram-tarot-miniapp/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*budgetedAI)(nil)

// budgetedAI bounds the prompt size before it reaches a paid backend.
// Clarification prompts carry the full prior interpretation, which can
// grow; anything over budget gets its middle truncated, keeping the head
// (spread and cards) and the tail (the actual question).
type budgetedAI struct {
	inner     adapter.AIServiceAdapter
	enc       *tiktoken.Tiktoken
	maxPrompt int
}

// WithPromptBudget wraps an adapter with a token ceiling. A zero or
// negative budget returns the adapter unchanged.
func WithPromptBudget(inner adapter.AIServiceAdapter, maxPromptTokens int) (adapter.AIServiceAdapter, error) {
	if maxPromptTokens <= 0 {
		return inner, nil
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &budgetedAI{inner: inner, enc: enc, maxPrompt: maxPromptTokens}, nil
}

func (b *budgetedAI) Name() string { return b.inner.Name() }

func (b *budgetedAI) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	total := 0
	counts := make([]int, len(messages))
	for i, m := range messages {
		counts[i] = len(b.enc.Encode(m.Content, nil, nil))
		total += counts[i]
	}
	if total <= b.maxPrompt {
		return b.inner.Complete(ctx, messages)
	}

	trimmed := make([]adapter.Message, len(messages))
	copy(trimmed, messages)
	// Only the last (user) message grows unbounded; shrink it to fit.
	idx := len(trimmed) - 1
	over := total - b.maxPrompt
	keep := counts[idx] - over
	if keep < 64 {
		keep = 64
	}
	trimmed[idx].Content = b.truncateMiddle(trimmed[idx].Content, keep)
	return b.inner.Complete(ctx, trimmed)
}

func (b *budgetedAI) truncateMiddle(s string, keepTokens int) string {
	toks := b.enc.Encode(s, nil, nil)
	if len(toks) <= keepTokens {
		return s
	}
	head := keepTokens / 2
	tail := keepTokens - head
	return b.enc.Decode(toks[:head]) + "\n[...]\n" + b.enc.Decode(toks[len(toks)-tail:])
}
