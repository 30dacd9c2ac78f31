package adapter

import "context"

// Message is one turn of a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AIServiceAdapter generates interpretation text. Implementations must
// respect ctx cancellation; the caller bounds every call with a timeout.
type AIServiceAdapter interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}
