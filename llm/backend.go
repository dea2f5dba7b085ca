// Package llm generates companion responses. A backend wraps one model
// endpoint; the worker streams its output through the sentence splitter
// so synthesis of the first sentence starts while the model is still
// generating the rest.
package llm

import (
	"context"

	"github.com/AltairaLabs/hearth/types"
)

// SentenceChunk is one unit of streamed output after sentence
// splitting. Exactly one chunk per request carries IsFinal; its
// TokensUsed is the request total.
type SentenceChunk struct {
	Sentence   string
	IsFinal    bool
	TokensUsed int
}

// BatchResult is the outcome of a blocking generation call.
type BatchResult struct {
	Text       string
	TokensUsed int
}

// Backend generates a complete response in one blocking call.
type Backend interface {
	Name() string
	Model() string
	GenerateBatch(ctx context.Context, req *types.LLMRequest) (BatchResult, error)
	HealthCheck(ctx context.Context) error
}

// StreamingBackend additionally yields sentence chunks as the model
// produces tokens. The worker prefers this path when the backend
// supports it, detected by interface assertion.
type StreamingBackend interface {
	Backend
	GenerateStreaming(ctx context.Context, req *types.LLMRequest) (<-chan SentenceChunk, error)
}

// buildMessages assembles the chat message list a backend sends: system
// prompt first, then history oldest to newest, then the user message.
func buildMessages(req *types.LLMRequest) []types.ChatMessage {
	messages := make([]types.ChatMessage, 0, len(req.ConversationHistory)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, types.ChatMessage{Role: types.RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, req.ConversationHistory...)
	messages = append(messages, types.ChatMessage{Role: types.RoleUser, Content: req.UserMessage})
	return messages
}
