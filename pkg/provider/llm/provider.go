// Package llm defines the text model used by chat mode.
//
// Live sessions talk to a speech-to-speech model; the chat REPL and its
// history trimming go through an llm.Provider instead. Implementations must
// be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/aura/pkg/types"
)

// Request is one chat completion. Messages must end with the user's turn.
type Request struct {
	// System is sent ahead of the history as a system message.
	System   string
	Messages []types.Message

	// Zero leaves the backend default.
	Temperature float64
	MaxTokens   int
}

// Usage is the token accounting reported by the backend, when it reports one.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Reply is the model's answer. Text may be empty.
type Reply struct {
	Text  string
	Usage Usage
}

// Limits describes the configured model's token window.
type Limits struct {
	ContextWindow   int
	MaxOutputTokens int
}

// HistoryBudget is how many tokens of prompt fit while leaving room for a
// full-length answer. It is zero or negative when the limits are unknown.
func (l Limits) HistoryBudget() int { return l.ContextWindow - l.MaxOutputTokens }

// Provider is a text model backend.
type Provider interface {
	// Complete waits for the whole reply.
	Complete(ctx context.Context, req Request) (*Reply, error)

	// CountTokens estimates the prompt size of messages. It must not
	// undercount.
	CountTokens(messages []types.Message) (int, error)

	Limits() Limits
}
