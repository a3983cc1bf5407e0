package resilience

import (
	"context"

	"github.com/MrWong99/aura/pkg/provider/llm"
	"github.com/MrWong99/aura/pkg/types"
)

var _ llm.Provider = (*LLMFallback)(nil)

// LLMFallback is an [llm.Provider] that moves on to the next chat backend when
// one fails or its breaker is open.
type LLMFallback struct {
	group *Group[llm.Provider]
}

// NewLLMFallback returns an LLMFallback preferring primary.
func NewLLMFallback(primaryName string, primary llm.Provider, cfg BreakerConfig) *LLMFallback {
	return &LLMFallback{group: NewGroup(primaryName, primary, cfg)}
}

// AddFallback appends a backend to the try order.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.Add(name, p) }

// Backends returns the backend names in try order.
func (f *LLMFallback) Backends() []string { return f.group.Names() }

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	return Call(f.group, func(p llm.Provider) (*llm.Reply, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens asks the primary, so the trimmed history does not change size
// depending on which backend answered last.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// Limits returns the primary's limits.
func (f *LLMFallback) Limits() llm.Limits { return f.group.Primary().Limits() }
