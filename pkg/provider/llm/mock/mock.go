// Package mock provides a recording llm.Provider for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/aura/pkg/provider/llm"
	"github.com/MrWong99/aura/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// Provider answers every request with Reply (or Err). The zero value replies
// with nil, nil.
type Provider struct {
	mu sync.Mutex

	Reply *llm.Reply
	Err   error

	// ReplyFunc, if set, replaces Reply and Err.
	ReplyFunc func(req llm.Request) (*llm.Reply, error)

	// TokensPerMessage is what CountTokens charges for each message.
	TokensPerMessage int

	ModelLimits llm.Limits

	requests []llm.Request
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.Request) (*llm.Reply, error) {
	p.mu.Lock()
	req.Messages = slices.Clone(req.Messages)
	p.requests = append(p.requests, req)
	fn, reply, err := p.ReplyFunc, p.Reply, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return reply, err
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(messages) * p.TokensPerMessage, nil
}

// Limits implements llm.Provider.
func (p *Provider) Limits() llm.Limits {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelLimits
}

// Requests returns the Complete requests seen so far.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}
