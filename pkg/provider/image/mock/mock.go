// Package mock provides a test double for image.Provider.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/aura/pkg/provider/image"
)

var _ image.Provider = (*Provider)(nil)

// Provider returns Result and Err from every Generate call and records the
// requests.
type Provider struct {
	mu sync.Mutex

	Result *image.Result
	Err    error

	// GenerateCalls records every request in order.
	GenerateCalls []image.Request
}

// Generate implements image.Provider.
func (p *Provider) Generate(_ context.Context, req image.Request) (*image.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = append(p.GenerateCalls, req)
	return p.Result, p.Err
}

// Calls returns a snapshot of GenerateCalls.
func (p *Provider) Calls() []image.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.GenerateCalls)
}
