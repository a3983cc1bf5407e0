package resilience

import (
	"context"

	"github.com/MrWong99/aura/pkg/provider/s2s"
)

var _ s2s.Provider = (*GuardedS2S)(nil)

// GuardedS2S puts a [Breaker] in front of an [s2s.Provider]'s handshake so a
// service that keeps refusing sessions is not hammered by reconnects.
type GuardedS2S struct {
	inner   s2s.Provider
	breaker *Breaker
}

// GuardS2S wraps p.
func GuardS2S(p s2s.Provider, cfg BreakerConfig) *GuardedS2S {
	return &GuardedS2S{inner: p, breaker: NewBreaker(cfg)}
}

// Connect implements [s2s.Provider]. While the breaker is open it fails with
// [ErrCircuitOpen] without dialling.
func (g *GuardedS2S) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	var h s2s.SessionHandle
	err := g.breaker.Do(func() error {
		var err error
		h, err = g.inner.Connect(ctx, cfg)
		return err
	})
	return h, err
}

// State reports the breaker state. The health endpoint surfaces it.
func (g *GuardedS2S) State() State { return g.breaker.State() }
