package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] failed or was
// skipped because its breaker was open.
var ErrAllFailed = errors.New("resilience: all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds a primary and zero or more fallbacks of the same provider type,
// each behind its own [Breaker]. Members are tried in the order they were
// added. Add all members before the first call.
type Group[T any] struct {
	cfg     BreakerConfig
	members []member[T]
}

// NewGroup returns a Group whose primary is named primaryName. cfg is the
// template for every member's breaker; its Name is replaced by the member
// name.
func NewGroup[T any](primaryName string, primary T, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Primary returns the first member.
func (g *Group[T]) Primary() T { return g.members[0].value }

// Names returns the member names in try order.
func (g *Group[T]) Names() []string {
	out := make([]string, len(g.members))
	for i, m := range g.members {
		out[i] = m.name
	}
	return out
}

// Call runs fn against each member in turn until one succeeds and returns its
// result. When all fail, the returned error wraps [ErrAllFailed] and the last
// member error.
func Call[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.members {
		m := &g.members[i]
		var out R
		err := m.breaker.Do(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping provider, circuit open", "provider", m.name)
			continue
		}
		slog.Warn("resilience: provider failed", "provider", m.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
