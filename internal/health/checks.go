package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/aura/internal/resilience"
	"github.com/MrWong99/aura/pkg/memory"
)

// Memory passes while the memory record can be read.
func Memory(store *memory.Store) Check {
	return func(ctx context.Context) error {
		_, err := store.Load(ctx)
		return err
	}
}

// Healthier is a connection that knows whether it is usable, such as the
// NATS event publisher.
type Healthier interface {
	Healthy() bool
}

// Connected fails while c reports itself unhealthy.
func Connected(c Healthier) Check {
	return func(context.Context) error {
		if !c.Healthy() {
			return errors.New("not connected")
		}
		return nil
	}
}

// Breaker fails while the circuit is open. Half-open still counts as ready.
func Breaker(state func() resilience.State) Check {
	return func(context.Context) error {
		if s := state(); s == resilience.StateOpen {
			return fmt.Errorf("circuit %s", s)
		}
		return nil
	}
}
