// Package mock provides a test double for the memory KV backend.
//
// KV keeps values in a map, records every call, and can be told to fail:
//
//	kv := &mock.KV{}
//	kv.PutErr = errors.New("disk full")
//	store := memory.NewStore(kv)
//
//	// inject store into the system under test …
//
//	if got := kv.CallCount("Put"); got != 1 {
//	    t.Errorf("expected 1 Put call, got %d", got)
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/aura/pkg/memory"
)

var _ memory.KV = (*KV)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// KV is a configurable test double for [memory.KV]. The zero value is ready
// to use and behaves like an empty store.
type KV struct {
	mu    sync.Mutex
	calls []Call
	data  map[string][]byte

	// GetErr is returned by [KV.Get] when non-nil.
	GetErr error

	// PutErr is returned by [KV.Put] when non-nil. The value is not stored.
	PutErr error

	// CloseErr is returned by [KV.Close].
	CloseErr error
}

func (k *KV) record(method string, args ...any) {
	k.calls = append(k.calls, Call{Method: method, Args: args})
}

// Get implements [memory.KV].
func (k *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.record("Get", key)
	if k.GetErr != nil {
		return nil, false, k.GetErr
	}
	v, ok := k.data[key]
	return slices.Clone(v), ok, nil
}

// Put implements [memory.KV].
func (k *KV) Put(_ context.Context, key string, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.record("Put", key, slices.Clone(value))
	if k.PutErr != nil {
		return k.PutErr
	}
	if k.data == nil {
		k.data = make(map[string][]byte)
	}
	k.data[key] = slices.Clone(value)
	return nil
}

// Close implements [memory.KV].
func (k *KV) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.record("Close")
	return k.CloseErr
}

// SetErrors replaces GetErr and PutErr under the lock, for tests that flip
// failure modes while the system under test is running.
func (k *KV) SetErrors(getErr, putErr error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.GetErr, k.PutErr = getErr, putErr
}

// Calls returns a copy of all recorded calls in order.
func (k *KV) Calls() []Call {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.calls)
}

// CallCount returns how many times method was called.
func (k *KV) CallCount(method string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for _, c := range k.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears calls and stored values. Error fields are kept.
func (k *KV) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = nil
	k.data = nil
}
