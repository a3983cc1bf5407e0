// Package mock provides a recording test double for notify.Notifier.
package mock

import (
	"slices"
	"sync"

	"github.com/MrWong99/aura/internal/notify"
)

var _ notify.Notifier = (*Notifier)(nil)

// Notifier records every notification. Changed, if non-nil, receives a
// non-blocking signal after each one so tests can wait for activity.
type Notifier struct {
	mu sync.Mutex

	Volumes         []float64
	Errors          []string
	CallCountClosed int
	CallCountMemory int

	changed     chan struct{}
	changedOnce sync.Once
}

func (n *Notifier) signal() {
	n.changedOnce.Do(func() { n.changed = make(chan struct{}, 1) })
	select {
	case n.changed <- struct{}{}:
	default:
	}
}

// Changed returns a channel that receives after every notification.
func (n *Notifier) Changed() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changedOnce.Do(func() { n.changed = make(chan struct{}, 1) })
	return n.changed
}

func (n *Notifier) Volume(v float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Volumes = append(n.Volumes, v)
	n.signal()
}

func (n *Notifier) Closed() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.CallCountClosed++
	n.signal()
}

func (n *Notifier) MemoryUpdated() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.CallCountMemory++
	n.signal()
}

func (n *Notifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Errors = append(n.Errors, msg)
	n.signal()
}

// Snapshot returns copies of the recorded state.
func (n *Notifier) Snapshot() (volumes []float64, errs []string, closed, memory int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.Volumes), slices.Clone(n.Errors), n.CallCountClosed, n.CallCountMemory
}
