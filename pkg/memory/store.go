// Package memory persists what the companion knows about its user: a list of
// remembered facts, interaction statistics and the chosen bot identity.
//
// The whole record lives under a single key in a [KV] backend, so any simple
// key-value store can hold it. Backends ship in the sqlite and postgres
// sub-packages; [NewMemKV] serves tests and ephemeral runs.
//
// [Store] serialises read-modify-write cycles, so concurrent SaveFact and
// RecordInteraction calls never lose updates within one process.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultKey is the key the memory record is stored under.
const DefaultKey = "aura_memory_v1"

// ErrEmptyFact is returned by [Store.SaveFact] for blank facts.
var ErrEmptyFact = errors.New("memory: fact is empty")

// KV is the minimal key-value backend the Store needs.
//
// Implementations must be safe for concurrent use.
type KV interface {
	// Get returns the value for key. ok is false when the key does not exist.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases the backend.
	Close() error
}

// Option configures a [Store].
type Option func(*Store)

// WithKey overrides [DefaultKey].
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithClock replaces time.Now. Tests use it to pin the time of day and the
// interaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the user memory. All methods are safe for concurrent use.
type Store struct {
	kv  KV
	key string
	now func() time.Time

	mu sync.Mutex
}

// NewStore returns a Store on top of kv.
func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{kv: kv, key: DefaultKey, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns the current record. A missing record yields an empty one. A
// record that cannot be parsed is logged and treated as empty; it will be
// overwritten by the next write.
func (s *Store) Load(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (Record, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return Record{}, fmt.Errorf("memory: load: %w", err)
	}
	var rec Record
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.Warn("memory: discarding unreadable record", "key", s.key, "err", err)
			rec = Record{}
		}
	}
	if rec.Facts == nil {
		rec.Facts = []string{}
	}
	return rec, nil
}

func (s *Store) save(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: marshal: %w", err)
	}
	if err := s.kv.Put(ctx, s.key, raw); err != nil {
		return fmt.Errorf("memory: save: %w", err)
	}
	return nil
}

// update runs fn on the current record and persists the result when fn
// reports a change.
func (s *Store) update(ctx context.Context, fn func(*Record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !fn(&rec) {
		return nil
	}
	return s.save(ctx, rec)
}

// Settings returns the saved bot settings, or [DefaultSettings] when none
// were saved.
func (s *Store) Settings(ctx context.Context) (BotSettings, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return BotSettings{}, err
	}
	if rec.Settings == nil {
		return DefaultSettings(), nil
	}
	return *rec.Settings, nil
}

// SaveSettings validates and persists settings. They apply from the next
// session on.
func (s *Store) SaveSettings(ctx context.Context, settings BotSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.update(ctx, func(r *Record) bool {
		r.Settings = &settings
		return true
	})
}

// SaveFact remembers fact. It reports false without error when the fact is
// already known; duplicates are matched after trimming surrounding space.
func (s *Store) SaveFact(ctx context.Context, fact string) (bool, error) {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return false, ErrEmptyFact
	}
	added := false
	err := s.update(ctx, func(r *Record) bool {
		if slices.Contains(r.Facts, fact) {
			return false
		}
		r.Facts = append(r.Facts, fact)
		added = true
		return true
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// Facts returns the remembered facts in the order they were learned.
func (s *Store) Facts(ctx context.Context) ([]string, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Facts, nil
}

// RecordInteraction stamps the current time as the last interaction and
// increments the interaction counter.
func (s *Store) RecordInteraction(ctx context.Context) error {
	now := s.now()
	return s.update(ctx, func(r *Record) bool {
		r.LastInteraction = now.UnixMilli()
		r.InteractionCount++
		return true
	})
}

// ContextPrompt renders the remembered context appended to the companion's
// instructions: time of day, interaction count, known facts and how long ago
// the last conversation was.
func (s *Store) ContextPrompt(ctx context.Context) (string, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return renderContext(rec, s.now()), nil
}

// Close closes the backend.
func (s *Store) Close() error { return s.kv.Close() }

func renderContext(rec Record, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current Context:\n- Time: %s\n- Interaction Count: %d\n", timeOfDay(now), rec.InteractionCount)

	if len(rec.Facts) > 0 {
		b.WriteString("\nThings you remember about your partner (the user):\n")
		for _, f := range rec.Facts {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	} else {
		b.WriteString("\nThis is your first conversation. Be charming and ask for their name.\n")
	}

	if last := rec.LastInteractionTime(); !last.IsZero() {
		daysAgo := int(now.Sub(last) / (24 * time.Hour))
		switch {
		case daysAgo > 7:
			fmt.Fprintf(&b, "\nIt has been %d days since you last spoke. Say you missed them.\n", daysAgo)
		case daysAgo == 0:
			b.WriteString("\nYou just spoke earlier today.\n")
		}
	}
	return b.String()
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// ── In-memory backend ─────────────────────────────────────────────────────────

var _ KV = (*MemKV)(nil)

// MemKV is a process-local [KV]. Its contents are lost on exit.
type MemKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemKV returns an empty MemKV.
func NewMemKV() *MemKV { return &MemKV{data: make(map[string][]byte)} }

// Get implements [KV].
func (m *MemKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return slices.Clone(v), ok, nil
}

// Put implements [KV].
func (m *MemKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = slices.Clone(value)
	return nil
}

// Close implements [KV].
func (m *MemKV) Close() error { return nil }
