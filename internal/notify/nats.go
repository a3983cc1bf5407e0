package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to every published event subject.
const DefaultSubjectPrefix = "aura.events"

// Event kinds, also used as the last subject token.
const (
	EventVolume        = "volume"
	EventClosed        = "closed"
	EventMemoryUpdated = "memory"
	EventError         = "error"
)

// Event is the JSON payload published for every notification.
type Event struct {
	Type    string    `json:"type"`
	Volume  float64   `json:"volume,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// PublisherOption configures a [Publisher].
type PublisherOption func(*Publisher)

// WithSubjectPrefix overrides [DefaultSubjectPrefix].
func WithSubjectPrefix(prefix string) PublisherOption {
	return func(p *Publisher) { p.prefix = prefix }
}

// WithVolumeInterval limits volume events to one per interval. Zero
// publishes every volume update.
func WithVolumeInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.volumeInterval = d }
}

// Publisher publishes notifications as JSON [Event]s on NATS subjects
// "<prefix>.<kind>". Publish failures are logged and dropped.
type Publisher struct {
	conn           *nats.Conn
	owned          bool
	prefix         string
	volumeInterval time.Duration
	now            func() time.Time

	mu         sync.Mutex
	lastVolume time.Time
}

var _ Notifier = (*Publisher)(nil)

// ConnectPublisher dials the NATS server(s) at url and returns a Publisher
// that owns the connection.
func ConnectPublisher(url string, opts ...PublisherOption) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("aura"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to nats: %w", err)
	}
	slog.Info("connected to NATS", "url", url)
	p := NewPublisher(conn, opts...)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. Close will not close conn.
func NewPublisher(conn *nats.Conn, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		conn:           conn,
		prefix:         DefaultSubjectPrefix,
		volumeInterval: 100 * time.Millisecond,
		now:            time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Subject returns the subject events of kind are published on.
func (p *Publisher) Subject(kind string) string { return p.prefix + "." + kind }

func (p *Publisher) Volume(v float64) {
	now := p.now()
	p.mu.Lock()
	if p.volumeInterval > 0 && !p.lastVolume.IsZero() && now.Sub(p.lastVolume) < p.volumeInterval {
		p.mu.Unlock()
		return
	}
	p.lastVolume = now
	p.mu.Unlock()
	p.publish(Event{Type: EventVolume, Volume: v, Time: now})
}

func (p *Publisher) Closed() { p.publish(Event{Type: EventClosed, Time: p.now()}) }

func (p *Publisher) MemoryUpdated() { p.publish(Event{Type: EventMemoryUpdated, Time: p.now()}) }

func (p *Publisher) Error(msg string) {
	p.publish(Event{Type: EventError, Message: msg, Time: p.now()})
}

func (p *Publisher) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("notify: marshal event", "type", ev.Type, "err", err)
		return
	}
	if err := p.conn.Publish(p.Subject(ev.Type), data); err != nil {
		slog.Debug("notify: publish failed", "type", ev.Type, "err", err)
	}
}

// Healthy reports whether the NATS connection is up.
func (p *Publisher) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

// Close drains the connection when the Publisher owns it.
func (p *Publisher) Close() error {
	if p == nil || !p.owned {
		return nil
	}
	slog.Info("closing NATS connection")
	return p.conn.Drain()
}
