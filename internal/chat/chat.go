// Package chat is the text side of the companion: a conversation with the
// same persona as the voice session, backed by an [llm.Provider], with
// optional image generation inline.
//
// Only text turns are sent to the model as history. Image turns are kept in
// the transcript for display but never replayed.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/aura/internal/observe"
	"github.com/MrWong99/aura/internal/persona"
	"github.com/MrWong99/aura/pkg/provider/image"
	"github.com/MrWong99/aura/pkg/provider/llm"
	"github.com/MrWong99/aura/pkg/types"
)

// Fallback is the reply used when the model returns no text.
const Fallback = "I'm not sure what to say."

// ErrNoImageProvider is returned by [Conversation.Imagine] when no image
// provider was configured.
var ErrNoImageProvider = errors.New("chat: image generation not configured")

// Turn roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one entry of the conversation transcript.
type Turn struct {
	Role string
	Text string

	// Image is set for generated images. Image turns are not sent to the
	// model.
	Image *image.Result

	Time time.Time
}

// Option configures a [Conversation].
type Option func(*Conversation)

// WithImages enables [Conversation.Imagine].
func WithImages(p image.Provider) Option {
	return func(c *Conversation) { c.images = p }
}

// WithSystemPrompt replaces [persona.Character].
func WithSystemPrompt(prompt string) Option {
	return func(c *Conversation) { c.systemPrompt = prompt }
}

// WithTokenBudget caps the tokens of history sent per request. Zero derives
// the budget from the model's context window.
func WithTokenBudget(n int) Option {
	return func(c *Conversation) { c.budget = n }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Conversation) { c.metrics = m }
}

// WithProviderName labels metrics and spans.
func WithProviderName(name string) Option {
	return func(c *Conversation) { c.providerName = name }
}

// Conversation is a single chat. Safe for concurrent use; sends are
// serialised so turns never interleave.
type Conversation struct {
	llm          llm.Provider
	images       image.Provider
	systemPrompt string
	budget       int
	metrics      *observe.Metrics
	providerName string
	now          func() time.Time

	mu      sync.Mutex
	history []Turn
}

// New returns an empty Conversation.
func New(p llm.Provider, opts ...Option) *Conversation {
	c := &Conversation{
		llm:          p,
		systemPrompt: persona.Character,
		metrics:      observe.DefaultMetrics(),
		providerName: "llm",
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.budget <= 0 {
		c.budget = p.Limits().HistoryBudget()
	}
	return c
}

// History returns a copy of the transcript.
func (c *Conversation) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.history...)
}

// Send posts text as the user's message and returns the reply. The user turn
// is kept even when the request fails; the reply is only recorded on success.
func (c *Conversation) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("chat: message is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	messages, err := c.context(text)
	if err != nil {
		return "", err
	}
	c.history = append(c.history, Turn{Role: RoleUser, Text: text, Time: c.now()})

	ctx, span := observe.StartSpan(ctx, "chat.send",
		trace.WithAttributes(
			attribute.String("provider", c.providerName),
			attribute.Int("messages", len(messages)),
		),
	)
	start := time.Now()
	resp, err := c.llm.Complete(ctx, llm.Request{System: c.systemPrompt, Messages: messages})
	c.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", c.providerName)))
	observe.EndSpan(span, err)
	if err != nil {
		c.metrics.RecordProviderRequest(ctx, c.providerName, "chat", "error")
		c.metrics.RecordProviderError(ctx, c.providerName, "chat")
		return "", fmt.Errorf("chat: send: %w", err)
	}
	c.metrics.RecordProviderRequest(ctx, c.providerName, "chat", "ok")

	if resp == nil {
		resp = &llm.Reply{}
	}
	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		reply = Fallback
	}
	c.history = append(c.history, Turn{Role: RoleModel, Text: reply, Time: c.now()})
	observe.Logger(ctx).Debug("chat: reply",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return reply, nil
}

// context builds the request messages: the text-only history followed by
// next, with the oldest turns dropped until the token estimate fits the
// budget. next itself is always sent. c.mu must be held.
func (c *Conversation) context(next string) ([]types.Message, error) {
	var msgs []types.Message
	for _, t := range c.history {
		if t.Image != nil || t.Text == "" {
			continue
		}
		role := types.RoleUser
		if t.Role == RoleModel {
			role = types.RoleAssistant
		}
		msgs = append(msgs, types.Message{Role: role, Content: t.Text})
	}
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: next})

	if c.budget <= 0 {
		return msgs, nil
	}
	system := types.Message{Role: types.RoleSystem, Content: c.systemPrompt}
	dropped := 0
	for len(msgs) > 1 {
		n, err := c.llm.CountTokens(append([]types.Message{system}, msgs...))
		if err != nil {
			return nil, fmt.Errorf("chat: count tokens: %w", err)
		}
		if n <= c.budget {
			break
		}
		msgs = msgs[1:]
		dropped++
	}
	// Histories must open with a user turn.
	for len(msgs) > 1 && msgs[0].Role != types.RoleUser {
		msgs = msgs[1:]
		dropped++
	}
	if dropped > 0 {
		slog.Debug("chat: trimmed history", "dropped", dropped, "kept", len(msgs))
	}
	return msgs, nil
}

// Imagine generates an image for req and records it as a model turn. The
// prompt is recorded as a user turn first.
func (c *Conversation) Imagine(ctx context.Context, req image.Request) (*image.Result, error) {
	if c.images == nil {
		return nil, ErrNoImageProvider
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.history = append(c.history, Turn{Role: RoleUser, Text: req.Prompt, Time: c.now()})
	c.mu.Unlock()

	res, err := Generate(ctx, c.images, req, c.metrics)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.history = append(c.history, Turn{Role: RoleModel, Text: res.Caption, Image: res, Time: c.now()})
	c.mu.Unlock()
	return res, nil
}

// Generate runs one image request with tracing and metrics. It is shared by
// [Conversation.Imagine] and the one-shot image command.
func Generate(ctx context.Context, p image.Provider, req image.Request, m *observe.Metrics) (*image.Result, error) {
	ctx, span := observe.StartSpan(ctx, "image.generate",
		trace.WithAttributes(
			attribute.String("resolution", string(req.Resolution)),
			attribute.String("aspect_ratio", string(req.AspectRatio)),
		),
	)
	start := time.Now()
	res, err := p.Generate(ctx, req)
	m.ImageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("resolution", string(req.Resolution))))
	observe.EndSpan(span, err)
	if err != nil {
		m.RecordProviderRequest(ctx, "gemini", "image", "error")
		m.RecordProviderError(ctx, "gemini", "image")
		return nil, fmt.Errorf("chat: generate image: %w", err)
	}
	m.RecordProviderRequest(ctx, "gemini", "image", "ok")
	return res, nil
}
