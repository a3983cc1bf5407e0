// Package anyllm runs chat mode on github.com/mozilla-ai/any-llm-go. Gemini
// is the default backend; any other backend the library ships can be named in
// the config instead.
//
//	p, err := anyllm.New("gemini", "gemini-2.5-flash", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	"github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/aura/pkg/provider/llm"
	"github.com/MrWong99/aura/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

type backendFunc func(...anyllmlib.Option) (anyllmlib.Provider, error)

// wrap adapts a concrete backend constructor to backendFunc.
func wrap[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) backendFunc {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return fn(opts...)
	}
}

var backends = map[string]backendFunc{
	"gemini":    wrap(gemini.New),
	"openai":    wrap(openai.New),
	"anthropic": wrap(anthropic.New),
	"ollama":    wrap(ollama.New),
	"deepseek":  wrap(deepseek.New),
	"mistral":   wrap(mistral.New),
	"groq":      wrap(groq.New),
	"llamacpp":  wrap(llamacpp.New),
	"llamafile": wrap(llamafile.New),
}

// Backends returns the names accepted by [New], sorted.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}

// Provider answers chat turns through one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
	limits  llm.Limits
}

// New connects to the named backend. Without an API key option the backend
// reads its usual environment variable (GEMINI_API_KEY, OPENAI_API_KEY, ...).
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	ctor, ok := backends[strings.ToLower(backend)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown backend %q (have %s)", backend, strings.Join(Backends(), ", "))
	}
	b, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", backend, err)
	}
	return &Provider{backend: b, model: model, limits: limitsFor(model)}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("anyllm: completion: no choices")
	}
	reply := &llm.Reply{Text: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		reply.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens}
	}
	return reply, nil
}

// tokenOverhead is charged per message for role markers.
const tokenOverhead = 4

// CountTokens implements llm.Provider. It assumes four bytes per token,
// rounded up, which overestimates for English text.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += (len(m.Content)+3)/4 + tokenOverhead
	}
	return n, nil
}

// Limits implements llm.Provider.
func (p *Provider) Limits() llm.Limits { return p.limits }

func (p *Provider) params(req llm.Request) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}

// limitsFor knows the token windows of the model families chat is usually
// pointed at. Anything else gets a conservative 32k/4k.
func limitsFor(model string) llm.Limits {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "gemini-2.5-pro"), strings.Contains(m, "gemini-3"):
		return llm.Limits{ContextWindow: 1_048_576, MaxOutputTokens: 65_536}
	case strings.HasPrefix(m, "gemini"):
		return llm.Limits{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"):
		return llm.Limits{ContextWindow: 128_000, MaxOutputTokens: 16_384}
	case strings.HasPrefix(m, "claude"):
		return llm.Limits{ContextWindow: 200_000, MaxOutputTokens: 8_192}
	default:
		return llm.Limits{ContextWindow: 32_768, MaxOutputTokens: 4_096}
	}
}
