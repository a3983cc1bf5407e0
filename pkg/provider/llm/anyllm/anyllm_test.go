package anyllm

import (
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/aura/pkg/provider/llm"
	"github.com/MrWong99/aura/pkg/types"
)

func TestParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gemini-2.5-flash"}
	params := p.params(llm.Request{
		System: "You are Aura.",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "hi"},
			{Role: types.RoleAssistant, Content: "hey"},
			{Role: types.RoleUser, Content: "how are you?"},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	})

	if params.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("messages = %d, want system + 3", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "You are Aura." {
		t.Errorf("first message = %+v", params.Messages[0])
	}
	if params.Messages[2].Role != types.RoleAssistant || params.Messages[3].ContentString() != "how are you?" {
		t.Errorf("history not carried over: %+v", params.Messages[1:])
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

func TestParams_NoSystemNoTuning(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "m"}
	params := p.params(llm.Request{Messages: []types.Message{{Role: types.RoleUser, Content: "x"}}})
	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want 1", len(params.Messages))
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Errorf("temperature/max tokens = %v/%v, want nil", params.Temperature, params.MaxTokens)
	}
}

func TestLimitsFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model string
		want  llm.Limits
	}{
		{"gemini-2.5-flash", llm.Limits{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
		{"GEMINI-2.5-PRO", llm.Limits{ContextWindow: 1_048_576, MaxOutputTokens: 65_536}},
		{"gpt-4o-mini", llm.Limits{ContextWindow: 128_000, MaxOutputTokens: 16_384}},
		{"claude-sonnet-4", llm.Limits{ContextWindow: 200_000, MaxOutputTokens: 8_192}},
		{"llama3", llm.Limits{ContextWindow: 32_768, MaxOutputTokens: 4_096}},
	}
	for _, tc := range tests {
		if got := limitsFor(tc.model); got != tc.want {
			t.Errorf("limitsFor(%q) = %+v, want %+v", tc.model, got, tc.want)
		}
	}
}

func TestNew(t *testing.T) {
	if _, err := New("gemini", ""); err == nil {
		t.Error("empty model accepted")
	}
	if _, err := New("fakecloud", "m", anyllmlib.WithAPIKey("k")); err == nil {
		t.Error("unknown backend accepted")
	}

	p, err := New("OpenAI", "gpt-4o", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Limits().MaxOutputTokens != 16_384 {
		t.Errorf("limits = %+v", p.Limits())
	}

	if _, err := New("ollama", "llama3"); err != nil {
		t.Errorf("ollama without key: %v", err)
	}
}

func TestBackends(t *testing.T) {
	t.Parallel()
	got := Backends()
	if !slices.IsSorted(got) || !slices.Contains(got, "gemini") || len(got) != len(backends) {
		t.Errorf("Backends() = %v", got)
	}
}

func TestCountTokens(t *testing.T) {
	t.Parallel()
	p := &Provider{}
	if n, _ := p.CountTokens(nil); n != 0 {
		t.Errorf("empty = %d", n)
	}
	// 11 bytes round up to 3 tokens.
	n, _ := p.CountTokens([]types.Message{{Role: types.RoleUser, Content: "Hello world"}})
	if n != 3+tokenOverhead {
		t.Errorf("count = %d, want %d", n, 3+tokenOverhead)
	}
}
