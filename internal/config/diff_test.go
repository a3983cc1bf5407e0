package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/aura/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo, ListenAddr: ":9464"},
		Providers: config.ProvidersConfig{
			S2S:   config.ProviderEntry{Name: "gemini-live"},
			Image: config.ProviderEntry{Name: "gemini", Options: map[string]any{"pro_model": "p"}},
		},
		Audio: config.AudioConfig{Microphone: []string{"arecord"}},
		Bot:   config.BotConfig{Name: "Aura", Voice: "Kore"},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.BotChanged || len(d.RestartRequired) != 0 {
		t.Errorf("unexpected extra changes: %+v", d)
	}
}

func TestDiff_BotChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Bot.Voice = "Puck"

	d := config.Diff(old, new)
	if !d.BotChanged || d.NewBot.Voice != "Puck" || d.NewBot.Name != "Aura" {
		t.Errorf("diff = %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":1" }, "server.listen_addr"},
		{"gemini key", func(c *config.Config) { c.Gemini.APIKey = "new" }, "providers"},
		{"provider model", func(c *config.Config) { c.Providers.S2S.Model = "x" }, "providers"},
		{"provider option", func(c *config.Config) { c.Providers.Image.Options["pro_model"] = "q" }, "providers"},
		{"fallback added", func(c *config.Config) {
			c.Providers.LLMFallbacks = append(c.Providers.LLMFallbacks, config.ProviderEntry{Name: "groq"})
		}, "providers"},
		{"microphone", func(c *config.Config) { c.Audio.Microphone = []string{"ffmpeg"} }, "audio"},
		{"memory", func(c *config.Config) { c.Memory.Backend = config.MemoryInProcess }, "memory"},
		{"notify", func(c *config.Config) { c.Notify.NATSURL = "nats://x:1" }, "notify"},
		{"journal", func(c *config.Config) { c.Journal.Path = "t.jsonl" }, "journal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			new := baseConfig()
			tc.mutate(new)
			d := config.Diff(baseConfig(), new)
			if !slices.Contains(d.RestartRequired, tc.want) {
				t.Errorf("RestartRequired = %v, want %q", d.RestartRequired, tc.want)
			}
			if d.LogLevelChanged || d.BotChanged {
				t.Errorf("hot-reloadable fields reported: %+v", d)
			}
		})
	}
}
