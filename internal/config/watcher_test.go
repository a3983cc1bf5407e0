package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aura/internal/config"
)

const baseYAML = `
server:
  log_level: info
bot:
  name: Aura
  voice: Kore
`

var noEnv = config.WithEnvironment(map[string]string{})

// configFile writes content to a fresh aura.yaml and returns its path.
func configFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aura.yaml")
	rewrite(t, path, content)
	return path
}

// rewrite replaces the file and moves its mod time forward, so the change is
// visible even on filesystems with coarse timestamps.
func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Duration(len(content)) * time.Millisecond)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
}

// changeLog records onChange calls.
type changeLog struct {
	mu    sync.Mutex
	diffs []config.ConfigDiff
	seen  chan struct{}
}

func newChangeLog() *changeLog { return &changeLog{seen: make(chan struct{}, 8)} }

func (c *changeLog) record(d config.ConfigDiff, _ *config.Config) {
	c.mu.Lock()
	c.diffs = append(c.diffs, d)
	c.mu.Unlock()
	c.seen <- struct{}{}
}

func (c *changeLog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.diffs)
}

func TestWatch_InitialLoad(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		environ map[string]string
		check   func(*testing.T, *config.Config)
	}{
		{
			name:    "file only",
			environ: map[string]string{},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Server.LogLevel != config.LogInfo || cfg.Bot.Name != "Aura" {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:    "environment overlay",
			environ: map[string]string{"AURA_LOG_LEVEL": "warn", "GEMINI_API_KEY": "k"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Server.LogLevel != config.LogWarn || cfg.Providers.S2S.APIKey != "k" {
					t.Errorf("overlay not applied: log=%q key=%q", cfg.Server.LogLevel, cfg.Providers.S2S.APIKey)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w, err := config.Watch(t.Context(), configFile(t, baseYAML), nil, config.WithEnvironment(tc.environ))
			if err != nil {
				t.Fatalf("Watch: %v", err)
			}
			tc.check(t, w.Current())
		})
	}
}

func TestWatch_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Watch(t.Context(), filepath.Join(t.TempDir(), "absent.yaml"), nil, noEnv); err == nil {
		t.Fatal("Watch succeeded on a missing file")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		content     string
		wantErr     bool
		wantCalls   int
		wantLevel   config.LogLevel
		wantBot     string
		wantRestart []string
	}{
		{
			name:      "log level and bot",
			content:   "server:\n  log_level: debug\nbot:\n  name: Nova\n  voice: Kore\n",
			wantCalls: 1,
			wantLevel: config.LogDebug,
			wantBot:   "Nova",
		},
		{
			name:        "startup-only section",
			content:     baseYAML + "audio:\n  speaker: discard\n",
			wantCalls:   1,
			wantLevel:   config.LogInfo,
			wantBot:     "Aura",
			wantRestart: []string{"audio"},
		},
		{
			name:      "comment only",
			content:   "# tweaked\n" + baseYAML,
			wantLevel: config.LogInfo,
			wantBot:   "Aura",
		},
		{
			name:      "identical bytes",
			content:   baseYAML,
			wantLevel: config.LogInfo,
			wantBot:   "Aura",
		},
		{
			name:      "invalid keeps previous",
			content:   "server:\n  log_level: bananas\n",
			wantErr:   true,
			wantLevel: config.LogInfo,
			wantBot:   "Aura",
		},
		{
			name:      "unknown key keeps previous",
			content:   baseYAML + "volume: 11\n",
			wantErr:   true,
			wantLevel: config.LogInfo,
			wantBot:   "Aura",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := configFile(t, baseYAML)
			changes := newChangeLog()
			w, err := config.Watch(t.Context(), path, changes.record, noEnv, config.WithInterval(time.Hour))
			if err != nil {
				t.Fatalf("Watch: %v", err)
			}

			rewrite(t, path, tc.content)
			d, err := w.Reload()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Reload error = %v, wantErr %v", err, tc.wantErr)
			}
			if got := changes.count(); got != tc.wantCalls {
				t.Errorf("onChange calls = %d, want %d", got, tc.wantCalls)
			}
			if !slices.Equal(d.RestartRequired, tc.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tc.wantRestart)
			}
			cur := w.Current()
			if cur.Server.LogLevel != tc.wantLevel || cur.Bot.Name != tc.wantBot {
				t.Errorf("Current = level %q bot %q, want %q %q", cur.Server.LogLevel, cur.Bot.Name, tc.wantLevel, tc.wantBot)
			}
		})
	}
}

func TestWatch_PollsForChanges(t *testing.T) {
	t.Parallel()
	path := configFile(t, baseYAML)
	changes := newChangeLog()
	if _, err := config.Watch(t.Context(), path, changes.record, noEnv, config.WithInterval(20*time.Millisecond)); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	rewrite(t, path, "server:\n  log_level: error\nbot:\n  name: Aura\n  voice: Kore\n")
	select {
	case <-changes.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("change not picked up")
	}

	changes.mu.Lock()
	d := changes.diffs[0]
	changes.mu.Unlock()
	if !d.LogLevelChanged || d.NewLogLevel != config.LogError || d.BotChanged {
		t.Errorf("diff = %+v", d)
	}
}
