package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/MrWong99/aura/internal/config"
	"github.com/MrWong99/aura/pkg/provider/image"
	imagemock "github.com/MrWong99/aura/pkg/provider/image/mock"
	"github.com/MrWong99/aura/pkg/provider/llm"
	llmmock "github.com/MrWong99/aura/pkg/provider/llm/mock"
	"github.com/MrWong99/aura/pkg/provider/s2s"
	s2smock "github.com/MrWong99/aura/pkg/provider/s2s/mock"
)

// writeConfig writes a config that keeps everything local: SQLite memory in
// dir, no speaker and no status server port clash.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "aura.yaml")
	data := "server:\n  listen_addr: 127.0.0.1:0\n" +
		"audio:\n  speaker: discard\n" +
		"memory:\n  backend: sqlite\n  path: " + filepath.Join(dir, "aura.db") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"AURA_GEMINI_API_KEY", "GEMINI_API_KEY", "AURA_LOG_LEVEL", "AURA_MEMORY_DSN", "AURA_NATS_URL"} {
		t.Setenv(k, "")
	}
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{name: "help", args: []string{"--help"}, wantCode: 0, wantOut: "Available Commands"},
		{name: "unknown command", args: []string{"dance"}, wantCode: 1, wantErr: `unknown command "dance"`},
		{name: "unknown flag", args: []string{"--nope"}, wantCode: 1, wantErr: "unknown flag"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tc.args, strings.NewReader(""), &stdout, &stderr)
			if code != tc.wantCode {
				t.Errorf("run() = %d, want %d (stderr: %s)", code, tc.wantCode, stderr.String())
			}
			if !strings.Contains(stdout.String(), tc.wantOut) {
				t.Errorf("stdout = %q, want it to contain %q", stdout.String(), tc.wantOut)
			}
			if !strings.Contains(stderr.String(), tc.wantErr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tc.wantErr)
			}
		})
	}
}

func TestRun_SettingsPersist(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, t.TempDir())

	var out bytes.Buffer
	code := run([]string{"--config", cfgPath, "settings", "--name", "Nova", "--voice", "Puck"}, strings.NewReader(""), &out, io.Discard)
	if code != 0 {
		t.Fatalf("settings save exit code = %d, output: %s", code, out.String())
	}

	out.Reset()
	code = run([]string{"--config", cfgPath, "settings"}, strings.NewReader(""), &out, io.Discard)
	if code != 0 {
		t.Fatalf("settings show exit code = %d", code)
	}
	if !strings.Contains(out.String(), "name:  Nova") || !strings.Contains(out.String(), "voice: Puck") {
		t.Errorf("settings output = %q, want saved name and voice", out.String())
	}
}

func TestRun_SettingsRejectsUnknownVoice(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, t.TempDir())

	code := run([]string{"--config", cfgPath, "settings", "--voice", "Robot"}, strings.NewReader(""), io.Discard, io.Discard)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRun_FactsEmpty(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, t.TempDir())

	var out bytes.Buffer
	if code := run([]string{"--config", cfgPath, "facts"}, strings.NewReader(""), &out, io.Discard); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), "nothing remembered yet") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, found, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if found {
		t.Error("found = true for a missing file")
	}
	if cfg.Providers.S2S.Name != config.DefaultS2SProvider {
		t.Errorf("S2S.Name = %q, want default", cfg.Providers.S2S.Name)
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterS2S("live", func(config.ProviderEntry) (s2s.Provider, error) { return &s2smock.Provider{}, nil })
	reg.RegisterLLM("main", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) { return nil, errors.New("no key") })
	reg.RegisterImage("draw", func(config.ProviderEntry) (image.Provider, error) { return &imagemock.Provider{}, nil })

	cfg := &config.Config{}
	cfg.Providers.S2S = config.ProviderEntry{Name: "live"}
	cfg.Providers.LLM = config.ProviderEntry{Name: "main", Model: "m"}
	cfg.Providers.LLMFallbacks = []config.ProviderEntry{
		{Name: "broken", Model: "m"},
		{Name: "unregistered", Model: "m"},
		{Name: "main", Model: "other"},
	}
	cfg.Providers.Image = config.ProviderEntry{Name: "missing"}

	ps := buildProviders(cfg, reg)
	if ps.S2S == nil || ps.LLM == nil {
		t.Fatalf("providers = %+v, want s2s and llm set", ps)
	}
	if ps.Image != nil {
		t.Error("Image should be nil for an unregistered name")
	}
	if len(ps.LLMFallbacks) != 1 || ps.LLMFallbacks[0].Name != "main" {
		t.Errorf("LLMFallbacks = %+v, want only the working one", ps.LLMFallbacks)
	}
}

func TestParseImageArgs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		args    []string
		want    image.Request
		output  string
		wantErr bool
	}{
		{name: "prompt only", args: []string{"a", "red", "fox"}, want: image.Request{Prompt: "a red fox", Resolution: "1K", AspectRatio: "1:1"}},
		{name: "flags", args: []string{"--res", "2k", "--aspect", "16:9", "-o", "fox.png", "fox"}, want: image.Request{Prompt: "fox", Resolution: "2K", AspectRatio: "16:9"}, output: "fox.png"},
		{name: "no prompt", args: []string{"--res", "4K"}, wantErr: true},
		{name: "bad aspect", args: []string{"--aspect", "2:1", "fox"}, wantErr: true},
		{name: "unknown flag", args: []string{"--size", "big", "fox"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, output, err := parseImageArgs(tc.args)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if got != tc.want {
				t.Errorf("Request = %+v, want %+v", got, tc.want)
			}
			if output != tc.output {
				t.Errorf("output = %q, want %q", output, tc.output)
			}
		})
	}
}

func TestWriteImage(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	path, err := writeImage("", &image.Result{Data: []byte("jpg"), MIMEType: "image/jpeg"}, now)
	if err != nil {
		t.Fatalf("writeImage: %v", err)
	}
	if path != "aura-20260301-093000.jpg" {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(filepath.Join(dir, path))
	if err != nil || string(data) != "jpg" {
		t.Errorf("file content = %q, %v", data, err)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want log.Level
	}{
		{config.LogDebug, log.DebugLevel},
		{config.LogWarn, log.WarnLevel},
		{config.LogError, log.ErrorLevel},
		{"", log.InfoLevel},
	}
	for _, tc := range tests {
		if got := logLevel(tc.in); got != tc.want {
			t.Errorf("logLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
