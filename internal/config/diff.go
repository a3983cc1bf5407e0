package config

import (
	"fmt"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without restarting are tracked; the bot
// identity takes effect at the next connect.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	BotChanged bool
	NewBot     BotConfig

	// RestartRequired lists sections that changed but are only read at
	// startup.
	RestartRequired []string
}

// Changed reports whether anything at all differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.BotChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Bot != new.Bot {
		d.BotChanged = true
		d.NewBot = new.Bot
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Gemini != new.Gemini || !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !sameAudio(old.Audio, new.Audio) {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Memory != new.Memory {
		d.RestartRequired = append(d.RestartRequired, "memory")
	}
	if old.Notify != new.Notify {
		d.RestartRequired = append(d.RestartRequired, "notify")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}
	return d
}

func sameAudio(a, b AudioConfig) bool {
	return a.MicrophoneRate == b.MicrophoneRate && a.Speaker == b.Speaker && slices.Equal(a.Microphone, b.Microphone)
}

func sameProviders(a, b ProvidersConfig) bool {
	if !sameEntry(a.S2S, b.S2S) || !sameEntry(a.LLM, b.LLM) || !sameEntry(a.Image, b.Image) {
		return false
	}
	if len(a.LLMFallbacks) != len(b.LLMFallbacks) {
		return false
	}
	for i := range a.LLMFallbacks {
		if !sameEntry(a.LLMFallbacks[i], b.LLMFallbacks[i]) {
			return false
		}
	}
	return true
}

// sameEntry compares the scalar fields and the printed option values.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		if w, ok := b.Options[k]; !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}
