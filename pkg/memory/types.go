package memory

import (
	"fmt"
	"slices"
	"time"
)

// VoiceName identifies one of the prebuilt companion voices.
type VoiceName string

// The fixed set of companion voices.
const (
	VoicePuck   VoiceName = "Puck"
	VoiceCharon VoiceName = "Charon"
	VoiceKore   VoiceName = "Kore"
	VoiceFenrir VoiceName = "Fenrir"
	VoiceZephyr VoiceName = "Zephyr"
)

// Voices lists every valid [VoiceName] in display order.
var Voices = []VoiceName{VoicePuck, VoiceCharon, VoiceKore, VoiceFenrir, VoiceZephyr}

// IsValid reports whether v is one of [Voices].
func (v VoiceName) IsValid() bool { return slices.Contains(Voices, v) }

// Defaults applied when no settings have been saved yet.
const (
	DefaultBotName = "Aura"
	DefaultVoice   = VoiceKore
)

// BotSettings is the user-chosen identity of the companion. It is read once
// at connect time and stays fixed for the session.
type BotSettings struct {
	BotName   string    `json:"botName"`
	VoiceName VoiceName `json:"voiceName"`
}

// DefaultSettings returns the settings used before the user saves any.
func DefaultSettings() BotSettings {
	return BotSettings{BotName: DefaultBotName, VoiceName: DefaultVoice}
}

// Validate checks that the name is non-empty and the voice is known.
func (b BotSettings) Validate() error {
	if b.BotName == "" {
		return fmt.Errorf("memory: bot name must not be empty")
	}
	if !b.VoiceName.IsValid() {
		return fmt.Errorf("memory: unknown voice %q (valid: %v)", b.VoiceName, Voices)
	}
	return nil
}

// Record is the persisted user memory. Its JSON shape is stable across
// releases: facts, lastInteraction (unix milliseconds), interactionCount and
// optional settings.
type Record struct {
	Facts            []string     `json:"facts"`
	LastInteraction  int64        `json:"lastInteraction"`
	InteractionCount int          `json:"interactionCount"`
	Settings         *BotSettings `json:"settings,omitempty"`
}

// LastInteractionTime returns LastInteraction as a time, or the zero time if
// the user has never connected.
func (r Record) LastInteractionTime() time.Time {
	if r.LastInteraction <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.LastInteraction)
}
