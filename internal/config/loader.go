package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames holds the built-in provider names by kind. [Validate]
// warns, but does not fail, on names outside it.
var ValidProviderNames = map[string][]string{
	"s2s":   {"gemini-live"},
	"llm":   {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"image": {"gemini"},
}

// validVoices mirrors the prebuilt voice list of the live provider.
var validVoices = []string{"Puck", "Charon", "Kore", "Fenrir", "Zephyr"}

// Load reads the YAML configuration file at path, overlays the process
// environment and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. The environment is not consulted.
// Tests use it with inline YAML.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a validated config built from defaults and the process
// environment only. It is used when no config file exists.
func Default() (*Config, error) {
	return parse(bytes.NewReader(nil), nil)
}

// parse runs the full pipeline: decode, environment overlay, defaults and
// validation. A nil environ reads the process environment.
func parse(r io.Reader, environ map[string]string) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, environ); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// envOverlay lists the environment variables that override file values.
type envOverlay struct {
	GeminiKey      string   `env:"AURA_GEMINI_API_KEY"`
	GeminiFallback string   `env:"GEMINI_API_KEY"`
	LogLevel       LogLevel `env:"AURA_LOG_LEVEL"`
	MemoryDSN      string   `env:"AURA_MEMORY_DSN"`
	NATSURL        string   `env:"AURA_NATS_URL"`
}

// ApplyEnv overlays environment variables onto cfg. Variables that are set
// replace file values; unset ones leave them alone. GEMINI_API_KEY is
// consulted when neither the file nor AURA_GEMINI_API_KEY provide a key.
// A nil environ reads the process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	o, err := env.ParseAsWithOptions[envOverlay](env.Options{Environment: environ})
	if err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	switch {
	case o.GeminiKey != "":
		cfg.Gemini.APIKey = o.GeminiKey
	case cfg.Gemini.APIKey == "":
		cfg.Gemini.APIKey = o.GeminiFallback
	}
	if o.LogLevel != "" {
		cfg.Server.LogLevel = o.LogLevel
	}
	if o.MemoryDSN != "" {
		cfg.Memory.DSN = o.MemoryDSN
	}
	if o.NATSURL != "" {
		cfg.Notify.NATSURL = o.NATSURL
	}
	return nil
}

// ApplyDefaults fills every unset field with its default and propagates the
// shared Gemini key to provider entries without their own.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}

	p := &cfg.Providers
	if p.S2S.Name == "" {
		p.S2S.Name = DefaultS2SProvider
	}
	if p.S2S.Name == DefaultS2SProvider && p.S2S.Model == "" {
		p.S2S.Model = DefaultS2SModel
	}
	if p.LLM.Name == "" {
		p.LLM.Name = DefaultLLMProvider
		if p.LLM.Model == "" {
			p.LLM.Model = DefaultLLMModel
		}
	}
	if p.Image.Name == "" {
		p.Image.Name = DefaultImageName
	}
	if p.Image.Name == DefaultImageName {
		if p.Image.Model == "" {
			p.Image.Model = DefaultImageModel
		}
		if p.Image.Option(ImageProModelOption) == "" {
			if p.Image.Options == nil {
				p.Image.Options = make(map[string]any)
			}
			p.Image.Options[ImageProModelOption] = DefaultImagePro
		}
	}

	inheritKey(&p.S2S, cfg.Gemini.APIKey, DefaultS2SProvider)
	inheritKey(&p.LLM, cfg.Gemini.APIKey, "gemini")
	inheritKey(&p.Image, cfg.Gemini.APIKey, DefaultImageName)
	for i := range p.LLMFallbacks {
		inheritKey(&p.LLMFallbacks[i], cfg.Gemini.APIKey, "gemini")
	}

	if cfg.Audio.Speaker == "" {
		cfg.Audio.Speaker = SpeakerOto
	}

	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = MemorySQLite
		if cfg.Memory.DSN != "" {
			cfg.Memory.Backend = MemoryPostgres
		}
	}
	if cfg.Memory.Backend == MemorySQLite && cfg.Memory.Path == "" {
		cfg.Memory.Path = DefaultSQLitePath
	}
}

func inheritKey(e *ProviderEntry, key, geminiName string) {
	if e.APIKey == "" && e.Name == geminiName {
		e.APIKey = key
	}
}

// Validate reports every problem in cfg at once, joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	if cfg.Providers.S2S.Name == "" {
		errs = append(errs, errors.New("providers.s2s.name is required"))
	}
	validateProviderName("s2s", cfg.Providers.S2S.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("image", cfg.Providers.Image.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		if fb.Model == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].model is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("providers.llm.model is required for provider %q", cfg.Providers.LLM.Name))
	}

	if cfg.Gemini.APIKey == "" && cfg.Providers.S2S.APIKey == "" {
		slog.Warn("no Gemini API key configured; set gemini.api_key or GEMINI_API_KEY before connecting")
	}

	// Audio
	switch cfg.Audio.Speaker {
	case "", SpeakerOto, SpeakerDiscard:
	default:
		errs = append(errs, fmt.Errorf("audio.speaker %q is invalid; valid values: oto, discard", cfg.Audio.Speaker))
	}
	if cfg.Audio.MicrophoneRate < 0 {
		errs = append(errs, fmt.Errorf("audio.microphone_rate %d must not be negative", cfg.Audio.MicrophoneRate))
	}

	// Memory
	if cfg.Memory.Backend != "" && !cfg.Memory.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("memory.backend %q is invalid; valid values: memory, sqlite, postgres", cfg.Memory.Backend))
	}
	if cfg.Memory.Backend == MemorySQLite && cfg.Memory.Path == "" {
		errs = append(errs, errors.New("memory.path is required when backend is sqlite"))
	}
	if cfg.Memory.Backend == MemoryPostgres && cfg.Memory.DSN == "" {
		errs = append(errs, errors.New("memory.dsn is required when backend is postgres"))
	}
	if cfg.Memory.Backend == MemoryInProcess {
		slog.Warn("memory.backend is \"memory\"; remembered facts are lost on exit")
	}

	// Notify
	if cfg.Notify.NATSURL != "" {
		if u, err := url.Parse(cfg.Notify.NATSURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("notify.nats_url %q is not a valid URL", cfg.Notify.NATSURL))
		}
	}
	if cfg.Notify.VolumeInterval < 0 {
		errs = append(errs, fmt.Errorf("notify.volume_interval %s must not be negative", cfg.Notify.VolumeInterval))
	}

	// Bot
	if cfg.Bot.Voice != "" && !slices.Contains(validVoices, cfg.Bot.Voice) {
		errs = append(errs, fmt.Errorf("bot.voice %q is invalid; valid values: %v", cfg.Bot.Voice, validVoices))
	}

	return errors.Join(errs...)
}

// validateProviderName warns about a name no built-in factory provides.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
