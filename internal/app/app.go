// Package app wires all Aura subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the memory backend, the
// event publisher and the audio devices and builds the live controller and
// the text chat; Run holds a live session open until the context ends; and
// Shutdown tears everything down in reverse order.
//
// For testing, inject doubles via functional options (WithMemoryStore,
// WithMicrophone, WithSpeaker, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/MrWong99/aura/internal/chat"
	"github.com/MrWong99/aura/internal/config"
	"github.com/MrWong99/aura/internal/health"
	"github.com/MrWong99/aura/internal/journal"
	"github.com/MrWong99/aura/internal/live"
	"github.com/MrWong99/aura/internal/notify"
	"github.com/MrWong99/aura/internal/observe"
	"github.com/MrWong99/aura/internal/resilience"
	"github.com/MrWong99/aura/pkg/audio"
	"github.com/MrWong99/aura/pkg/audio/device"
	"github.com/MrWong99/aura/pkg/memory"
	"github.com/MrWong99/aura/pkg/memory/postgres"
	"github.com/MrWong99/aura/pkg/memory/sqlite"
	"github.com/MrWong99/aura/pkg/provider/image"
	"github.com/MrWong99/aura/pkg/provider/llm"
	"github.com/MrWong99/aura/pkg/provider/s2s"
)

var (
	// ErrLiveUnavailable is returned when no speech-to-speech provider is
	// configured.
	ErrLiveUnavailable = errors.New("app: live sessions are not configured")

	// ErrChatUnavailable is returned when no LLM provider is configured.
	ErrChatUnavailable = errors.New("app: text chat is not configured")
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	S2S          s2s.Provider
	LLM          llm.Provider
	LLMFallbacks []NamedLLM
	Image        image.Provider
}

// NamedLLM is a fallback chat backend and the name it is logged under.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	store     *memory.Store
	mic       audio.Microphone
	speaker   audio.Speaker
	extra     []notify.Notifier
	notifier  notify.Notifier
	publisher *notify.Publisher
	journal   *journal.FileStore
	s2s       *resilience.GuardedS2S
	live      *live.Controller
	chat      *chat.Conversation

	// mu guards bot, which hot-reloads from the config watcher.
	mu  sync.Mutex
	bot config.BotConfig

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMemoryStore injects a memory store instead of opening the configured
// backend. The caller keeps ownership of it.
func WithMemoryStore(s *memory.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMicrophone injects a microphone instead of the capture command.
func WithMicrophone(m audio.Microphone) Option {
	return func(a *App) { a.mic = m }
}

// WithSpeaker injects a speaker instead of the configured output driver.
func WithSpeaker(s audio.Speaker) Option {
	return func(a *App) { a.speaker = s }
}

// WithNotifier adds a notification receiver, typically the terminal console.
// May be given more than once.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.extra = append(a.extra, n) }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. On failure every
// resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
		bot:       cfg.Bot,
	}
	for _, o := range opts {
		o(a)
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"memory", a.initMemory},
		{"notify", a.initNotify},
		{"devices", a.initDevices},
		{"live", a.initLive},
		{"chat", a.initChat},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.runClosers()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMemory opens the configured KV backend unless a store was injected.
func (a *App) initMemory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	var kv memory.KV
	switch a.cfg.Memory.Backend {
	case config.MemoryInProcess:
		kv = memory.NewMemKV()
	case config.MemorySQLite, "":
		path := a.cfg.Memory.Path
		if path == "" {
			path = config.DefaultSQLitePath
		}
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			return err
		}
		kv = s
	case config.MemoryPostgres:
		p, err := postgres.NewKV(ctx, a.cfg.Memory.DSN)
		if err != nil {
			return err
		}
		kv = p
	default:
		return fmt.Errorf("unknown backend %q", a.cfg.Memory.Backend)
	}

	var opts []memory.Option
	if a.cfg.Memory.Key != "" {
		opts = append(opts, memory.WithKey(a.cfg.Memory.Key))
	}
	a.store = memory.NewStore(kv, opts...)
	a.closers = append(a.closers, a.store.Close)
	slog.Info("memory backend ready", "backend", a.cfg.Memory.Backend)
	return nil
}

// initNotify builds the notification fan-out. A NATS server that cannot be
// reached is logged and skipped; events are optional.
func (a *App) initNotify(context.Context) error {
	fanout := notify.Fanout(append([]notify.Notifier{}, a.extra...))
	fanout = append(fanout, notify.Log{})

	if url := a.cfg.Notify.NATSURL; url != "" {
		var opts []notify.PublisherOption
		if a.cfg.Notify.SubjectPrefix != "" {
			opts = append(opts, notify.WithSubjectPrefix(a.cfg.Notify.SubjectPrefix))
		}
		if a.cfg.Notify.VolumeInterval > 0 {
			opts = append(opts, notify.WithVolumeInterval(a.cfg.Notify.VolumeInterval))
		}
		pub, err := notify.ConnectPublisher(url, opts...)
		if err != nil {
			slog.Warn("event publishing disabled", "url", url, "err", err)
		} else {
			a.publisher = pub
			a.closers = append(a.closers, pub.Close)
			fanout = append(fanout, pub)
		}
	}
	a.notifier = fanout
	return nil
}

// initDevices selects the microphone and speaker unless injected.
func (a *App) initDevices(context.Context) error {
	if a.mic == nil {
		var mic audio.Microphone = device.NewCommandMicrophone(a.cfg.Audio.Microphone)
		if rate := a.cfg.Audio.MicrophoneRate; rate > 0 && rate != audio.CaptureSampleRate {
			mic = &device.ResamplingMicrophone{Inner: mic, NativeRate: rate}
			slog.Info("resampling microphone input", "from", rate, "to", audio.CaptureSampleRate)
		}
		a.mic = mic
	}
	if a.speaker == nil {
		switch a.cfg.Audio.Speaker {
		case config.SpeakerDiscard:
			a.speaker = &device.Discard{}
		default:
			a.speaker = device.NewSpeaker()
		}
	}
	return nil
}

// initLive builds the live controller behind a circuit breaker.
func (a *App) initLive(context.Context) error {
	if a.providers.S2S == nil {
		slog.Warn("no s2s provider configured; live sessions are unavailable")
		return nil
	}
	if a.cfg.Journal.Path != "" {
		a.journal = journal.NewFileStore(a.cfg.Journal.Path)
	}
	var transcripts live.TranscriptSink
	if a.journal != nil {
		transcripts = a.journal
	}

	name := a.cfg.Providers.S2S.Name
	a.s2s = resilience.GuardS2S(a.providers.S2S, resilience.BreakerConfig{Name: name})
	c, err := live.New(live.Config{
		Microphone:  a.mic,
		Speaker:     a.speaker,
		Provider:    a.s2s,
		Memory:      a.store,
		Notifier:    a.notifier,
		Transcripts: transcripts,
	}, live.WithMetrics(a.metrics), live.WithProviderName(name))
	if err != nil {
		return err
	}
	a.live = c
	return nil
}

// initChat builds the text conversation on the primary LLM with its
// fallbacks.
func (a *App) initChat(context.Context) error {
	if a.providers.LLM == nil {
		return nil
	}
	name := a.cfg.Providers.LLM.Name
	fb := resilience.NewLLMFallback(name, a.providers.LLM, resilience.BreakerConfig{Name: "llm/" + name})
	for _, n := range a.providers.LLMFallbacks {
		fb.AddFallback(n.Name, n.Provider)
	}

	opts := []chat.Option{chat.WithMetrics(a.metrics), chat.WithProviderName(name)}
	if a.providers.Image != nil {
		opts = append(opts, chat.WithImages(a.providers.Image))
	}
	a.chat = chat.New(fb, opts...)
	slog.Debug("chat ready", "backends", fb.Backends())
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Memory returns the user memory store.
func (a *App) Memory() *memory.Store { return a.store }

// Live returns the live session controller, or [ErrLiveUnavailable].
func (a *App) Live() (*live.Controller, error) {
	if a.live == nil {
		return nil, ErrLiveUnavailable
	}
	return a.live, nil
}

// Chat returns the text conversation, or [ErrChatUnavailable].
func (a *App) Chat() (*chat.Conversation, error) {
	if a.chat == nil {
		return nil, ErrChatUnavailable
	}
	return a.chat, nil
}

// Transcripts returns the transcript journal, or nil when disabled.
func (a *App) Transcripts() *journal.FileStore { return a.journal }

// Settings returns the companion identity for the next session: the saved
// settings when the user chose any, otherwise the configured bot identity
// on top of the built-in defaults.
func (a *App) Settings(ctx context.Context) (memory.BotSettings, error) {
	rec, err := a.store.Load(ctx)
	if err != nil {
		return memory.BotSettings{}, err
	}
	if rec.Settings != nil {
		return *rec.Settings, nil
	}

	a.mu.Lock()
	bot := a.bot
	a.mu.Unlock()

	s := memory.DefaultSettings()
	if bot.Name != "" {
		s.BotName = bot.Name
	}
	if bot.Voice != "" {
		s.VoiceName = memory.VoiceName(bot.Voice)
	}
	return s, nil
}

// ApplyConfig takes over the hot-reloadable parts of a config change. The
// bot identity applies from the next Connect.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if !d.BotChanged {
		return
	}
	a.mu.Lock()
	a.bot = d.NewBot
	a.mu.Unlock()
	slog.Info("bot identity updated", "name", d.NewBot.Name, "voice", d.NewBot.Voice)
}

// Health returns the readiness handler: the memory backend, the NATS
// connection and the live transport breaker, plus the live session state as
// information.
func (a *App) Health() *health.Handler {
	opts := []health.Option{health.WithCheck("memory", health.Memory(a.store))}
	if a.publisher != nil {
		opts = append(opts, health.WithCheck("nats", health.Connected(a.publisher)))
	}
	if a.s2s != nil {
		opts = append(opts, health.WithCheck("s2s", health.Breaker(a.s2s.State)))
	}
	if a.live != nil {
		opts = append(opts,
			health.WithInfo("live", func() string { return a.live.State().String() }),
			health.WithInfo("muted", func() string { return strconv.FormatBool(a.live.Muted()) }),
		)
	}
	return health.New(opts...)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Connect starts a live session with the current settings.
func (a *App) Connect(ctx context.Context) error {
	if a.live == nil {
		return ErrLiveUnavailable
	}
	settings, err := a.Settings(ctx)
	if err != nil {
		return fmt.Errorf("app: load settings: %w", err)
	}
	return a.live.Connect(ctx, settings)
}

// Run opens a live session and holds it until ctx is cancelled, then
// disconnects. It returns the connect error, or ctx's error on a normal
// stop.
func (a *App) Run(ctx context.Context) error {
	if err := a.Connect(ctx); err != nil {
		return err
	}
	slog.Info("app running", "state", a.live.State())
	<-ctx.Done()
	a.live.Disconnect()
	a.live.Wait()
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends any live session and closes all subsystems in reverse-init
// order. It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.live != nil {
			a.live.Disconnect()
			a.live.Wait()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases everything opened by a failed New.
func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
