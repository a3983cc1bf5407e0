// Command aura is a voice companion for the terminal. It holds live spoken
// conversations through a speech-to-speech model, offers a text chat with
// image generation and remembers what the user asked it to.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/MrWong99/aura/internal/app"
	"github.com/MrWong99/aura/internal/config"
	"github.com/MrWong99/aura/internal/observe"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := &runtime{stdin: stdin, stdout: stdout, stderr: stderr}
	defer rt.close()

	root := newRootCmd(rt)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return 1
	}
	return 0
}

func newRootCmd(rt *runtime) *cobra.Command {
	var muted bool
	root := &cobra.Command{
		Use:           "aura",
		Short:         "A voice companion that listens, talks back and remembers",
		Version:       Version,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLive(cmd.Context(), rt, muted)
		},
	}
	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", "aura.yaml", "path to the YAML configuration file")
	root.Flags().BoolVar(&muted, "muted", false, "start with the microphone muted")

	root.AddCommand(
		newLiveCmd(rt),
		newChatCmd(rt),
		newImageCmd(rt),
		newSettingsCmd(rt),
		newFactsCmd(rt),
	)
	return root
}

// ── Runtime ───────────────────────────────────────────────────────────────────

// runtime carries everything the subcommands share.
type runtime struct {
	configPath string
	configFile bool // a config file exists and can be watched
	cfg        *config.Config
	providers  *app.Providers
	logger     *log.Logger
	metrics    *observe.Metrics
	telemetry  *observe.Telemetry

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// setup loads the configuration and brings up logging, telemetry and the
// providers. It runs before every subcommand.
func (rt *runtime) setup(ctx context.Context) error {
	cfg, found, err := loadConfig(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg, rt.configFile = cfg, found

	rt.logger = log.NewWithOptions(rt.stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           logLevel(cfg.Server.LogLevel),
	})
	slog.SetDefault(slog.New(rt.logger))

	slog.Debug("aura starting",
		"version", Version,
		"config", rt.configPath,
		"config_found", found,
		"log_level", cfg.Server.LogLevel,
	)

	rt.telemetry, err = observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "aura", ServiceVersion: Version})
	if err != nil {
		return err
	}
	rt.metrics = observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	rt.providers = buildProviders(cfg, reg)
	return nil
}

// close flushes telemetry.
func (rt *runtime) close() {
	if rt.telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
}

// loadConfig reads path, falling back to defaults plus the environment when
// the file does not exist. found reports whether the file was read.
func loadConfig(path string) (cfg *config.Config, found bool, err error) {
	cfg, err = config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default()
		return cfg, false, err
	}
	return cfg, err == nil, err
}

// ── App lifecycle ─────────────────────────────────────────────────────────────

// newApp builds the application for one subcommand.
func newApp(ctx context.Context, rt *runtime, opts ...app.Option) (*app.App, error) {
	opts = append([]app.Option{app.WithMetrics(rt.metrics)}, opts...)
	return app.New(ctx, rt.cfg, rt.providers, opts...)
}

// shutdown closes a with a fresh deadline, since ctx is usually cancelled
// by the time it runs.
func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

// watchConfig hot-reloads the log level and the bot identity until ctx is
// done.
func watchConfig(ctx context.Context, rt *runtime, a *app.App) {
	if !rt.configFile {
		return
	}
	_, err := config.Watch(ctx, rt.configPath, func(d config.ConfigDiff, _ *config.Config) {
		if d.LogLevelChanged {
			rt.logger.SetLevel(logLevel(d.NewLogLevel))
		}
		a.ApplyConfig(d)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func logLevel(level config.LogLevel) log.Level {
	switch level {
	case config.LogDebug:
		return log.DebugLevel
	case config.LogWarn:
		return log.WarnLevel
	case config.LogError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
