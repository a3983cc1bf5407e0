package main

import (
	"context"
	"errors"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/aura/internal/app"
	"github.com/MrWong99/aura/internal/config"
	"github.com/MrWong99/aura/pkg/provider/image"
	imagegemini "github.com/MrWong99/aura/pkg/provider/image/gemini"
	"github.com/MrWong99/aura/pkg/provider/llm"
	"github.com/MrWong99/aura/pkg/provider/llm/anyllm"
	"github.com/MrWong99/aura/pkg/provider/s2s"
	geminilive "github.com/MrWong99/aura/pkg/provider/s2s/gemini"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	for _, backend := range anyllm.Backends() {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is addressed by base URL only.
			if entry.APIKey != "" && backend != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ── S2S ───────────────────────────────────────────────────────────────────

	reg.RegisterS2S("gemini-live", func(entry config.ProviderEntry) (s2s.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	// ── Image ─────────────────────────────────────────────────────────────────

	reg.RegisterImage("gemini", func(entry config.ProviderEntry) (image.Provider, error) {
		opts := []imagegemini.Option{
			imagegemini.WithModels(entry.Model, entry.Option(config.ImageProModelOption)),
		}
		if entry.BaseURL != "" {
			opts = append(opts, imagegemini.WithBaseURL(entry.BaseURL))
		}
		return imagegemini.New(context.Background(), entry.APIKey, opts...)
	})

	for _, kind := range []string{"s2s", "llm", "image"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// A provider that cannot be built is left nil, so commands that do not need it
// keep working; those that do report it as unavailable.
func buildProviders(cfg *config.Config, reg *config.Registry) *app.Providers {
	ps := &app.Providers{
		S2S:   create("s2s", cfg.Providers.S2S, reg.CreateS2S),
		LLM:   create("llm", cfg.Providers.LLM, reg.CreateLLM),
		Image: create("image", cfg.Providers.Image, reg.CreateImage),
	}
	for _, entry := range cfg.Providers.LLMFallbacks {
		if p := create("llm", entry, reg.CreateLLM); p != nil {
			ps.LLMFallbacks = append(ps.LLMFallbacks, app.NamedLLM{Name: entry.Name, Provider: p})
		}
	}
	return ps
}

// create runs one registry factory. It returns the zero value when entry is
// unnamed or the factory fails.
func create[P any](kind string, entry config.ProviderEntry, factory func(config.ProviderEntry) (P, error)) P {
	var zero P
	if entry.Name == "" {
		return zero
	}
	p, err := factory(entry)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not available, skipping", "kind", kind, "name", entry.Name)
		return zero
	case err != nil:
		slog.Warn("provider could not be created, skipping", "kind", kind, "name", entry.Name, "err", err)
		return zero
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
	return p
}
