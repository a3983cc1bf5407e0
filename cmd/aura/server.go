package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/aura/internal/app"
	"github.com/MrWong99/aura/internal/config"
	"github.com/MrWong99/aura/internal/observe"
)

// serveStatus exposes /metrics, /healthz and /readyz on the configured
// address. A busy port only disables the endpoint. The returned function
// stops the server.
func serveStatus(rt *runtime, a *app.App) func() {
	addr := rt.cfg.Server.ListenAddr
	if addr == "" {
		return func() {}
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Warn("status server disabled", "addr", addr, "err", err)
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", rt.telemetry.MetricsHandler)
	a.Health().Register(mux)

	srv := &http.Server{
		Handler:           observe.Middleware(rt.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server error", "err", err)
		}
	}()
	slog.Info("status server listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("status server shutdown error", "err", err)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, ps *app.Providers) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║          Aura - startup summary       ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "Voice", cfg.Providers.S2S, ps.S2S != nil)
	printProvider(w, "Chat", cfg.Providers.LLM, ps.LLM != nil)
	printProvider(w, "Image", cfg.Providers.Image, ps.Image != nil)
	printRow(w, "Fallbacks", fmt.Sprint(len(ps.LLMFallbacks)))
	printRow(w, "Memory", string(cfg.Memory.Backend))
	if cfg.Notify.NATSURL != "" {
		printRow(w, "NATS", "enabled")
	}
	if cfg.Journal.Path != "" {
		printRow(w, "Transcripts", "enabled")
	}
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind string, entry config.ProviderEntry, ok bool) {
	value := entry.Name
	switch {
	case !ok:
		value = "(not configured)"
	case entry.Model != "":
		value = entry.Name + " / " + entry.Model
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}
