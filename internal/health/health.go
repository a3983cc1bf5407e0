// Package health serves the status server's liveness and readiness probes.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz runs
// every registered check concurrently and answers 503 when any fails. Both
// reply with JSON:
//
//	{"status":"fail","checks":{"memory":"ok","nats":"fail: not connected"},"info":{"live":"connected"}}
//
// Info values describe the process and never change readiness.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds each check.
const checkTimeout = 5 * time.Second

// Check probes one dependency and returns nil while it is usable. It must
// return when ctx is done.
type Check func(ctx context.Context) error

// Option configures a [Handler].
type Option func(*Handler)

// WithCheck adds a readiness check reported under name.
func WithCheck(name string, c Check) Option {
	return func(h *Handler) { h.checks[name] = c }
}

// WithInfo reports fn's value under name in every /readyz response.
func WithInfo(name string, fn func() string) Option {
	return func(h *Handler) { h.info[name] = fn }
}

// Handler answers the probes. It is immutable after [New].
type Handler struct {
	checks map[string]Check
	info   map[string]func() string
}

// New returns a Handler with the given checks and info values.
func New(opts ...Option) *Handler {
	h := &Handler{checks: make(map[string]Check), info: make(map[string]func() string)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Info   map[string]string `json:"info,omitempty"`
}

// Healthz always answers ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	reply(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs the checks and answers 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: h.run(r.Context())}
	code := http.StatusOK
	for _, v := range rep.Checks {
		if v != "ok" {
			rep.Status, code = "fail", http.StatusServiceUnavailable
			break
		}
	}
	if len(h.info) > 0 {
		rep.Info = make(map[string]string, len(h.info))
		for name, fn := range h.info {
			rep.Info[name] = fn()
		}
	}
	reply(w, code, rep)
}

// run evaluates every check concurrently, each under its own timeout.
func (h *Handler) run(ctx context.Context) map[string]string {
	var (
		mu  sync.Mutex
		g   errgroup.Group
		out = make(map[string]string, len(h.checks))
	)
	for name, check := range h.checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			v := "ok"
			if err := check(cctx); err != nil {
				v = "fail: " + err.Error()
			}
			mu.Lock()
			out[name] = v
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func reply(w http.ResponseWriter, code int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
