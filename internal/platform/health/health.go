// Package health serves the status banner, liveness and readiness routes.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"tokenmeta/pkg/platform/httputil"
)

const Banner = "Metadata Server"

// Check pings one dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Handler struct {
	checks  []Check
	timeout time.Duration
	logger  *slog.Logger
}

func New(logger *slog.Logger, checks ...Check) *Handler {
	return &Handler{checks: checks, timeout: 2 * time.Second, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.handleBanner)
	r.Get("/health", h.handleLive)
	r.Get("/health/ready", h.handleReady)
}

func (h *Handler) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(Banner))
}

func (h *Handler) handleLive(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, true)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	errs := make([]error, len(h.checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range h.checks {
		g.Go(func() error {
			if err := c.Ping(gctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", c.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	status := http.StatusOK
	for i, c := range h.checks {
		if errs[i] != nil {
			status = http.StatusServiceUnavailable
			results[c.Name] = "unavailable"
			h.logger.WarnContext(r.Context(), "readiness check failed", "check", c.Name, "error", errs[i])
			continue
		}
		results[c.Name] = "ok"
	}
	httputil.WriteJSON(w, status, results)
}
