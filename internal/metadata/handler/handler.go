package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tokenmeta/internal/metadata/models"
	"tokenmeta/internal/metadata/resolve"
	"tokenmeta/internal/platform/metrics"
	"tokenmeta/internal/platform/middleware"
	dErrors "tokenmeta/pkg/domain-errors"
	"tokenmeta/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/metadata-mocks.go -package=mocks Service

// Service defines the metadata operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, payload models.Value) error
	Read(ctx context.Context, subject string) (resolve.View, error)
	ListPropertyNames(ctx context.Context, subject string) ([]string, error)
	ReadProperty(ctx context.Context, subject, name string) (resolve.View, error)
	Update(ctx context.Context, subject string, payload models.Value) error
	Query(ctx context.Context, payload models.Value) ([]resolve.View, error)
}

// Handler serves the /metadata routes.
type Handler struct {
	service        Service
	logger         *slog.Logger
	metrics        *metrics.Metrics
	requestTimeout time.Duration
}

// New creates a metadata Handler. A zero requestTimeout means 30 seconds.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics, requestTimeout time.Duration) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Handler{
		service:        service,
		logger:         logger,
		metrics:        metrics,
		requestTimeout: requestTimeout,
	}
}

// Register mounts the metadata routes on r.
func (h *Handler) Register(r chi.Router) {
	metadataRouter := chi.NewRouter()
	metadataRouter.Use(middleware.Recovery(h.logger))
	metadataRouter.Use(middleware.RequestID)
	metadataRouter.Use(middleware.ClientIP)
	metadataRouter.Use(middleware.Logger(h.logger))
	metadataRouter.Use(middleware.Timeout(h.requestTimeout))
	metadataRouter.Use(middleware.LatencyMiddleware(h.metrics))

	metadataRouter.Post("/", h.handleCreate)
	metadataRouter.Post("/query", h.handleQuery)
	metadataRouter.Get("/{subject}", h.handleRead)
	metadataRouter.Put("/{subject}", h.handleUpdate)
	metadataRouter.Get("/{subject}/properties", h.handleListProperties)
	metadataRouter.Get("/{subject}/property/{name}", h.handleReadProperty)
	// plural alias, matching the list route
	metadataRouter.Get("/{subject}/properties/{name}", h.handleReadProperty)

	r.Mount("/metadata", metadataRouter)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.Create(ctx, payload); err != nil {
		h.writeError(w, r, "create metadata", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Read(r.Context(), chi.URLParam(r, "subject"))
	if err != nil {
		h.writeError(w, r, "read metadata", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListProperties(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.ListPropertyNames(r.Context(), chi.URLParam(r, "subject"))
	if err != nil {
		h.writeError(w, r, "list property names", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, names)
}

func (h *Handler) handleReadProperty(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ReadProperty(r.Context(), chi.URLParam(r, "subject"), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, "read property", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), chi.URLParam(r, "subject"), payload); err != nil {
		h.writeError(w, r, "update metadata", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	views, err := h.service.Query(r.Context(), payload)
	if err != nil {
		h.writeError(w, r, "query metadata", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (models.Value, bool) {
	var payload models.Value
	if err := httputil.DecodeJSON(w, r, &payload); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, err)
		return models.Value{}, false
	}
	return payload, true
}

// writeError logs server-side failures at error level and client mistakes at
// warn, then renders err.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if dErrors.ToHTTPStatus(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", middleware.GetRequestID(ctx),
			"internal_code", code,
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", middleware.GetRequestID(ctx),
			"internal_code", code,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
