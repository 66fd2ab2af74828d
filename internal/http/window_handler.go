package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/field-attendance/internal/application"
)

type windowService interface {
	GetWindow(ctx context.Context, scope string) (application.WindowConfig, error)
	UpdateWindow(ctx context.Context, params application.UpdateWindowParams) (application.WindowConfig, error)
}

// WindowHandler serves the attendance window configuration.
type WindowHandler struct {
	service   windowService
	responder responder
	logger    *slog.Logger
}

// NewWindowHandler constructs a WindowHandler.
func NewWindowHandler(service windowService, logger *slog.Logger) *WindowHandler {
	base := defaultLogger(logger)
	return &WindowHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *WindowHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "WindowHandler", operation, attrs...)
}

// Get returns the window for ?scope=, defaulting to the caller's own scope.
func (h *WindowHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = principal.Scope
	}

	cfg, err := h.service.GetWindow(r.Context(), scope)
	if err != nil {
		h.log(r.Context(), "Get", "scope", scope).ErrorContext(r.Context(), "window lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, windowResponse{Window: toWindowDTO(cfg)})
}

// Update replaces the window for ?scope= (global when omitted).
func (h *WindowHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))

	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode window request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "scope", application.NormalizeScope(scope))

	cfg, err := h.service.UpdateWindow(r.Context(), application.UpdateWindowParams{
		Principal: principal,
		Scope:     scope,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "window update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "window updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, windowResponse{Window: toWindowDTO(cfg)})
}

type windowRequest struct {
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	GraceMinutes *int   `json:"grace_minutes"`
}

func (r windowRequest) toInput() application.WindowInput {
	return application.WindowInput{
		StartTime:    strings.TrimSpace(r.StartTime),
		EndTime:      strings.TrimSpace(r.EndTime),
		GraceMinutes: r.GraceMinutes,
	}
}

type windowResponse struct {
	Window windowDTO `json:"window"`
}

type windowDTO struct {
	Scope         string `json:"scope"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	GraceMinutes  int    `json:"grace_minutes"`
	LateThreshold string `json:"late_threshold"`
	IsDefault     bool   `json:"is_default"`
	UpdatedBy     string `json:"updated_by,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func toWindowDTO(cfg application.WindowConfig) windowDTO {
	dto := windowDTO{
		Scope:         cfg.Scope,
		StartTime:     cfg.Window.Start.String(),
		EndTime:       cfg.Window.End.String(),
		GraceMinutes:  cfg.GraceMinutes,
		LateThreshold: cfg.LateThreshold().String(),
		IsDefault:     cfg.IsDefault,
		UpdatedBy:     cfg.UpdatedBy,
	}
	if !cfg.UpdatedAt.IsZero() {
		dto.UpdatedAt = cfg.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return dto
}
