package escalation

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/httpx"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// Handler exposes the escalation lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	manager   *Manager
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager) *Handler {
	return &Handler{logger: logger, manager: manager, validator: validator.New()}
}

// MountRoutes registers escalation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.Limit(5, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint))).
		Post("/escalate", h.escalate)
	r.Post("/deescalate", h.deescalate)
	r.Post("/refresh", h.refresh)
	r.Get("/session", h.session)
}

type escalateRequest struct {
	Credential string `json:"credential" validate:"required,max=1024"`
}

func (h *Handler) escalate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req escalateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || h.validator.Struct(req) != nil {
		httpx.RespondError(w, shared.ErrInvalidEscalationCredential)
		return
	}
	issued, err := h.manager.Escalate(r.Context(), id.UserID, req.Credential)
	if err != nil {
		h.fail(w, "escalate", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, issued)
}

func (h *Handler) deescalate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.manager.Deescalate(r.Context(), id.UserID); err != nil {
		h.fail(w, "deescalate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	issued, err := h.manager.Refresh(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "refresh admin session", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, issued)
}

type sessionView struct {
	Active    bool      `json:"active"`
	Roles     []string  `json:"roles"`
	Rights    []string  `json:"rights"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	sess, err := h.manager.Session(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "load admin session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionView{Active: true, Roles: sess.Roles, Rights: sess.Rights, ExpiresAt: sess.ExpiresAt})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNoActiveAdminSession) && !errors.Is(err, shared.ErrInvalidEscalationCredential) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
