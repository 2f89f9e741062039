package auth

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/httpx"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).Post("/login", h.handleLogin)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		fields := make([]string, 0)
		for _, fieldErr := range err.(validator.ValidationErrors) {
			fields = append(fields, strings.ToLower(fieldErr.Field()))
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fields: "+strings.Join(fields, ", "))
		return
	}
	token, err := h.service.Login(r.Context(), form.Email, form.Password, clientIP(r), r.UserAgent())
	if err != nil {
		if shared.CodeOf(err) == "" {
			h.logger.Error("login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, token)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Authenticate resolves the bearer token into a request identity and rejects
// requests without a valid one.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		userID, err := h.service.Verify(strings.TrimSpace(raw))
		if err != nil {
			h.logger.Debug("bearer token rejected", slog.Any("error", err))
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		ctx := shared.ContextWithIdentity(r.Context(), shared.Identity{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
