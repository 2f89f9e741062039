package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/httpx"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// PermissionsHandler lets callers inspect their own effective permissions.
type PermissionsHandler struct {
	logger     *slog.Logger
	authorizer *Authorizer
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, authorizer *Authorizer) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, authorizer: authorizer}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/check", h.check)
	r.Get("/snapshot", h.snapshot)
}

// check evaluates ?right=a&right=b (any-of, or all-of with mode=all) for the caller.
func (h *PermissionsHandler) check(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	q := r.URL.Query()
	rights := q["right"]
	if len(rights) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "at least one right is required")
		return
	}
	for _, right := range rights {
		if err := ValidateRight(right); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
	}
	opts := Options{Scope: strings.TrimSpace(q.Get("scope"))}
	if opts.Scope != "" {
		if err := ValidateScope(opts.Scope); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
	}
	if q.Get("resource_type") != "" {
		opts.Resource = &Resource{
			Type:         q.Get("resource_type"),
			ID:           q.Get("resource_id"),
			DepartmentID: q.Get("resource_department"),
			CreatedBy:    q.Get("resource_owner"),
		}
	}

	var (
		d   Decision
		err error
	)
	switch {
	case len(rights) == 1:
		d, err = h.authorizer.Authorize(r.Context(), id.UserID, rights[0], opts)
	case q.Get("mode") == "all":
		d, err = h.authorizer.AuthorizeAll(r.Context(), id.UserID, rights, opts)
	default:
		d, err = h.authorizer.AuthorizeAny(r.Context(), id.UserID, rights, opts)
	}
	if err != nil {
		h.logger.Error("permission check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *PermissionsHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	subject, err := h.authorizer.Subject(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("permission snapshot", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"snapshot":        subject.Snapshot,
		"elevated_rights": subject.Elevated,
	})
}
