package departments

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/httpx"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
)

// Guard protects routes with a right scoped to the department named by a URL parameter.
type Guard interface {
	RequireInDepartment(right, param string) func(http.Handler) http.Handler
}

// Handler serves department switching and membership administration.
type Handler struct {
	logger      *slog.Logger
	switcher    *Switcher
	memberships *MembershipService
	guard       Guard
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, switcher *Switcher, memberships *MembershipService, guard Guard) *Handler {
	return &Handler{logger: logger, switcher: switcher, memberships: memberships, guard: guard}
}

// MountRoutes registers department routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accessible", h.accessible)
	r.Post("/{departmentID}/switch", h.switchDepartment)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireInDepartment(shared.RightMembershipsWrite, "departmentID"))
		r.Put("/{departmentID}/members/{userID}", h.grant)
		r.Delete("/{departmentID}/members/{userID}", h.revoke)
	})
}

func (h *Handler) switchDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	result, err := h.switcher.Switch(r.Context(), id.UserID, chi.URLParam(r, "departmentID"))
	if err != nil {
		h.fail(w, "switch department", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) accessible(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	list, err := h.switcher.Accessible(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "list accessible departments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"departments": list})
}

type grantRequest struct {
	UserType  string   `json:"user_type"`
	Roles     []string `json:"roles"`
	IsPrimary bool     `json:"is_primary"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	in := GrantInput{
		UserID:       chi.URLParam(r, "userID"),
		DepartmentID: chi.URLParam(r, "departmentID"),
		UserType:     users.UserType(req.UserType),
		Roles:        req.Roles,
		IsPrimary:    req.IsPrimary,
	}
	if err := h.memberships.Grant(r.Context(), in); err != nil {
		h.fail(w, "grant membership", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.memberships.Revoke(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "departmentID")); err != nil {
		h.fail(w, "revoke membership", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidGrant), errors.Is(err, ErrUnknownRole):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	case errors.Is(err, ErrHierarchyCycle):
		h.logger.Error(op+": malformed department tree", slog.Any("error", err))
	case shared.CodeOf(err) == "" && !errors.Is(err, shared.ErrNotFound):
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
