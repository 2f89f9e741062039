package escalation

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/httpx"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// HeaderAdminToken carries the admin token on elevated requests.
const HeaderAdminToken = "X-Admin-Token"

// Middleware attaches admin sessions to requests.
type Middleware struct {
	Manager *Manager
	Logger  *slog.Logger
}

// Attach validates the admin token header, when present, and adds the
// session's rights to the request context. Any failure leaves the request
// unelevated.
func (m Middleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderAdminToken))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := m.Manager.ValidateToken(r.Context(), raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("admin token ignored", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		// The token must belong to the authenticated caller.
		if id, ok := shared.IdentityFromContext(r.Context()); ok && id.UserID != sess.UserID {
			next.ServeHTTP(w, r)
			return
		}
		ctx := shared.ContextWithElevation(r.Context(), shared.Elevation{
			Roles:     sess.Roles,
			Rights:    sess.Rights,
			ExpiresAt: sess.ExpiresAt,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects requests without an attached admin session.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.ElevationFromContext(r.Context()); !ok {
			httpx.RespondError(w, shared.ErrNoActiveAdminSession)
			return
		}
		next.ServeHTTP(w, r)
	})
}
