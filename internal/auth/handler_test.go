package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-lms/odyssey-lms/internal/auth"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
	_ "github.com/odyssey-lms/odyssey-lms/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions []string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error {
	s.sessions = append(s.sessions, userID)
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) *auth.Handler {
	t.Helper()
	return auth.NewHandler(nil, auth.NewService(repo, auth.NewTokenIssuer([]byte("access-secret"), time.Hour), nil))
}

func hashedUser(t *testing.T, active bool) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{ID: "u1", Email: "user@test.local", PasswordHash: string(hashed), IsActive: active}
}

func authRoutes(h *auth.Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func login(t *testing.T, h *auth.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	authRoutes(h).ServeHTTP(res, req)
	return res
}

func TestLoginIssuesToken(t *testing.T) {
	repo := &stubRepo{user: hashedUser(t, true)}
	handler := newAuthHandler(t, repo)

	res := login(t, handler, `{"email":"user@test.local","password":"correctpass"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", res.Code, res.Body.String())
	}
	var token auth.Token
	if err := json.Unmarshal(res.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if token.AccessToken == "" || token.TokenType != "Bearer" {
		t.Fatalf("unexpected token %+v", token)
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("expected session to be recorded")
	}

	var seen string
	protected := handler.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := shared.IdentityFromContext(r.Context())
		seen = id.UserID
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	protected.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "u1" {
		t.Fatalf("expected identity u1, got %q", seen)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	cases := []struct {
		name     string
		repo     *stubRepo
		password string
	}{
		{name: "wrong password", repo: &stubRepo{user: hashedUser(t, true)}, password: "wrongpass"},
		{name: "inactive", repo: &stubRepo{user: hashedUser(t, false)}, password: "correctpass"},
		{name: "unknown", repo: &stubRepo{}, password: "correctpass"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := login(t, newAuthHandler(t, tc.repo), `{"email":"user@test.local","password":"`+tc.password+`"}`)
			if res.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", res.Code)
			}
			if !strings.Contains(res.Body.String(), shared.CodeUnauthenticated) {
				t.Fatalf("expected %s code in body: %s", shared.CodeUnauthenticated, res.Body.String())
			}
		})
	}
}

func TestLoginValidation(t *testing.T) {
	res := login(t, newAuthHandler(t, &stubRepo{}), `{"email":"not-an-email","password":"x"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	handler := newAuthHandler(t, &stubRepo{})
	protected := handler.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	other := auth.NewTokenIssuer([]byte("another-secret"), time.Hour)
	forged, _, err := other.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer garbage", "Bearer " + forged.AccessToken} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		protected.ServeHTTP(res, req)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, res.Code)
		}
	}
}
