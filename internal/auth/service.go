package auth

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenIssuer
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, email, password, ip, ua string) (Token, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Token{}, err
	}
	token, id, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Token{}, err
	}
	if err := s.repo.CreateSession(ctx, id, user.ID, token.ExpiresAt, ip, ua); err != nil {
		s.logger.Warn("register session", slog.Any("error", err))
	}
	return token, nil
}

// Verify resolves a bearer token to its user id.
func (s *Service) Verify(raw string) (string, error) {
	return s.tokens.Verify(raw)
}
