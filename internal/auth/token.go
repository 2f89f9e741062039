package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const accessTokenType = "access"

// ErrInvalidToken indicates a malformed, forged or expired access token.
var ErrInvalidToken = errors.New("auth: invalid access token")

type accessClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs an issuer. ttl defaults to one hour.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue signs a token for userID and returns it with its id.
func (i *TokenIssuer) Issue(userID string) (Token, string, error) {
	now := i.now()
	id := uuid.NewString()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Type: accessTokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, "", err
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: claims.ExpiresAt.Time}, id, nil
}

// Verify returns the subject of a valid access token.
func (i *TokenIssuer) Verify(raw string) (string, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != accessTokenType || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
