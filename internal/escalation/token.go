package escalation

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenType = "admin"

type adminClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
	Type  string   `json:"typ"`
}

// tokenSigner issues and verifies HS256 admin tokens.
type tokenSigner struct {
	secret []byte
	now    func() time.Time
}

func (s tokenSigner) issue(sess Session) (string, error) {
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			ID:        sess.TokenID,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		Roles: sess.Roles,
		Type:  tokenType,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s tokenSigner) parse(raw string) (*adminClaims, error) {
	claims := &adminClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or token id", ErrInvalidToken)
	}
	return claims, nil
}
