// Package auth issues and verifies the HS256 bearer tokens that tie API
// requests to users, and hashes passwords for email accounts.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clearity-app/clearity/internal/apperrors"
)

// TokenIssuer signs and verifies user tokens.
type TokenIssuer struct {
	secret     []byte
	expiration time.Duration
}

// NewTokenIssuer creates an issuer. expiration bounds token lifetime.
func NewTokenIssuer(secret string, expiration time.Duration) *TokenIssuer {
	if expiration == 0 {
		expiration = 720 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), expiration: expiration}
}

// Issue signs a token whose subject is the user id.
func (t *TokenIssuer) Issue(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.expiration)),
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns the user id it names.
func (t *TokenIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(tk *jwt.Token) (any, error) {
			if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", tk.Header["alg"])
			}
			return t.secret, nil
		})
	if err != nil || !token.Valid {
		return "", apperrors.ErrUnauthorized
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", apperrors.ErrUnauthorized
	}
	return claims.Subject, nil
}
