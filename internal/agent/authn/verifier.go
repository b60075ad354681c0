// Package authn resolves the admission-control user id from a bearer
// JWT. It does not manage sessions, issue tokens, or perform any
// authorization beyond "is this a validly signed, non-anonymous token".
package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for any token that fails to verify, is
// malformed, uses a disallowed signing algorithm, or belongs to an
// anonymous session.
var ErrUnauthorized = errors.New("authn: unauthorized")

// allowedAlgorithms guards against algorithm-confusion attacks (e.g. a
// forged "alg":"none" or HS256-with-public-key-as-secret token).
var allowedAlgorithms = map[string]bool{"RS256": true, "ES256": true}

// isAllowedAlgorithm reports whether alg may sign a verified token.
func isAllowedAlgorithm(alg string) bool { return allowedAlgorithms[alg] }

// Verifier resolves a bearer token string to a user id.
type Verifier interface {
	VerifyUserID(tokenString string) (string, error)
}

// JWKSVerifier verifies tokens against a remote JWKS endpoint, with keys
// cached and refreshed per the endpoint's HTTP cache headers.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	logger *slog.Logger
}

// NewJWKSVerifier creates a Verifier backed by the JWKS document at
// jwksURL.
func NewJWKSVerifier(ctx context.Context, jwksURL string, logger *slog.Logger) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("authn: jwks URL cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("authn: create JWKS client: %w", err)
	}

	logger.Info("jwt verifier initialized", "jwks_url", jwksURL)
	return &JWKSVerifier{jwks: jwks, logger: logger}, nil
}

// VerifyUserID validates tokenString and returns the subject claim. It
// rejects anonymous sessions and any signing algorithm outside
// allowedAlgorithms (spec.md §1: authn is out of scope beyond resolving
// a user id for admission).
func (v *JWKSVerifier) VerifyUserID(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.jwks.Keyfunc)
	if err != nil || !token.Valid {
		return "", ErrUnauthorized
	}

	if !isAllowedAlgorithm(token.Method.Alg()) {
		v.logger.Warn("token used disallowed signing algorithm", "algorithm", token.Method.Alg())
		return "", ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID() == "" {
		return "", ErrUnauthorized
	}
	if claims.Role != "authenticated" {
		return "", ErrUnauthorized
	}

	return claims.UserID(), nil
}
