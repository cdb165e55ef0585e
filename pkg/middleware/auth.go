package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/config"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ClaimsKey is the context key under which validated claims are stored.
const ClaimsKey contextKey = "claims"

// Claims are the bearer-token claims the engine mints and accepts.
// Subject identifies the caller; nothing project-scoped exists here.
type Claims struct {
	jwt.RegisteredClaims
}

// GetClaims retrieves validated claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// BearerAuth validates HMAC-signed bearer tokens on API requests.
// Tokens are minted locally (IssueToken or an operator tool) with the
// shared secret; there is no external identity provider.
type BearerAuth struct {
	secret  []byte
	enabled bool
	logger  *zap.Logger
}

// NewBearerAuth creates the auth middleware from config. Enabling auth
// without a secret is a configuration error.
func NewBearerAuth(cfg *config.AuthConfig, logger *zap.Logger) (*BearerAuth, error) {
	if cfg.Enabled && cfg.TokenSecret == "" {
		return nil, errors.New("auth enabled but AUTH_TOKEN_SECRET is not set")
	}
	return &BearerAuth{
		secret:  []byte(cfg.TokenSecret),
		enabled: cfg.Enabled,
		logger:  logger.Named("auth"),
	}, nil
}

// Require wraps a handler with bearer-token validation. When auth is
// disabled the handler runs untouched.
func (a *BearerAuth) Require(next http.HandlerFunc) http.HandlerFunc {
	if !a.enabled {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			a.unauthorized(w, "Authentication required")
			return
		}

		claims, err := a.validate(token)
		if err != nil {
			a.logger.Debug("token rejected", zap.Error(err))
			a.unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// IssueToken mints a token for a subject, valid for ttl.
func (a *BearerAuth) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("no token secret configured")
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *BearerAuth) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("malformed authorization header")
	}
	return parts[1], nil
}

func (a *BearerAuth) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
