// Package middleware provides HTTP middleware for the registry layer.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/domainledger/registry_layer/pkg/logger"
)

type contextKey string

const claimsKey contextKey = "auth-claims"

// Claims carries the authenticated ledger identity.
type Claims struct {
	Address string `json:"address"`
	Role    string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AdminAuth validates bearer tokens for administrative endpoints. Tokens are
// HMAC-signed and must carry the admin role.
type AdminAuth struct {
	secret []byte
	log    *logger.Logger
}

// NewAdminAuth creates the middleware. An empty secret disables every
// guarded endpoint instead of silently allowing them.
func NewAdminAuth(secret string, log *logger.Logger) *AdminAuth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AdminAuth{secret: []byte(secret), log: log}
}

// Handler wraps next with admin token validation.
func (m *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 {
			m.respondError(w, http.StatusForbidden, "administrative API disabled")
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			m.respondError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, http.StatusUnauthorized, "invalid Authorization header format")
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.log.WithError(err).Warn("token validation failed")
			m.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.Role != "admin" {
			m.respondError(w, http.StatusForbidden, "admin role required")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// IssueToken signs a short-lived admin token for the given address.
func (m *AdminAuth) IssueToken(address string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Address: address,
		Role:    "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *AdminAuth) validateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	return claims, nil
}

func (m *AdminAuth) respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ClaimsFromContext returns the authenticated claims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}
