// Package middleware provides HTTP middleware for the gateway.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/httputil"
	"github.com/unimart/unimart/internal/logging"
)

type contextKey string

// AccessTokenKey carries the caller's raw access token so downstream
// backend calls run under the caller's row-level permissions.
const AccessTokenKey contextKey = "access_token"

// Claims are the session token claims issued by the auth backend.
type Claims struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates session tokens on protected routes.
type AuthMiddleware struct {
	secret    []byte
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates an authentication middleware verifying HS256
// tokens with the given shared secret. Paths in skipPaths pass through
// unauthenticated.
func NewAuthMiddleware(secret string, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		secret:    []byte(secret),
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, svcerr.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, svcerr.Unauthorized("Invalid Authorization header format"))
			return
		}

		tokenString := parts[1]

		claims, err := m.validateToken(tokenString)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), logging.UserIDKey, claims.Subject)
		if claims.Role != "" {
			ctx = context.WithValue(ctx, logging.RoleKey, claims.Role)
		}
		ctx = context.WithValue(ctx, AccessTokenKey, tokenString)
		ctx = logging.WithTraceID(ctx, logging.GetTraceID(r.Context()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateToken parses and verifies a session token.
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, svcerr.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, svcerr.InvalidToken(err)
	}

	if !token.Valid {
		return nil, svcerr.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, svcerr.InvalidToken(nil).WithDetails("reason", "missing subject")
	}

	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := svcerr.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = svcerr.Internal("Authentication failed", err)
	}

	httputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// GetUserID extracts the authenticated user id from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetAccessToken extracts the caller's raw session token from context.
func GetAccessToken(ctx context.Context) string {
	if token, ok := ctx.Value(AccessTokenKey).(string); ok {
		return token
	}
	return ""
}

// RequireUserID rejects requests without an authenticated user.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			httputil.Unauthorized(w, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
