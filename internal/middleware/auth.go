// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pretimmo/service_backend/internal/app/domain/subscription"
	"github.com/pretimmo/service_backend/internal/apperrors"
	"github.com/pretimmo/service_backend/internal/identity"
	"github.com/pretimmo/service_backend/pkg/logger"
)

// Claims are the session token claims issued by the identity provider. The
// subject is the user ID.
type Claims struct {
	Email string `json:"email,omitempty"`
	Plan  string `json:"plan,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	ID    string
	Email string
	Plan  subscription.Plan
}

type contextKey string

const principalKey contextKey = "principal"

// PlanResolver looks up a user's current plan when the token does not carry
// one. *identity.Client satisfies it.
type PlanResolver interface {
	GetUser(ctx context.Context, userID string) (identity.User, error)
}

// AuthMiddleware verifies bearer tokens and attaches the principal.
type AuthMiddleware struct {
	secret    []byte
	resolver  PlanResolver
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates an authentication middleware. The resolver is
// optional; without it, tokens without a plan claim resolve to the free plan.
func NewAuthMiddleware(secret []byte, resolver PlanResolver, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{secret: secret, resolver: resolver, log: log, skipPaths: skip}
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
			m.respondError(w, apperrors.Unauthenticated("missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, apperrors.Unauthenticated("invalid Authorization header format"))
			return
		}

		principal, err := m.authenticate(r.Context(), parts[1])
		if err != nil {
			m.log.WithError(err).WithField("path", r.URL.Path).Warn("authentication failed")
			m.respondError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// authenticate verifies the token and resolves the caller's plan.
func (m *AuthMiddleware) authenticate(ctx context.Context, tokenString string) (Principal, error) {
	claims, err := m.validateToken(tokenString)
	if err != nil {
		return Principal{}, err
	}

	principal := Principal{
		ID:    claims.Subject,
		Email: claims.Email,
		Plan:  subscription.Parse(claims.Plan),
	}
	if principal.ID == "" {
		return Principal{}, apperrors.Unauthenticated("token has no subject")
	}

	// Tokens minted before a plan change may lack the claim; the provider
	// stays authoritative.
	if claims.Plan == "" && m.resolver != nil {
		user, err := m.resolver.GetUser(ctx, principal.ID)
		if err != nil {
			m.log.WithError(err).WithField("user_id", principal.ID).Warn("plan lookup failed, defaulting to free")
		} else {
			principal.Plan = user.Plan
			if principal.Email == "" {
				principal.Email = user.Email
			}
		}
	}
	return principal, nil
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, apperrors.Unauthenticated("invalid token")
	}
	if !token.Valid {
		return nil, apperrors.Unauthenticated("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, apperrors.Unauthenticated("invalid token claims")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, err error) {
	appErr := apperrors.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{"error": appErr.PublicMessage()})
}

// WithPrincipal attaches the principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal extracts the principal from the context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
