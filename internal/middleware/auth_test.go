package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pretimmo/service_backend/internal/app/domain/subscription"
	"github.com/pretimmo/service_backend/internal/identity"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims Claims, secret []byte) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newEchoHandler(t *testing.T, got *Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r.Context())
		if !ok {
			t.Fatal("principal missing from context")
		}
		*got = p
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestHandler_ValidToken(t *testing.T) {
	var got Principal
	mw := NewAuthMiddleware(testSecret, nil, nil, nil)
	handler := mw.Handler(newEchoHandler(t, &got))

	token := signToken(t, Claims{
		Email:            "jean@example.com",
		Plan:             "pro",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user_1"},
	}, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got.ID != "user_1" || got.Email != "jean@example.com" || got.Plan != subscription.PlanPro {
		t.Fatalf("unexpected principal %+v", got)
	}
}

func TestHandler_Rejections(t *testing.T) {
	mw := NewAuthMiddleware(testSecret, nil, nil, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}, []byte("other"))},
		{"no subject", "Bearer " + signToken(t, Claims{}, testSecret)},
		{"expired", "Bearer " + signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}}, testSecret)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not valid JSON: %v (%q)", err, rec.Body.String())
			}
			if body["error"] == "" {
				t.Fatal("expected an error field in the body")
			}
		})
	}
}

func TestHandler_SkipPaths(t *testing.T) {
	mw := NewAuthMiddleware(testSecret, nil, nil, []string{"/healthz"})
	called := false
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("skip path must bypass authentication")
	}
}

type fakeResolver struct {
	user identity.User
	err  error
}

func (f *fakeResolver) GetUser(_ context.Context, _ string) (identity.User, error) {
	return f.user, f.err
}

func TestHandler_PlanResolution(t *testing.T) {
	var got Principal
	resolver := &fakeResolver{user: identity.User{ID: "user_1", Email: "jean@example.com", Plan: subscription.PlanPremium}}
	mw := NewAuthMiddleware(testSecret, resolver, nil, nil)
	handler := mw.Handler(newEchoHandler(t, &got))

	// Token without a plan claim falls back to the provider.
	token := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user_1"}}, testSecret)
	req := httptest.NewRequest(http.MethodGet, "/api/diagnostics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.Plan != subscription.PlanPremium {
		t.Fatalf("plan = %q, want premium", got.Plan)
	}
	if got.Email != "jean@example.com" {
		t.Fatalf("email = %q, want provider email", got.Email)
	}
}

func TestHandler_PlanResolutionFailureDefaultsFree(t *testing.T) {
	var got Principal
	resolver := &fakeResolver{err: errors.New("provider down")}
	mw := NewAuthMiddleware(testSecret, resolver, nil, nil)
	handler := mw.Handler(newEchoHandler(t, &got))

	token := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user_1"}}, testSecret)
	req := httptest.NewRequest(http.MethodGet, "/api/diagnostics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("lookup failure must not block the request, status = %d", rec.Code)
	}
	if got.Plan != subscription.PlanFree {
		t.Fatalf("plan = %q, want free", got.Plan)
	}
}
