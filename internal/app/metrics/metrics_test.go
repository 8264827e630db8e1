package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusRecorder(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, err := rec.Write([]byte("ok")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if rec.status != http.StatusOK {
		t.Fatalf("status = %d, want 200 when the handler never calls WriteHeader", rec.status)
	}

	rec = &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rec.WriteHeader(http.StatusNotFound)
	if rec.status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.status)
	}
}

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"/":                           "/",
		"/healthz":                    "/healthz",
		"/metrics":                    "/metrics",
		"/api/clients":                "/api/clients",
		"/api/clients/42":             "/api/clients/:id",
		"/api/clients/42/invite":      "/api/clients/:id/invite",
		"/api/invitations/abc-123":    "/api/invitations/:token",
		"/api/dossiers/7/diagnostics": "/api/dossiers/:id/diagnostics",
		"/api/diagnostics":            "/api/diagnostics",
		"/api/diagnostics/stats":      "/api/diagnostics/:id",
		"/api/webhooks/payment":       "/api/webhooks/:id",
	}
	for raw, want := range cases {
		if got := canonicalPath(raw); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", raw, got, want)
		}
	}
}
