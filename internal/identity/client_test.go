package identity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pretimmo/service_backend/internal/app/domain/subscription"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL, SecretKey: "sk-test"})
	require.NoError(t, err)
	return client
}

func TestLookupUserIDByEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users", r.URL.Path)
		assert.Equal(t, "jean@example.com", r.URL.Query().Get("email_address"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"user_123"}]`))
	})

	id, err := client.LookupUserIDByEmail(context.Background(), "jean@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user_123", id)
}

func TestLookupUserIDByEmail_NoMatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	id, err := client.LookupUserIDByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestGetUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/user_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"user_123","email_addresses":[{"email_address":"jean@example.com"}],"public_metadata":{"plan":"pro"}}`))
	})

	user, err := client.GetUser(context.Background(), "user_123")
	require.NoError(t, err)
	assert.Equal(t, "user_123", user.ID)
	assert.Equal(t, "jean@example.com", user.Email)
	assert.Equal(t, subscription.PlanPro, user.Plan)
}

func TestSetUserPlan(t *testing.T) {
	var patched map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/users/user_123/metadata", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &patched))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	require.NoError(t, client.SetUserPlan(context.Background(), "user_123", subscription.PlanPremium))

	meta, ok := patched["public_metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "premium", meta["plan"])
}

func TestSetUserPlan_UpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})

	err := client.SetUserPlan(context.Background(), "user_123", subscription.PlanPro)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
