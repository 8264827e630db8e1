package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/pretimmo/service_backend/internal/app/domain/client"
	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/internal/app/domain/dossier"
	"github.com/pretimmo/service_backend/internal/app/storage"
	"github.com/pretimmo/service_backend/internal/scoring"
)

func TestClientLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateClient(ctx, client.Client{BrokerID: "b1", Nom: "Alice Martin"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}

	got, err := store.GetClient(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Nom != "Alice Martin" {
		t.Fatalf("unexpected nom %q", got.Nom)
	}

	got.Nom = "Alice Durand"
	updated, err := store.UpdateClient(ctx, got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Nom != "Alice Durand" {
		t.Fatalf("unexpected nom %q", updated.Nom)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("update must not change CreatedAt")
	}

	if err := store.DeleteClient(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetClient(ctx, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInviteTokenIndex(t *testing.T) {
	store := New()
	ctx := context.Background()

	c, err := store.CreateClient(ctx, client.Client{BrokerID: "b1", Nom: "Bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.GetClientByInviteToken(ctx, "tok-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c.InviteToken = "tok-1"
	if _, err := store.UpdateClient(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}

	found, err := store.GetClientByInviteToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != c.ID {
		t.Fatalf("unexpected client %q", found.ID)
	}

	// Re-issuing replaces the token and drops the old index entry.
	c.InviteToken = "tok-2"
	if _, err := store.UpdateClient(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.GetClientByInviteToken(ctx, "tok-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected stale token to be gone, got %v", err)
	}
	if _, err := store.GetClientByInviteToken(ctx, "tok-2"); err != nil {
		t.Fatalf("new token lookup: %v", err)
	}
}

func TestListClients_FiltersByBroker(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, c := range []client.Client{
		{BrokerID: "b1", Nom: "A"},
		{BrokerID: "b2", Nom: "B"},
		{BrokerID: "b1", Nom: "C"},
	} {
		if _, err := store.CreateClient(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := store.ListClients(ctx, "b1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(list))
	}
	for _, c := range list {
		if c.BrokerID != "b1" {
			t.Fatalf("unexpected broker %q", c.BrokerID)
		}
	}
}

func TestListClients_NewestFirstAcrossIDWidths(t *testing.T) {
	store := New()
	ctx := context.Background()

	// Create enough records that sequence IDs cross the single-digit
	// boundary; listing must stay in creation order even when the clock
	// does not advance between creates.
	for i := 0; i < 12; i++ {
		if _, err := store.CreateClient(ctx, client.Client{BrokerID: "b1", Nom: "C"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := store.ListClients(ctx, "b1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 12 {
		t.Fatalf("expected 12 clients, got %d", len(list))
	}
	if list[0].ID != "12" || list[len(list)-1].ID != "1" {
		t.Fatalf("expected IDs 12..1 newest first, got %q..%q", list[0].ID, list[len(list)-1].ID)
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.After(list[i-1].CreatedAt) {
			t.Fatal("expected non-increasing CreatedAt")
		}
	}
}

func TestIDAfter(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"10", "9", true},
		{"9", "10", false},
		{"2", "1", true},
		{"100", "99", true},
	}
	for _, tc := range cases {
		if got := idAfter(tc.a, tc.b); got != tc.want {
			t.Errorf("idAfter(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestDossierUpdate_NotFound(t *testing.T) {
	store := New()

	_, err := store.UpdateDossier(context.Background(), dossier.Dossier{ID: "missing"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDiagnosticsNewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.CreateDiagnostic(ctx, diagnostic.Record{
			DossierID: "d1",
			Result:    scoring.Result{ScoreGlobal: 50 + i},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	recs, err := store.ListDiagnostics(ctx, "d1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Result.ScoreGlobal != 52 {
		t.Fatalf("expected newest first, got score %d", recs[0].Result.ScoreGlobal)
	}
}

func TestListSelfDiagnostics_Limit(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.CreateSelfDiagnostic(ctx, diagnostic.SelfRecord{
			UserID: "u1",
			Type:   diagnostic.TypeExpress,
			Result: scoring.Result{ScoreGlobal: 40 + i},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	recs, err := store.ListSelfDiagnostics(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Result.ScoreGlobal != 44 {
		t.Fatalf("expected newest first, got score %d", recs[0].Result.ScoreGlobal)
	}
}
