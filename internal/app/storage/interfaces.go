// Package storage defines the persistence interfaces consumed by the domain
// services. Implementations live in the memory, postgres and supabase
// subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/pretimmo/service_backend/internal/app/domain/client"
	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/internal/app/domain/dossier"
)

// ErrNotFound is returned by every store when the target row does not exist.
var ErrNotFound = errors.New("not found")

// ClientStore persists broker client records.
type ClientStore interface {
	CreateClient(ctx context.Context, c client.Client) (client.Client, error)
	UpdateClient(ctx context.Context, c client.Client) (client.Client, error)
	GetClient(ctx context.Context, id string) (client.Client, error)
	GetClientByInviteToken(ctx context.Context, token string) (client.Client, error)
	ListClients(ctx context.Context, brokerID string) ([]client.Client, error)
	DeleteClient(ctx context.Context, id string) error
}

// DossierStore persists loan files.
type DossierStore interface {
	CreateDossier(ctx context.Context, d dossier.Dossier) (dossier.Dossier, error)
	UpdateDossier(ctx context.Context, d dossier.Dossier) (dossier.Dossier, error)
	GetDossier(ctx context.Context, id string) (dossier.Dossier, error)
	ListDossiers(ctx context.Context, clientID string) ([]dossier.Dossier, error)
}

// DiagnosticStore persists broker-side diagnostics. Records are append-only;
// there is deliberately no update operation.
type DiagnosticStore interface {
	CreateDiagnostic(ctx context.Context, rec diagnostic.Record) (diagnostic.Record, error)
	ListDiagnostics(ctx context.Context, dossierID string) ([]diagnostic.Record, error)
}

// SelfDiagnosticStore persists self-service diagnostics. Listing is newest
// first.
type SelfDiagnosticStore interface {
	CreateSelfDiagnostic(ctx context.Context, rec diagnostic.SelfRecord) (diagnostic.SelfRecord, error)
	ListSelfDiagnostics(ctx context.Context, userID string, limit int) ([]diagnostic.SelfRecord, error)
}
