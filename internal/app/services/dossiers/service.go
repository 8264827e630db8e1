// Package dossiers manages loan files attached to broker clients.
package dossiers

import (
	"context"
	"errors"
	"strings"

	"github.com/pretimmo/service_backend/internal/apperrors"
	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/internal/app/domain/dossier"
	"github.com/pretimmo/service_backend/internal/app/storage"
	"github.com/pretimmo/service_backend/pkg/logger"
)

// Service manages dossiers.
type Service struct {
	store       storage.DossierStore
	clients     storage.ClientStore
	diagnostics storage.DiagnosticStore
	log         *logger.Logger
}

// New constructs a dossier service.
func New(store storage.DossierStore, clients storage.ClientStore, diagnostics storage.DiagnosticStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dossiers")
	}
	return &Service{store: store, clients: clients, diagnostics: diagnostics, log: log}
}

// Create opens a new dossier for one of the broker's clients. The dossier
// starts in the pending status.
func (s *Service) Create(ctx context.Context, brokerID, clientID, titre string) (dossier.Dossier, error) {
	brokerID = strings.TrimSpace(brokerID)
	clientID = strings.TrimSpace(clientID)
	titre = strings.TrimSpace(titre)

	if brokerID == "" {
		return dossier.Dossier{}, apperrors.Unauthenticated("missing broker identity")
	}
	if clientID == "" {
		return dossier.Dossier{}, apperrors.Validation("clientId is required")
	}
	if titre == "" {
		return dossier.Dossier{}, apperrors.Validation("titre is required")
	}

	c, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return dossier.Dossier{}, apperrors.NotFound("client %s not found", clientID)
		}
		return dossier.Dossier{}, apperrors.Upstream("get client", err)
	}
	if c.BrokerID != brokerID {
		return dossier.Dossier{}, apperrors.Forbidden("client does not belong to this broker")
	}

	created, err := s.store.CreateDossier(ctx, dossier.Dossier{
		ClientID: clientID,
		BrokerID: brokerID,
		Titre:    titre,
		Statut:   dossier.StatutEnAttente,
	})
	if err != nil {
		return dossier.Dossier{}, apperrors.Upstream("create dossier", err)
	}

	s.log.WithField("dossier_id", created.ID).
		WithField("client_id", clientID).
		WithField("broker_id", brokerID).
		Info("dossier created")
	return created, nil
}

// Get loads a dossier after verifying broker ownership.
func (s *Service) Get(ctx context.Context, brokerID, dossierID string) (dossier.Dossier, error) {
	d, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return dossier.Dossier{}, apperrors.NotFound("dossier %s not found", dossierID)
		}
		return dossier.Dossier{}, apperrors.Upstream("get dossier", err)
	}
	if d.BrokerID != brokerID {
		return dossier.Dossier{}, apperrors.Forbidden("dossier does not belong to this broker")
	}
	return d, nil
}

// GetWithDiagnostics loads a dossier and its diagnostic history, newest first.
func (s *Service) GetWithDiagnostics(ctx context.Context, brokerID, dossierID string) (dossier.Dossier, []diagnostic.Record, error) {
	d, err := s.Get(ctx, brokerID, dossierID)
	if err != nil {
		return dossier.Dossier{}, nil, err
	}
	recs, err := s.diagnostics.ListDiagnostics(ctx, dossierID)
	if err != nil {
		return dossier.Dossier{}, nil, apperrors.Upstream("list diagnostics", err)
	}
	return d, recs, nil
}

// Update changes the dossier title and/or status. Unknown statuses are
// rejected before anything is written.
func (s *Service) Update(ctx context.Context, brokerID, dossierID string, titre, statut *string) (dossier.Dossier, error) {
	d, err := s.Get(ctx, brokerID, dossierID)
	if err != nil {
		return dossier.Dossier{}, err
	}

	if titre != nil {
		trimmed := strings.TrimSpace(*titre)
		if trimmed == "" {
			return dossier.Dossier{}, apperrors.Validation("titre cannot be empty")
		}
		d.Titre = trimmed
	}
	if statut != nil {
		next := dossier.Statut(strings.TrimSpace(*statut))
		if !next.Valid() {
			return dossier.Dossier{}, apperrors.Validation("unknown statut %q", *statut)
		}
		d.Statut = next
	}

	updated, err := s.store.UpdateDossier(ctx, d)
	if err != nil {
		return dossier.Dossier{}, apperrors.Upstream("update dossier", err)
	}

	s.log.WithField("dossier_id", dossierID).
		WithField("statut", string(updated.Statut)).
		Info("dossier updated")
	return updated, nil
}
