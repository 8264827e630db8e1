// Package clients manages broker client records and the invitation flow that
// links an end-user account to a broker-managed record.
package clients

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/pretimmo/service_backend/internal/apperrors"
	"github.com/pretimmo/service_backend/internal/app/domain/client"
	"github.com/pretimmo/service_backend/internal/app/domain/dossier"
	"github.com/pretimmo/service_backend/internal/app/storage"
	"github.com/pretimmo/service_backend/pkg/logger"
)

// Service manages broker clients.
type Service struct {
	store    storage.ClientStore
	dossiers storage.DossierStore
	log      *logger.Logger
}

// New constructs a client service.
func New(store storage.ClientStore, dossiers storage.DossierStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("clients")
	}
	return &Service{store: store, dossiers: dossiers, log: log}
}

// Create registers a new client for the broker.
func (s *Service) Create(ctx context.Context, brokerID, nom, email string) (client.Client, error) {
	brokerID = strings.TrimSpace(brokerID)
	nom = strings.TrimSpace(nom)
	email = strings.TrimSpace(email)

	if brokerID == "" {
		return client.Client{}, apperrors.Unauthenticated("missing broker identity")
	}
	if nom == "" {
		return client.Client{}, apperrors.Validation("nom is required")
	}

	created, err := s.store.CreateClient(ctx, client.Client{
		BrokerID: brokerID,
		Nom:      nom,
		Email:    email,
	})
	if err != nil {
		return client.Client{}, apperrors.Upstream("create client", err)
	}

	s.log.WithField("client_id", created.ID).
		WithField("broker_id", brokerID).
		Info("client created")
	return created, nil
}

// List returns the broker's clients, newest first.
func (s *Service) List(ctx context.Context, brokerID string) ([]client.Client, error) {
	list, err := s.store.ListClients(ctx, brokerID)
	if err != nil {
		return nil, apperrors.Upstream("list clients", err)
	}
	return list, nil
}

// Get loads a client after verifying broker ownership.
func (s *Service) Get(ctx context.Context, brokerID, clientID string) (client.Client, error) {
	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return client.Client{}, apperrors.NotFound("client %s not found", clientID)
		}
		return client.Client{}, apperrors.Upstream("get client", err)
	}
	if c.BrokerID != brokerID {
		return client.Client{}, apperrors.Forbidden("client does not belong to this broker")
	}
	return c, nil
}

// GetWithDossiers loads a client and its dossiers, newest first.
func (s *Service) GetWithDossiers(ctx context.Context, brokerID, clientID string) (client.Client, []dossier.Dossier, error) {
	c, err := s.Get(ctx, brokerID, clientID)
	if err != nil {
		return client.Client{}, nil, err
	}
	list, err := s.dossiers.ListDossiers(ctx, clientID)
	if err != nil {
		return client.Client{}, nil, apperrors.Upstream("list dossiers", err)
	}
	return c, list, nil
}

// Update changes the mutable client fields.
func (s *Service) Update(ctx context.Context, brokerID, clientID string, nom, email *string) (client.Client, error) {
	c, err := s.Get(ctx, brokerID, clientID)
	if err != nil {
		return client.Client{}, err
	}

	if nom != nil {
		trimmed := strings.TrimSpace(*nom)
		if trimmed == "" {
			return client.Client{}, apperrors.Validation("nom cannot be empty")
		}
		c.Nom = trimmed
	}
	if email != nil {
		c.Email = strings.TrimSpace(*email)
	}

	updated, err := s.store.UpdateClient(ctx, c)
	if err != nil {
		return client.Client{}, apperrors.Upstream("update client", err)
	}
	return updated, nil
}

// Delete removes a client after the ownership check.
func (s *Service) Delete(ctx context.Context, brokerID, clientID string) error {
	if _, err := s.Get(ctx, brokerID, clientID); err != nil {
		return err
	}
	if err := s.store.DeleteClient(ctx, clientID); err != nil {
		return apperrors.Upstream("delete client", err)
	}
	s.log.WithField("client_id", clientID).
		WithField("broker_id", brokerID).
		Info("client deleted")
	return nil
}

// IssueInvite generates a fresh unguessable invitation token for the client
// and resets its redemption flag. Issuing again replaces any previous token.
func (s *Service) IssueInvite(ctx context.Context, brokerID, clientID string) (string, error) {
	c, err := s.Get(ctx, brokerID, clientID)
	if err != nil {
		return "", err
	}

	c.InviteToken = uuid.NewString()
	c.InviteUsed = false

	if _, err := s.store.UpdateClient(ctx, c); err != nil {
		return "", apperrors.Upstream("store invite token", err)
	}

	s.log.WithField("client_id", clientID).
		WithField("broker_id", brokerID).
		Info("invitation issued")
	return c.InviteToken, nil
}

// RedeemInvite links the authenticated user to the client record behind the
// token. A token that was already redeemed always yields a conflict and leaves
// the record untouched.
func (s *Service) RedeemInvite(ctx context.Context, token, userID string) (client.Client, error) {
	token = strings.TrimSpace(token)
	userID = strings.TrimSpace(userID)

	if userID == "" {
		return client.Client{}, apperrors.Unauthenticated("missing user identity")
	}
	if token == "" {
		return client.Client{}, apperrors.Validation("token is required")
	}

	c, err := s.store.GetClientByInviteToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return client.Client{}, apperrors.NotFound("invitation not found")
		}
		return client.Client{}, apperrors.Upstream("lookup invitation", err)
	}
	if c.InviteUsed {
		return client.Client{}, apperrors.Conflict("invitation already used")
	}

	c.UserID = userID
	c.InviteUsed = true

	updated, err := s.store.UpdateClient(ctx, c)
	if err != nil {
		return client.Client{}, apperrors.Upstream("redeem invitation", err)
	}

	s.log.WithField("client_id", c.ID).
		WithField("user_id", userID).
		Info("invitation redeemed")
	return updated, nil
}
