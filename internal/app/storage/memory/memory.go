// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pretimmo/service_backend/internal/app/domain/client"
	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/internal/app/domain/dossier"
	"github.com/pretimmo/service_backend/internal/app/storage"
)

// Store is the in-memory store.
type Store struct {
	mu              sync.RWMutex
	nextID          int64
	clients         map[string]client.Client
	clientsByToken  map[string]string
	dossiers        map[string]dossier.Dossier
	diagnostics     map[string][]diagnostic.Record
	selfDiagnostics map[string][]diagnostic.SelfRecord
}

var _ storage.ClientStore = (*Store)(nil)
var _ storage.DossierStore = (*Store)(nil)
var _ storage.DiagnosticStore = (*Store)(nil)
var _ storage.SelfDiagnosticStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:          1,
		clients:         make(map[string]client.Client),
		clientsByToken:  make(map[string]string),
		dossiers:        make(map[string]dossier.Dossier),
		diagnostics:     make(map[string][]diagnostic.Record),
		selfDiagnostics: make(map[string][]diagnostic.SelfRecord),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// idAfter orders records with equal timestamps newest first. Generated IDs
// are unpadded decimal sequence numbers, so a longer ID is a later one.
func idAfter(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

// ClientStore implementation -------------------------------------------------

func (s *Store) CreateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.clients[c.ID]; exists {
		return client.Client{}, fmt.Errorf("client %s already exists", c.ID)
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.clients[c.ID] = c
	if c.InviteToken != "" {
		s.clientsByToken[c.InviteToken] = c.ID
	}
	return c, nil
}

func (s *Store) UpdateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.clients[c.ID]
	if !ok {
		return client.Client{}, fmt.Errorf("client %s: %w", c.ID, storage.ErrNotFound)
	}

	if original.InviteToken != "" && original.InviteToken != c.InviteToken {
		delete(s.clientsByToken, original.InviteToken)
	}
	if c.InviteToken != "" {
		s.clientsByToken[c.InviteToken] = c.ID
	}

	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) GetClient(_ context.Context, id string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return client.Client{}, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetClientByInviteToken(_ context.Context, token string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.clientsByToken[token]
	if !ok {
		return client.Client{}, fmt.Errorf("invite token: %w", storage.ErrNotFound)
	}
	return s.clients[id], nil
}

func (s *Store) ListClients(_ context.Context, brokerID string) ([]client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []client.Client
	for _, c := range s.clients {
		if c.BrokerID == brokerID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return idAfter(result[i].ID, result[j].ID)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	if c.InviteToken != "" {
		delete(s.clientsByToken, c.InviteToken)
	}
	delete(s.clients, id)
	return nil
}

// DossierStore implementation ------------------------------------------------

func (s *Store) CreateDossier(_ context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = s.nextIDLocked()
	} else if _, exists := s.dossiers[d.ID]; exists {
		return dossier.Dossier{}, fmt.Errorf("dossier %s already exists", d.ID)
	}

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.dossiers[d.ID] = d
	return d, nil
}

func (s *Store) UpdateDossier(_ context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.dossiers[d.ID]
	if !ok {
		return dossier.Dossier{}, fmt.Errorf("dossier %s: %w", d.ID, storage.ErrNotFound)
	}

	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	s.dossiers[d.ID] = d
	return d, nil
}

func (s *Store) GetDossier(_ context.Context, id string) (dossier.Dossier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dossiers[id]
	if !ok {
		return dossier.Dossier{}, fmt.Errorf("dossier %s: %w", id, storage.ErrNotFound)
	}
	return d, nil
}

func (s *Store) ListDossiers(_ context.Context, clientID string) ([]dossier.Dossier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []dossier.Dossier
	for _, d := range s.dossiers {
		if d.ClientID == clientID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return idAfter(result[i].ID, result[j].ID)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// DiagnosticStore implementation ---------------------------------------------

func (s *Store) CreateDiagnostic(_ context.Context, rec diagnostic.Record) (diagnostic.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	}
	rec.CreatedAt = time.Now().UTC()

	// Newest first, append-only.
	s.diagnostics[rec.DossierID] = append([]diagnostic.Record{rec}, s.diagnostics[rec.DossierID]...)
	return rec, nil
}

func (s *Store) ListDiagnostics(_ context.Context, dossierID string) ([]diagnostic.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.diagnostics[dossierID]
	result := make([]diagnostic.Record, len(recs))
	copy(result, recs)
	return result, nil
}

// SelfDiagnosticStore implementation -----------------------------------------

func (s *Store) CreateSelfDiagnostic(_ context.Context, rec diagnostic.SelfRecord) (diagnostic.SelfRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	}
	rec.CreatedAt = time.Now().UTC()

	s.selfDiagnostics[rec.UserID] = append([]diagnostic.SelfRecord{rec}, s.selfDiagnostics[rec.UserID]...)
	return rec, nil
}

func (s *Store) ListSelfDiagnostics(_ context.Context, userID string, limit int) ([]diagnostic.SelfRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.selfDiagnostics[userID]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	result := make([]diagnostic.SelfRecord, len(recs))
	copy(result, recs)
	return result, nil
}
