package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/pretimmo/service_backend/internal/app/domain/client"
	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/internal/app/domain/dossier"
	"github.com/pretimmo/service_backend/internal/app/storage"
	"github.com/pretimmo/service_backend/internal/scoring"
)

// Store implements the storage interfaces against a Supabase project.
type Store struct {
	client *Client
}

var _ storage.ClientStore = (*Store)(nil)
var _ storage.DossierStore = (*Store)(nil)
var _ storage.DiagnosticStore = (*Store)(nil)
var _ storage.SelfDiagnosticStore = (*Store)(nil)

// NewStore creates a Supabase-backed store.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// Row types mirror the legacy table layout. Nullable text columns use
// pointers so inserts can write SQL NULL instead of empty strings.

type clientRow struct {
	ID          string    `json:"id,omitempty"`
	BrokerID    string    `json:"broker_id"`
	Nom         string    `json:"nom"`
	Email       *string   `json:"email"`
	InviteToken *string   `json:"invite_token"`
	InviteUsed  bool      `json:"invite_used"`
	UserID      *string   `json:"client_user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toClientRow(c client.Client) clientRow {
	return clientRow{
		ID:          c.ID,
		BrokerID:    c.BrokerID,
		Nom:         c.Nom,
		Email:       optional(c.Email),
		InviteToken: optional(c.InviteToken),
		InviteUsed:  c.InviteUsed,
		UserID:      optional(c.UserID),
	}
}

func (r clientRow) toDomain() client.Client {
	return client.Client{
		ID:          r.ID,
		BrokerID:    r.BrokerID,
		Nom:         r.Nom,
		Email:       deref(r.Email),
		InviteToken: deref(r.InviteToken),
		InviteUsed:  r.InviteUsed,
		UserID:      deref(r.UserID),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type dossierRow struct {
	ID        string    `json:"id,omitempty"`
	ClientID  string    `json:"client_id"`
	BrokerID  string    `json:"broker_id"`
	Titre     string    `json:"titre"`
	Statut    string    `json:"statut"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r dossierRow) toDomain() dossier.Dossier {
	return dossier.Dossier{
		ID:        r.ID,
		ClientID:  r.ClientID,
		BrokerID:  r.BrokerID,
		Titre:     r.Titre,
		Statut:    dossier.Statut(r.Statut),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// diagnosticRow flattens the engine input and result into the legacy
// courtier_diagnostics columns. Actions and simulations stay jsonb.
type diagnosticRow struct {
	ID        string `json:"id,omitempty"`
	DossierID string `json:"dossier_id"`
	BrokerID  string `json:"broker_id"`

	InputRevenus     float64 `json:"input_revenus"`
	InputCharges     float64 `json:"input_charges"`
	InputMontant     float64 `json:"input_montant"`
	InputApport      float64 `json:"input_apport"`
	InputDuree       int     `json:"input_duree"`
	InputTauxInteret float64 `json:"input_taux_interet"`
	InputContrat     string  `json:"input_contrat"`
	InputAnciennete  string  `json:"input_anciennete"`
	InputDecouvert   string  `json:"input_decouvert"`
	InputNbEnfants   int     `json:"input_nb_enfants"`

	ScoreGlobal     int                  `json:"score_global"`
	TauxEndettement float64              `json:"taux_endettement"`
	Mensualite      float64              `json:"mensualite"`
	ResteAVivre     float64              `json:"reste_a_vivre"`
	ApportPct       float64              `json:"apport_pct"`
	HcsfOk          bool                 `json:"hcsf_ok"`
	Actions         []scoring.ActionItem `json:"actions"`
	Simulations     []scoring.Simulation `json:"simulations"`

	CreatedAt time.Time `json:"created_at"`
}

func toDiagnosticRow(rec diagnostic.Record) diagnosticRow {
	return diagnosticRow{
		ID:               rec.ID,
		DossierID:        rec.DossierID,
		BrokerID:         rec.BrokerID,
		InputRevenus:     rec.Input.Revenus,
		InputCharges:     rec.Input.Charges,
		InputMontant:     rec.Input.Montant,
		InputApport:      rec.Input.Apport,
		InputDuree:       rec.Input.Duree,
		InputTauxInteret: rec.Input.TauxInteret,
		InputContrat:     rec.Input.Contrat,
		InputAnciennete:  rec.Input.Anciennete,
		InputDecouvert:   rec.Input.Decouvert,
		InputNbEnfants:   rec.Input.NbEnfants,
		ScoreGlobal:      rec.Result.ScoreGlobal,
		TauxEndettement:  rec.Result.TauxEndettement,
		Mensualite:       rec.Result.Mensualite,
		ResteAVivre:      rec.Result.ResteAVivre,
		ApportPct:        rec.Result.ApportPct,
		HcsfOk:           rec.Result.HcsfOk,
		Actions:          rec.Result.Actions,
		Simulations:      rec.Result.Simulations,
	}
}

func (r diagnosticRow) toDomain() diagnostic.Record {
	return diagnostic.Record{
		ID:        r.ID,
		DossierID: r.DossierID,
		BrokerID:  r.BrokerID,
		Input: scoring.Input{
			Revenus:     r.InputRevenus,
			Charges:     r.InputCharges,
			Montant:     r.InputMontant,
			Apport:      r.InputApport,
			Duree:       r.InputDuree,
			TauxInteret: r.InputTauxInteret,
			Contrat:     r.InputContrat,
			Anciennete:  r.InputAnciennete,
			Decouvert:   r.InputDecouvert,
			NbEnfants:   r.InputNbEnfants,
		},
		Result: scoring.Result{
			ScoreGlobal:     r.ScoreGlobal,
			TauxEndettement: r.TauxEndettement,
			Mensualite:      r.Mensualite,
			ResteAVivre:     r.ResteAVivre,
			ApportPct:       r.ApportPct,
			HcsfOk:          r.HcsfOk,
			Actions:         r.Actions,
			Simulations:     r.Simulations,
		},
		CreatedAt: r.CreatedAt,
	}
}

type selfDiagnosticRow struct {
	ID             string `json:"id,omitempty"`
	UserID         string `json:"user_id"`
	DiagnosticType string `json:"diagnostic_type"`

	Revenus     float64 `json:"revenus"`
	Charges     float64 `json:"charges"`
	Montant     float64 `json:"montant"`
	Apport      float64 `json:"apport"`
	Duree       int     `json:"duree"`
	TauxInteret float64 `json:"taux_interet"`
	Contrat     string  `json:"contrat"`
	Anciennete  string  `json:"anciennete"`
	Decouvert   string  `json:"decouvert"`
	NbEnfants   int     `json:"nb_enfants"`

	Score           int                  `json:"score"`
	TauxEndettement float64              `json:"taux_endettement"`
	Mensualite      float64              `json:"mensualite"`
	ResteAVivre     float64              `json:"reste_a_vivre"`
	ApportPct       float64              `json:"apport_pct"`
	HcsfOk          bool                 `json:"hcsf_ok"`
	Actions         []scoring.ActionItem `json:"actions"`
	Simulations     []scoring.Simulation `json:"simulations"`

	CreatedAt time.Time `json:"created_at"`
}

func toSelfDiagnosticRow(rec diagnostic.SelfRecord) selfDiagnosticRow {
	return selfDiagnosticRow{
		ID:              rec.ID,
		UserID:          rec.UserID,
		DiagnosticType:  rec.Type,
		Revenus:         rec.Input.Revenus,
		Charges:         rec.Input.Charges,
		Montant:         rec.Input.Montant,
		Apport:          rec.Input.Apport,
		Duree:           rec.Input.Duree,
		TauxInteret:     rec.Input.TauxInteret,
		Contrat:         rec.Input.Contrat,
		Anciennete:      rec.Input.Anciennete,
		Decouvert:       rec.Input.Decouvert,
		NbEnfants:       rec.Input.NbEnfants,
		Score:           rec.Result.ScoreGlobal,
		TauxEndettement: rec.Result.TauxEndettement,
		Mensualite:      rec.Result.Mensualite,
		ResteAVivre:     rec.Result.ResteAVivre,
		ApportPct:       rec.Result.ApportPct,
		HcsfOk:          rec.Result.HcsfOk,
		Actions:         rec.Result.Actions,
		Simulations:     rec.Result.Simulations,
	}
}

func (r selfDiagnosticRow) toDomain() diagnostic.SelfRecord {
	return diagnostic.SelfRecord{
		ID:     r.ID,
		UserID: r.UserID,
		Type:   r.DiagnosticType,
		Input: scoring.Input{
			Revenus:     r.Revenus,
			Charges:     r.Charges,
			Montant:     r.Montant,
			Apport:      r.Apport,
			Duree:       r.Duree,
			TauxInteret: r.TauxInteret,
			Contrat:     r.Contrat,
			Anciennete:  r.Anciennete,
			Decouvert:   r.Decouvert,
			NbEnfants:   r.NbEnfants,
		},
		Result: scoring.Result{
			ScoreGlobal:     r.Score,
			TauxEndettement: r.TauxEndettement,
			Mensualite:      r.Mensualite,
			ResteAVivre:     r.ResteAVivre,
			ApportPct:       r.ApportPct,
			HcsfOk:          r.HcsfOk,
			Actions:         r.Actions,
			Simulations:     r.Simulations,
		},
		CreatedAt: r.CreatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ClientStore implementation -------------------------------------------------

func (s *Store) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := toClientRow(c)
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	body, err := s.client.request(ctx, http.MethodPost, "courtier_clients", row, "")
	if err != nil {
		return client.Client{}, fmt.Errorf("create client: %w", err)
	}
	created, err := decodeOne[clientRow](body)
	if err != nil {
		return client.Client{}, fmt.Errorf("create client: %w", err)
	}
	return created.toDomain(), nil
}

func (s *Store) UpdateClient(ctx context.Context, c client.Client) (client.Client, error) {
	// Patch only the mutable columns; created_at stays untouched.
	patch := map[string]interface{}{
		"nom":            c.Nom,
		"email":          optional(c.Email),
		"invite_token":   optional(c.InviteToken),
		"invite_used":    c.InviteUsed,
		"client_user_id": optional(c.UserID),
		"updated_at":     time.Now().UTC(),
	}

	query := "id=eq." + url.QueryEscape(c.ID)
	body, err := s.client.request(ctx, http.MethodPatch, "courtier_clients", patch, query)
	if err != nil {
		return client.Client{}, fmt.Errorf("update client: %w", err)
	}
	updated, err := decodeOne[clientRow](body)
	if err != nil {
		return client.Client{}, fmt.Errorf("client %s: %w", c.ID, err)
	}
	return updated.toDomain(), nil
}

func (s *Store) GetClient(ctx context.Context, id string) (client.Client, error) {
	query := "id=eq." + url.QueryEscape(id) + "&select=*"
	body, err := s.client.request(ctx, http.MethodGet, "courtier_clients", nil, query)
	if err != nil {
		return client.Client{}, fmt.Errorf("get client: %w", err)
	}
	row, err := decodeOne[clientRow](body)
	if err != nil {
		return client.Client{}, fmt.Errorf("client %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetClientByInviteToken(ctx context.Context, token string) (client.Client, error) {
	query := "invite_token=eq." + url.QueryEscape(token) + "&select=*"
	body, err := s.client.request(ctx, http.MethodGet, "courtier_clients", nil, query)
	if err != nil {
		return client.Client{}, fmt.Errorf("get client by invite token: %w", err)
	}
	row, err := decodeOne[clientRow](body)
	if err != nil {
		return client.Client{}, fmt.Errorf("invite token: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListClients(ctx context.Context, brokerID string) ([]client.Client, error) {
	query := "broker_id=eq." + url.QueryEscape(brokerID) + "&select=*&order=created_at.desc"
	body, err := s.client.request(ctx, http.MethodGet, "courtier_clients", nil, query)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	var rows []clientRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode clients: %w", err)
	}
	result := make([]client.Client, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	query := "id=eq." + url.QueryEscape(id)
	body, err := s.client.request(ctx, http.MethodDelete, "courtier_clients", nil, query)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if _, err := decodeOne[clientRow](body); err != nil {
		return fmt.Errorf("client %s: %w", id, err)
	}
	return nil
}

// DossierStore implementation ------------------------------------------------

func (s *Store) CreateDossier(ctx context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := dossierRow{
		ID:        d.ID,
		ClientID:  d.ClientID,
		BrokerID:  d.BrokerID,
		Titre:     d.Titre,
		Statut:    string(d.Statut),
		CreatedAt: now,
		UpdatedAt: now,
	}

	body, err := s.client.request(ctx, http.MethodPost, "courtier_dossiers", row, "")
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("create dossier: %w", err)
	}
	created, err := decodeOne[dossierRow](body)
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("create dossier: %w", err)
	}
	return created.toDomain(), nil
}

func (s *Store) UpdateDossier(ctx context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	patch := map[string]interface{}{
		"titre":      d.Titre,
		"statut":     string(d.Statut),
		"updated_at": time.Now().UTC(),
	}

	query := "id=eq." + url.QueryEscape(d.ID)
	body, err := s.client.request(ctx, http.MethodPatch, "courtier_dossiers", patch, query)
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("update dossier: %w", err)
	}
	updated, err := decodeOne[dossierRow](body)
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("dossier %s: %w", d.ID, err)
	}
	return updated.toDomain(), nil
}

func (s *Store) GetDossier(ctx context.Context, id string) (dossier.Dossier, error) {
	query := "id=eq." + url.QueryEscape(id) + "&select=*"
	body, err := s.client.request(ctx, http.MethodGet, "courtier_dossiers", nil, query)
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("get dossier: %w", err)
	}
	row, err := decodeOne[dossierRow](body)
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("dossier %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListDossiers(ctx context.Context, clientID string) ([]dossier.Dossier, error) {
	query := "client_id=eq." + url.QueryEscape(clientID) + "&select=*&order=created_at.desc"
	body, err := s.client.request(ctx, http.MethodGet, "courtier_dossiers", nil, query)
	if err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	var rows []dossierRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode dossiers: %w", err)
	}
	result := make([]dossier.Dossier, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// DiagnosticStore implementation ---------------------------------------------

func (s *Store) CreateDiagnostic(ctx context.Context, rec diagnostic.Record) (diagnostic.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := toDiagnosticRow(rec)
	row.CreatedAt = time.Now().UTC()

	body, err := s.client.request(ctx, http.MethodPost, "courtier_diagnostics", row, "")
	if err != nil {
		return diagnostic.Record{}, fmt.Errorf("create diagnostic: %w", err)
	}
	created, err := decodeOne[diagnosticRow](body)
	if err != nil {
		return diagnostic.Record{}, fmt.Errorf("create diagnostic: %w", err)
	}
	return created.toDomain(), nil
}

func (s *Store) ListDiagnostics(ctx context.Context, dossierID string) ([]diagnostic.Record, error) {
	query := "dossier_id=eq." + url.QueryEscape(dossierID) + "&select=*&order=created_at.desc"
	body, err := s.client.request(ctx, http.MethodGet, "courtier_diagnostics", nil, query)
	if err != nil {
		return nil, fmt.Errorf("list diagnostics: %w", err)
	}
	var rows []diagnosticRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode diagnostics: %w", err)
	}
	result := make([]diagnostic.Record, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// SelfDiagnosticStore implementation -----------------------------------------

func (s *Store) CreateSelfDiagnostic(ctx context.Context, rec diagnostic.SelfRecord) (diagnostic.SelfRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := toSelfDiagnosticRow(rec)
	row.CreatedAt = time.Now().UTC()

	body, err := s.client.request(ctx, http.MethodPost, "user_diagnostics", row, "")
	if err != nil {
		return diagnostic.SelfRecord{}, fmt.Errorf("create self diagnostic: %w", err)
	}
	created, err := decodeOne[selfDiagnosticRow](body)
	if err != nil {
		return diagnostic.SelfRecord{}, fmt.Errorf("create self diagnostic: %w", err)
	}
	return created.toDomain(), nil
}

func (s *Store) ListSelfDiagnostics(ctx context.Context, userID string, limit int) ([]diagnostic.SelfRecord, error) {
	query := "user_id=eq." + url.QueryEscape(userID) + "&select=*&order=created_at.desc"
	if limit > 0 {
		query += fmt.Sprintf("&limit=%d", limit)
	}
	body, err := s.client.request(ctx, http.MethodGet, "user_diagnostics", nil, query)
	if err != nil {
		return nil, fmt.Errorf("list self diagnostics: %w", err)
	}
	var rows []selfDiagnosticRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode self diagnostics: %w", err)
	}
	result := make([]diagnostic.SelfRecord, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// decodeOne decodes a PostgREST representation array expecting exactly one
// row. An empty array maps to storage.ErrNotFound.
func decodeOne[T any](body []byte) (T, error) {
	var zero T
	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return zero, fmt.Errorf("decode row: %w", err)
	}
	if len(rows) == 0 {
		return zero, storage.ErrNotFound
	}
	return rows[0], nil
}
