// Package postgres implements the storage interfaces on PostgreSQL using
// database/sql with the lib/pq driver. Diagnostic inputs and results are
// stored as jsonb so the engine types remain the single source of truth.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/pretimmo/service_backend/internal/app/domain/client"
	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/internal/app/domain/dossier"
	"github.com/pretimmo/service_backend/internal/app/storage"
)

// Store is the PostgreSQL-backed store.
type Store struct {
	db *sql.DB
}

var _ storage.ClientStore = (*Store)(nil)
var _ storage.DossierStore = (*Store)(nil)
var _ storage.DiagnosticStore = (*Store)(nil)
var _ storage.SelfDiagnosticStore = (*Store)(nil)

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Setup creates the tables when they do not exist yet.
func (s *Store) Setup(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			broker_id TEXT NOT NULL,
			nom TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			invite_token TEXT NOT NULL DEFAULT '',
			invite_used BOOLEAN NOT NULL DEFAULT FALSE,
			client_user_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS clients_broker_idx ON clients (broker_id)`,
		`CREATE INDEX IF NOT EXISTS clients_invite_token_idx ON clients (invite_token) WHERE invite_token <> ''`,
		`CREATE TABLE IF NOT EXISTS dossiers (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			broker_id TEXT NOT NULL,
			titre TEXT NOT NULL,
			statut TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS dossiers_client_idx ON dossiers (client_id)`,
		`CREATE TABLE IF NOT EXISTS diagnostics (
			id TEXT PRIMARY KEY,
			dossier_id TEXT NOT NULL,
			broker_id TEXT NOT NULL,
			input JSONB NOT NULL,
			result JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS diagnostics_dossier_idx ON diagnostics (dossier_id)`,
		`CREATE TABLE IF NOT EXISTS self_diagnostics (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			diagnostic_type TEXT NOT NULL,
			input JSONB NOT NULL,
			result JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS self_diagnostics_user_idx ON self_diagnostics (user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("setup schema: %w", err)
		}
	}
	return nil
}

// ClientStore implementation -------------------------------------------------

const clientColumns = `id, broker_id, nom, email, invite_token, invite_used, client_user_id, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (client.Client, error) {
	var c client.Client
	err := row.Scan(&c.ID, &c.BrokerID, &c.Nom, &c.Email, &c.InviteToken, &c.InviteUsed, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.BrokerID, c.Nom, c.Email, c.InviteToken, c.InviteUsed, c.UserID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return client.Client{}, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

func (s *Store) UpdateClient(ctx context.Context, c client.Client) (client.Client, error) {
	c.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET nom = $2, email = $3, invite_token = $4, invite_used = $5, client_user_id = $6, updated_at = $7 WHERE id = $1`,
		c.ID, c.Nom, c.Email, c.InviteToken, c.InviteUsed, c.UserID, c.UpdatedAt)
	if err != nil {
		return client.Client{}, fmt.Errorf("update client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return client.Client{}, fmt.Errorf("update client: %w", err)
	}
	if affected == 0 {
		return client.Client{}, fmt.Errorf("client %s: %w", c.ID, storage.ErrNotFound)
	}
	return s.GetClient(ctx, c.ID)
}

func (s *Store) GetClient(ctx context.Context, id string) (client.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return client.Client{}, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return client.Client{}, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (s *Store) GetClientByInviteToken(ctx context.Context, token string) (client.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE invite_token = $1 AND invite_token <> ''`, token)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return client.Client{}, fmt.Errorf("invite token: %w", storage.ErrNotFound)
	}
	if err != nil {
		return client.Client{}, fmt.Errorf("get client by invite token: %w", err)
	}
	return c, nil
}

func (s *Store) ListClients(ctx context.Context, brokerID string) ([]client.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE broker_id = $1 ORDER BY created_at DESC, id DESC`, brokerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var result []client.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// DossierStore implementation ------------------------------------------------

const dossierColumns = `id, client_id, broker_id, titre, statut, created_at, updated_at`

func scanDossier(row interface{ Scan(...any) error }) (dossier.Dossier, error) {
	var d dossier.Dossier
	err := row.Scan(&d.ID, &d.ClientID, &d.BrokerID, &d.Titre, &d.Statut, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *Store) CreateDossier(ctx context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dossiers (`+dossierColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.ClientID, d.BrokerID, d.Titre, d.Statut, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("insert dossier: %w", err)
	}
	return d, nil
}

func (s *Store) UpdateDossier(ctx context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	d.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE dossiers SET titre = $2, statut = $3, updated_at = $4 WHERE id = $1`,
		d.ID, d.Titre, d.Statut, d.UpdatedAt)
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("update dossier: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("update dossier: %w", err)
	}
	if affected == 0 {
		return dossier.Dossier{}, fmt.Errorf("dossier %s: %w", d.ID, storage.ErrNotFound)
	}
	return s.GetDossier(ctx, d.ID)
}

func (s *Store) GetDossier(ctx context.Context, id string) (dossier.Dossier, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dossierColumns+` FROM dossiers WHERE id = $1`, id)
	d, err := scanDossier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return dossier.Dossier{}, fmt.Errorf("dossier %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return dossier.Dossier{}, fmt.Errorf("get dossier: %w", err)
	}
	return d, nil
}

func (s *Store) ListDossiers(ctx context.Context, clientID string) ([]dossier.Dossier, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dossierColumns+` FROM dossiers WHERE client_id = $1 ORDER BY created_at DESC, id DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	defer rows.Close()

	var result []dossier.Dossier
	for rows.Next() {
		d, err := scanDossier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dossier: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// DiagnosticStore implementation ---------------------------------------------

func (s *Store) CreateDiagnostic(ctx context.Context, rec diagnostic.Record) (diagnostic.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()

	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return diagnostic.Record{}, fmt.Errorf("marshal diagnostic input: %w", err)
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return diagnostic.Record{}, fmt.Errorf("marshal diagnostic result: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO diagnostics (id, dossier_id, broker_id, input, result, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.DossierID, rec.BrokerID, inputJSON, resultJSON, rec.CreatedAt)
	if err != nil {
		return diagnostic.Record{}, fmt.Errorf("insert diagnostic: %w", err)
	}
	return rec, nil
}

func (s *Store) ListDiagnostics(ctx context.Context, dossierID string) ([]diagnostic.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dossier_id, broker_id, input, result, created_at FROM diagnostics WHERE dossier_id = $1 ORDER BY created_at DESC, id DESC`,
		dossierID)
	if err != nil {
		return nil, fmt.Errorf("list diagnostics: %w", err)
	}
	defer rows.Close()

	var result []diagnostic.Record
	for rows.Next() {
		var (
			rec        diagnostic.Record
			inputJSON  []byte
			resultJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.DossierID, &rec.BrokerID, &inputJSON, &resultJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
			return nil, fmt.Errorf("decode diagnostic input: %w", err)
		}
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, fmt.Errorf("decode diagnostic result: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// SelfDiagnosticStore implementation -----------------------------------------

func (s *Store) CreateSelfDiagnostic(ctx context.Context, rec diagnostic.SelfRecord) (diagnostic.SelfRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()

	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return diagnostic.SelfRecord{}, fmt.Errorf("marshal diagnostic input: %w", err)
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return diagnostic.SelfRecord{}, fmt.Errorf("marshal diagnostic result: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO self_diagnostics (id, user_id, diagnostic_type, input, result, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID, rec.Type, inputJSON, resultJSON, rec.CreatedAt)
	if err != nil {
		return diagnostic.SelfRecord{}, fmt.Errorf("insert self diagnostic: %w", err)
	}
	return rec, nil
}

func (s *Store) ListSelfDiagnostics(ctx context.Context, userID string, limit int) ([]diagnostic.SelfRecord, error) {
	query := `SELECT id, user_id, diagnostic_type, input, result, created_at FROM self_diagnostics WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list self diagnostics: %w", err)
	}
	defer rows.Close()

	var result []diagnostic.SelfRecord
	for rows.Next() {
		var (
			rec        diagnostic.SelfRecord
			inputJSON  []byte
			resultJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Type, &inputJSON, &resultJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan self diagnostic: %w", err)
		}
		if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
			return nil, fmt.Errorf("decode diagnostic input: %w", err)
		}
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, fmt.Errorf("decode diagnostic result: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
