package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pretimmo/service_backend/internal/app/domain/client"
	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/internal/app/storage"
	"github.com/pretimmo/service_backend/internal/scoring"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestGetClient(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, broker_id, nom, email, invite_token, invite_used, client_user_id, created_at, updated_at FROM clients WHERE id = $1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "broker_id", "nom", "email", "invite_token", "invite_used", "client_user_id", "created_at", "updated_at",
		}).AddRow("c1", "b1", "Alice Martin", "alice@example.com", "", false, "", now, now))

	c, err := store.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "b1", c.BrokerID)
	assert.Equal(t, "Alice Martin", c.Nom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetClient_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, broker_id, nom, email, invite_token, invite_used, client_user_id, created_at, updated_at FROM clients WHERE id = $1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetClient(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestUpdateClient_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE clients SET nom = $2, email = $3, invite_token = $4, invite_used = $5, client_user_id = $6, updated_at = $7 WHERE id = $1`).
		WithArgs("missing", "Nom", "", "", false, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateClient(context.Background(), client.Client{ID: "missing", Nom: "Nom"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestDeleteClient_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM clients WHERE id = $1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteClient(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestCreateDiagnostic_MarshalsJSON(t *testing.T) {
	store, mock := newMockStore(t)

	input := scoring.Input{Revenus: 3000, Montant: 200000, Apport: 20000, Duree: 240, TauxInteret: 3.5}
	result := scoring.Result{ScoreGlobal: 72, HcsfOk: true}

	inputJSON, err := json.Marshal(input)
	require.NoError(t, err)
	resultJSON, err := json.Marshal(result)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO diagnostics (id, dossier_id, broker_id, input, result, created_at) VALUES ($1, $2, $3, $4, $5, $6)`).
		WithArgs(sqlmock.AnyArg(), "d1", "b1", inputJSON, resultJSON, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec, err := store.CreateDiagnostic(context.Background(), diagnostic.Record{
		DossierID: "d1",
		BrokerID:  "b1",
		Input:     input,
		Result:    result,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDiagnostics_DecodesJSON(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	input := scoring.Input{Revenus: 3000, Montant: 200000, Duree: 240, TauxInteret: 3.5}
	result := scoring.Result{ScoreGlobal: 64}
	inputJSON, _ := json.Marshal(input)
	resultJSON, _ := json.Marshal(result)

	mock.ExpectQuery(`SELECT id, dossier_id, broker_id, input, result, created_at FROM diagnostics WHERE dossier_id = $1 ORDER BY created_at DESC, id DESC`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "dossier_id", "broker_id", "input", "result", "created_at"}).
			AddRow("diag1", "d1", "b1", inputJSON, resultJSON, now))

	recs, err := store.ListDiagnostics(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 64, recs[0].Result.ScoreGlobal)
	assert.Equal(t, float64(200000), recs[0].Input.Montant)
}

func TestListSelfDiagnostics_Limit(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	inputJSON, _ := json.Marshal(scoring.Input{Revenus: 2500, Montant: 150000, Duree: 300})
	resultJSON, _ := json.Marshal(scoring.Result{ScoreGlobal: 55})

	mock.ExpectQuery(`SELECT id, user_id, diagnostic_type, input, result, created_at FROM self_diagnostics WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`).
		WithArgs("u1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "diagnostic_type", "input", "result", "created_at"}).
			AddRow("sd1", "u1", diagnostic.TypeExpress, inputJSON, resultJSON, now))

	recs, err := store.ListSelfDiagnostics(context.Background(), "u1", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, diagnostic.TypeExpress, recs[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}
