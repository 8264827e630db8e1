// Package httpapi exposes the REST API over the application services.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pretimmo/service_backend/internal/apperrors"
	app "github.com/pretimmo/service_backend/internal/app"
	"github.com/pretimmo/service_backend/internal/app/domain/client"
	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/internal/app/domain/dossier"
	"github.com/pretimmo/service_backend/internal/app/metrics"
	subsvc "github.com/pretimmo/service_backend/internal/app/services/subscriptions"
	"github.com/pretimmo/service_backend/internal/middleware"
	"github.com/pretimmo/service_backend/internal/payments"
	"github.com/pretimmo/service_backend/internal/scoring"
	"github.com/pretimmo/service_backend/pkg/logger"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20 // 1 MiB

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app     *app.Application
	webhook *payments.Webhook
	log     *logger.Logger
}

// NewHandler returns a mux exposing the REST API. The webhook verifier may
// be nil, which disables the payment webhook endpoint.
func NewHandler(application *app.Application, webhook *payments.Webhook, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, webhook: webhook, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/api/clients", h.clients)
	mux.HandleFunc("/api/clients/", h.clientResources)
	mux.HandleFunc("/api/invitations/", h.invitations)
	mux.HandleFunc("/api/dossiers", h.dossiers)
	mux.HandleFunc("/api/dossiers/", h.dossierResources)
	mux.HandleFunc("/api/diagnostics", h.selfDiagnostics)
	mux.HandleFunc("/api/diagnostics/stats", h.diagnosticStats)
	mux.HandleFunc("/api/webhooks/payment", h.paymentWebhook)
	return mux
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) clients(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Nom   string `json:"nom"`
			Email string `json:"email"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, apperrors.Validation("invalid request body: %v", err))
			return
		}
		created, err := h.app.Clients.Create(r.Context(), principal.ID, payload.Nom, payload.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		list, err := h.app.Clients.List(r.Context(), principal.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) clientResources(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	parts := pathParts(r.URL.Path, "/api/clients")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	clientID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			c, dossiers, err := h.app.Clients.GetWithDossiers(r.Context(), principal.ID, clientID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, struct {
				Client   client.Client     `json:"client"`
				Dossiers []dossier.Dossier `json:"dossiers"`
			}{c, dossiers})

		case http.MethodPut, http.MethodPatch:
			var payload struct {
				Nom   *string `json:"nom"`
				Email *string `json:"email"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, apperrors.Validation("invalid request body: %v", err))
				return
			}
			updated, err := h.app.Clients.Update(r.Context(), principal.ID, clientID, payload.Nom, payload.Email)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)

		case http.MethodDelete:
			if err := h.app.Clients.Delete(r.Context(), principal.ID, clientID); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "invite" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token, err := h.app.Clients.IssueInvite(r.Context(), principal.ID, clientID)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.RecordInvitation("issued")
		writeJSON(w, http.StatusCreated, map[string]string{"token": token})
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) invitations(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	parts := pathParts(r.URL.Path, "/api/invitations")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	linked, err := h.app.Clients.RedeemInvite(r.Context(), parts[0], principal.ID)
	if err != nil {
		metrics.RecordInvitation("rejected")
		writeError(w, err)
		return
	}
	metrics.RecordInvitation("redeemed")
	writeJSON(w, http.StatusOK, linked)
}

func (h *handler) dossiers(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		ClientID string `json:"clientId"`
		Titre    string `json:"titre"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.Validation("invalid request body: %v", err))
		return
	}
	created, err := h.app.Dossiers.Create(r.Context(), principal.ID, payload.ClientID, payload.Titre)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) dossierResources(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	parts := pathParts(r.URL.Path, "/api/dossiers")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	dossierID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			d, recs, err := h.app.Dossiers.GetWithDiagnostics(r.Context(), principal.ID, dossierID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, struct {
				Dossier     dossier.Dossier     `json:"dossier"`
				Diagnostics []diagnostic.Record `json:"diagnostics"`
			}{d, recs})

		case http.MethodPut, http.MethodPatch:
			var payload struct {
				Titre  *string `json:"titre"`
				Statut *string `json:"statut"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, apperrors.Validation("invalid request body: %v", err))
				return
			}
			updated, err := h.app.Dossiers.Update(r.Context(), principal.ID, dossierID, payload.Titre, payload.Statut)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "diagnostics" {
		switch r.Method {
		case http.MethodPost:
			var payload struct {
				Input scoring.Input `json:"input"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, apperrors.Validation("invalid request body: %v", err))
				return
			}
			rec, err := h.app.Diagnostics.RunForDossier(r.Context(), principal.ID, dossierID, payload.Input)
			if err != nil {
				writeError(w, err)
				return
			}
			metrics.RecordDiagnosticRun("dossier", rec.Result.ScoreGlobal)
			writeJSON(w, http.StatusCreated, rec)

		case http.MethodGet:
			recs, err := h.app.Diagnostics.ListForDossier(r.Context(), principal.ID, dossierID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, recs)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) selfDiagnostics(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Type  string        `json:"type"`
			Input scoring.Input `json:"input"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, apperrors.Validation("invalid request body: %v", err))
			return
		}
		rec, err := h.app.Diagnostics.SaveSelf(r.Context(), principal.ID, principal.Plan, payload.Type, payload.Input)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.RecordDiagnosticRun("self", rec.Result.ScoreGlobal)
		writeJSON(w, http.StatusCreated, rec)

	case http.MethodGet:
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, apperrors.Validation("limit must be a positive integer"))
				return
			}
			limit = parsed
		}
		recs, err := h.app.Diagnostics.ListSelf(r.Context(), principal.ID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) diagnosticStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.app.Diagnostics.Stats(r.Context(), principal.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.webhook == nil || h.app.Subscriptions == nil {
		writeError(w, apperrors.Upstream("payment webhook not configured", nil))
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		metrics.RecordWebhookEvent("", "rejected")
		writeError(w, apperrors.Validation("missing Stripe-Signature header"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, apperrors.Validation("read request body: %v", err))
		return
	}

	event, err := h.webhook.ParseEvent(body, sig)
	if err != nil {
		metrics.RecordWebhookEvent("", "rejected")
		writeError(w, apperrors.Validation("invalid webhook signature"))
		return
	}

	if event.Type != payments.EventCheckoutCompleted {
		// Acknowledge everything else so Stripe stops retrying.
		metrics.RecordWebhookEvent(event.Type, "ignored")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	sess, err := payments.DecodeCheckoutSession(event.DataRaw)
	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "rejected")
		writeError(w, apperrors.Validation("malformed checkout session"))
		return
	}

	userID, plan, err := h.app.Subscriptions.HandleCheckoutCompleted(r.Context(), subsvc.CheckoutSession{
		ID:            sess.ID,
		CustomerEmail: sess.CustomerDetails.Email,
		Metadata:      sess.Metadata,
	})
	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "failed")
		writeError(w, err)
		return
	}

	metrics.RecordWebhookEvent(event.Type, "applied")
	h.log.WithField("user_id", userID).WithField("plan", string(plan)).Info("checkout completion applied")
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// requirePrincipal extracts the authenticated caller, writing a 401 when the
// auth middleware did not run.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (middleware.Principal, bool) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, apperrors.Unauthenticated("authentication required"))
		return middleware.Principal{}, false
	}
	return principal, true
}

// pathParts splits the path remainder after prefix into segments.
func pathParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	appErr := apperrors.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{"error": appErr.PublicMessage()})
}
