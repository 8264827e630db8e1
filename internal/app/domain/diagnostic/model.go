package diagnostic

import (
	"time"

	"github.com/pretimmo/service_backend/internal/scoring"
)

// Self-service diagnostic types. Premium runs are gated on the caller's plan.
const (
	TypeExpress = "express"
	TypePremium = "premium"
)

// Record is a broker-side diagnostic attached to a dossier. It stores both the
// input snapshot and the computed result and is never mutated after creation:
// re-running the engine on Input must reproduce Result.
type Record struct {
	ID        string         `json:"id"`
	DossierID string         `json:"dossier_id"`
	BrokerID  string         `json:"broker_id"`
	Input     scoring.Input  `json:"input"`
	Result    scoring.Result `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}

// SelfRecord is a self-service diagnostic run by an end user.
type SelfRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"diagnostic_type"`
	Input     scoring.Input  `json:"input"`
	Result    scoring.Result `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}

// Stats aggregates a user's self-service history. Progression is the latest
// score minus the first.
type Stats struct {
	TotalCount  int `json:"totalCount"`
	AvgScore    int `json:"avgScore"`
	LatestScore int `json:"latestScore"`
	FirstScore  int `json:"firstScore"`
	Progression int `json:"progression"`
}
