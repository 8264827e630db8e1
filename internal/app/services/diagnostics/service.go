// Package diagnostics runs the readiness engine and manages diagnostic
// history for both broker dossiers and self-service users.
package diagnostics

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/pretimmo/service_backend/internal/apperrors"
	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/internal/app/domain/subscription"
	"github.com/pretimmo/service_backend/internal/app/storage"
	"github.com/pretimmo/service_backend/internal/scoring"
	"github.com/pretimmo/service_backend/pkg/logger"
)

// statsWindow is the number of recent runs aggregated into stats.
const statsWindow = 100

// StatsCache caches per-user stats. Implementations must treat a miss as
// (zero, false, nil).
type StatsCache interface {
	GetStats(ctx context.Context, userID string) (diagnostic.Stats, bool, error)
	SetStats(ctx context.Context, userID string, stats diagnostic.Stats) error
	Invalidate(ctx context.Context, userID string) error
}

// Service runs and persists diagnostics.
type Service struct {
	store    storage.DiagnosticStore
	self     storage.SelfDiagnosticStore
	dossiers storage.DossierStore
	cache    StatsCache
	log      *logger.Logger
}

// New constructs a diagnostics service. The cache is optional; a nil cache
// means every stats request recomputes from storage.
func New(store storage.DiagnosticStore, self storage.SelfDiagnosticStore, dossiers storage.DossierStore, cache StatsCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("diagnostics")
	}
	return &Service{store: store, self: self, dossiers: dossiers, cache: cache, log: log}
}

// RunForDossier computes a diagnostic from the submitted inputs and appends
// it to the dossier history. The result is always computed here, never taken
// from the caller, so stored records stay reproducible from their inputs.
func (s *Service) RunForDossier(ctx context.Context, brokerID, dossierID string, in scoring.Input) (diagnostic.Record, error) {
	brokerID = strings.TrimSpace(brokerID)
	if brokerID == "" {
		return diagnostic.Record{}, apperrors.Unauthenticated("missing broker identity")
	}

	d, err := s.dossiers.GetDossier(ctx, dossierID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return diagnostic.Record{}, apperrors.NotFound("dossier %s not found", dossierID)
		}
		return diagnostic.Record{}, apperrors.Upstream("get dossier", err)
	}
	if d.BrokerID != brokerID {
		return diagnostic.Record{}, apperrors.Forbidden("dossier does not belong to this broker")
	}

	result, err := scoring.Compute(in)
	if err != nil {
		return diagnostic.Record{}, err
	}

	rec, err := s.store.CreateDiagnostic(ctx, diagnostic.Record{
		DossierID: dossierID,
		BrokerID:  brokerID,
		Input:     in,
		Result:    result,
	})
	if err != nil {
		return diagnostic.Record{}, apperrors.Upstream("create diagnostic", err)
	}

	s.log.WithField("dossier_id", dossierID).
		WithField("score", result.ScoreGlobal).
		Info("diagnostic recorded")
	return rec, nil
}

// ListForDossier returns the dossier's diagnostic history, newest first,
// after the ownership check.
func (s *Service) ListForDossier(ctx context.Context, brokerID, dossierID string) ([]diagnostic.Record, error) {
	d, err := s.dossiers.GetDossier(ctx, dossierID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("dossier %s not found", dossierID)
		}
		return nil, apperrors.Upstream("get dossier", err)
	}
	if d.BrokerID != brokerID {
		return nil, apperrors.Forbidden("dossier does not belong to this broker")
	}

	recs, err := s.store.ListDiagnostics(ctx, dossierID)
	if err != nil {
		return nil, apperrors.Upstream("list diagnostics", err)
	}
	return recs, nil
}

// SaveSelf runs a self-service diagnostic for the user. Premium runs require
// a plan that includes the premium feature set.
func (s *Service) SaveSelf(ctx context.Context, userID string, plan subscription.Plan, diagType string, in scoring.Input) (diagnostic.SelfRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return diagnostic.SelfRecord{}, apperrors.Unauthenticated("missing user identity")
	}

	switch diagType {
	case "":
		diagType = diagnostic.TypeExpress
	case diagnostic.TypeExpress:
	case diagnostic.TypePremium:
		if !plan.HasPremium() {
			return diagnostic.SelfRecord{}, apperrors.Forbidden("premium diagnostic requires a premium plan")
		}
	default:
		return diagnostic.SelfRecord{}, apperrors.Validation("unknown diagnostic type %q", diagType)
	}

	result, err := scoring.Compute(in)
	if err != nil {
		return diagnostic.SelfRecord{}, err
	}

	rec, err := s.self.CreateSelfDiagnostic(ctx, diagnostic.SelfRecord{
		UserID: userID,
		Type:   diagType,
		Input:  in,
		Result: result,
	})
	if err != nil {
		return diagnostic.SelfRecord{}, apperrors.Upstream("create self diagnostic", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			// Stale stats self-heal via TTL; the write itself succeeded.
			s.log.WithError(err).WithField("user_id", userID).Warn("stats cache invalidation failed")
		}
	}

	s.log.WithField("user_id", userID).
		WithField("type", diagType).
		WithField("score", result.ScoreGlobal).
		Info("self diagnostic recorded")
	return rec, nil
}

// ListSelf returns the user's diagnostic history, newest first.
func (s *Service) ListSelf(ctx context.Context, userID string, limit int) ([]diagnostic.SelfRecord, error) {
	if limit <= 0 {
		limit = statsWindow
	}
	recs, err := s.self.ListSelfDiagnostics(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Upstream("list self diagnostics", err)
	}
	return recs, nil
}

// Stats aggregates the user's recent history. Results are cached; a cache
// read failure falls back to recomputation.
func (s *Service) Stats(ctx context.Context, userID string) (diagnostic.Stats, error) {
	if s.cache != nil {
		cached, found, err := s.cache.GetStats(ctx, userID)
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("stats cache read failed")
		} else if found {
			return cached, nil
		}
	}

	recs, err := s.self.ListSelfDiagnostics(ctx, userID, statsWindow)
	if err != nil {
		return diagnostic.Stats{}, apperrors.Upstream("list self diagnostics", err)
	}

	stats := computeStats(recs)

	if s.cache != nil {
		if err := s.cache.SetStats(ctx, userID, stats); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("stats cache write failed")
		}
	}
	return stats, nil
}

// computeStats expects records newest first.
func computeStats(recs []diagnostic.SelfRecord) diagnostic.Stats {
	if len(recs) == 0 {
		return diagnostic.Stats{}
	}

	sum := 0
	for _, r := range recs {
		sum += r.Result.ScoreGlobal
	}
	latest := recs[0].Result.ScoreGlobal
	first := recs[len(recs)-1].Result.ScoreGlobal

	return diagnostic.Stats{
		TotalCount:  len(recs),
		AvgScore:    int(math.Round(float64(sum) / float64(len(recs)))),
		LatestScore: latest,
		FirstScore:  first,
		Progression: latest - first,
	}
}
