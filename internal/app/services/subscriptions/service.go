// Package subscriptions resolves completed checkout sessions to a user and a
// plan, then persists the plan with the identity provider.
package subscriptions

import (
	"context"
	"strings"

	"github.com/pretimmo/service_backend/internal/apperrors"
	"github.com/pretimmo/service_backend/internal/app/domain/subscription"
	"github.com/pretimmo/service_backend/pkg/logger"
)

// Directory resolves and updates users at the identity provider.
type Directory interface {
	LookupUserIDByEmail(ctx context.Context, email string) (string, error)
	SetUserPlan(ctx context.Context, userID string, plan subscription.Plan) error
}

// CheckoutExpander retrieves the first line-item price of a checkout session.
// It is only consulted when the session metadata does not name a plan.
type CheckoutExpander interface {
	FirstPriceID(ctx context.Context, sessionID string) (string, error)
}

// CheckoutSession is the part of a completed checkout session the resolver
// inspects.
type CheckoutSession struct {
	ID            string
	CustomerEmail string
	Metadata      map[string]string
}

// Service applies checkout completions.
type Service struct {
	directory  Directory
	expander   CheckoutExpander
	priceIDPro string
	log        *logger.Logger
}

// New constructs the resolver. The expander may be nil when no pro price ID
// is configured.
func New(directory Directory, expander CheckoutExpander, priceIDPro string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("subscriptions")
	}
	return &Service{directory: directory, expander: expander, priceIDPro: priceIDPro, log: log}
}

// HandleCheckoutCompleted resolves the purchased plan and the buying user,
// then stores the plan. Plan precedence: session metadata, then the pro price
// ID match, then premium. User precedence: session metadata, then email
// lookup. The operation is idempotent; replaying a session re-applies the
// same plan.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, sess CheckoutSession) (string, subscription.Plan, error) {
	plan, err := s.resolvePlan(ctx, sess)
	if err != nil {
		return "", "", err
	}

	userID, err := s.resolveUser(ctx, sess)
	if err != nil {
		return "", "", err
	}

	if err := s.directory.SetUserPlan(ctx, userID, plan); err != nil {
		return "", "", apperrors.Upstream("store user plan", err)
	}

	s.log.WithField("user_id", userID).
		WithField("plan", string(plan)).
		WithField("session_id", sess.ID).
		Info("subscription plan activated")
	return userID, plan, nil
}

func (s *Service) resolvePlan(ctx context.Context, sess CheckoutSession) (subscription.Plan, error) {
	switch sess.Metadata["plan"] {
	case string(subscription.PlanPro):
		return subscription.PlanPro, nil
	case string(subscription.PlanPremium):
		return subscription.PlanPremium, nil
	}

	if s.priceIDPro != "" && s.expander != nil {
		priceID, err := s.expander.FirstPriceID(ctx, sess.ID)
		if err != nil {
			return "", apperrors.Upstream("expand checkout session", err)
		}
		if priceID == s.priceIDPro {
			return subscription.PlanPro, nil
		}
	}
	return subscription.PlanPremium, nil
}

func (s *Service) resolveUser(ctx context.Context, sess CheckoutSession) (string, error) {
	if userID := strings.TrimSpace(sess.Metadata["userId"]); userID != "" {
		return userID, nil
	}

	email := strings.TrimSpace(sess.CustomerEmail)
	if email == "" {
		return "", apperrors.Validation("checkout session carries neither a user ID nor an email")
	}

	userID, err := s.directory.LookupUserIDByEmail(ctx, email)
	if err != nil {
		return "", apperrors.Upstream("lookup user by email", err)
	}
	if userID == "" {
		return "", apperrors.NotFound("no user matches the checkout email")
	}
	return userID, nil
}
