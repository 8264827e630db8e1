package subscription

// Plan is a subscription tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
	PlanPro     Plan = "pro"
)

// Parse maps an arbitrary string to a known plan, defaulting to free.
func Parse(s string) Plan {
	switch Plan(s) {
	case PlanPro:
		return PlanPro
	case PlanPremium:
		return PlanPremium
	default:
		return PlanFree
	}
}

// HasPremium reports whether the plan includes the premium feature set.
func (p Plan) HasPremium() bool {
	return p == PlanPremium || p == PlanPro
}

// IsPro reports whether the plan is the top paid tier.
func (p Plan) IsPro() bool {
	return p == PlanPro
}
