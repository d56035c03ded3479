package models

const (
	PlanTypeFree    = "free"
	PlanTypePremium = "premium"
)

// Feature flag keys stored on a user entitlement.
const (
	FeatureFullAccess     = "full_access"
	FeatureGamesPerPillar = "games_per_pillar"
)

// PlanConfig represents a subscription plan configuration
type PlanConfig struct {
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Features JSONB   `json:"features"`
}

// PlanTable is an immutable lookup of plan configurations keyed by plan
// type. It is built once at startup and injected into the services that
// need it; nothing mutates it afterwards.
type PlanTable map[string]PlanConfig

// DefaultPlanTable returns the built-in plan catalogue.
func DefaultPlanTable() PlanTable {
	return PlanTable{
		PlanTypeFree: {
			Type:     PlanTypeFree,
			Name:     "Free Plan",
			Amount:   0,
			Currency: "INR",
			Features: JSONB{
				FeatureFullAccess:     false,
				FeatureGamesPerPillar: 3,
			},
		},
		PlanTypePremium: {
			Type:     PlanTypePremium,
			Name:     "Premium Plan",
			Amount:   4999.0,
			Currency: "INR",
			Features: JSONB{
				FeatureFullAccess:     true,
				FeatureGamesPerPillar: -1, // unlimited
			},
		},
	}
}

// Get returns the configuration for a plan type.
func (t PlanTable) Get(planType string) (PlanConfig, bool) {
	cfg, ok := t[planType]
	return cfg, ok
}

// FeaturesFor returns a copy of the feature flags for a plan type so
// callers can overlay without touching the table.
func (t PlanTable) FeaturesFor(planType string) JSONB {
	cfg, ok := t[planType]
	if !ok {
		return JSONB{}
	}
	features := make(JSONB, len(cfg.Features))
	for k, v := range cfg.Features {
		features[k] = v
	}
	return features
}
