package models

// FeatureContribution is the signed marginal effect of one feature's
// deviation from the reference population on the anomaly score.
type FeatureContribution struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	Description  string  `json:"description,omitempty"`
}

// AnomalyVerdict is the output of the anomaly scorer for one vector.
// A degraded verdict (no model loaded) carries score 0 and no contributions.
type AnomalyVerdict struct {
	Score       float64               `json:"score"`
	IsAnomalous bool                  `json:"is_anomalous"`
	TopFeatures []FeatureContribution `json:"top_features,omitempty"`
	Degraded    bool                  `json:"degraded,omitempty"`
}
