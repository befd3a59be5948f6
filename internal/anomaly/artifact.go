package anomaly

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vncsentinel/pkg/models"
)

// Artifact is the fitted model produced by the offline training pipeline.
// The engine only loads it; it is never mutated after load.
type Artifact struct {
	Version           string           `json:"version"`
	FeatureNames      []string         `json:"feature_names"`
	Scaler            *RobustScaler    `json:"scaler"`
	Forest            *IsolationForest `json:"forest"`
	DecisionThreshold float64          `json:"decision_threshold"`
}

// LoadArtifact reads and validates a model artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse model artifact %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}
	return &a, nil
}

// Validate checks that the artifact matches the current feature schema.
// A schema mismatch is a configuration error, not a scoring-time surprise.
func (a *Artifact) Validate() error {
	if a.Forest == nil || !a.Forest.Fitted() {
		return fmt.Errorf("forest is missing or unfitted")
	}
	if a.Scaler == nil {
		return fmt.Errorf("scaler is missing")
	}

	names := models.FeatureNames()
	if len(a.FeatureNames) != len(names) {
		return fmt.Errorf("artifact has %d features, schema has %d", len(a.FeatureNames), len(names))
	}
	for i, name := range names {
		if a.FeatureNames[i] != name {
			return fmt.Errorf("feature %d is %q, schema expects %q", i, a.FeatureNames[i], name)
		}
	}

	if len(a.Scaler.Center) != len(names) || len(a.Scaler.Scale) != len(names) {
		return fmt.Errorf("scaler dimensions do not match the feature schema")
	}
	if a.DecisionThreshold <= 0 || a.DecisionThreshold >= 1 {
		return fmt.Errorf("decision threshold %f outside (0,1)", a.DecisionThreshold)
	}
	return nil
}

// Save writes the artifact as JSON, for offline tooling and tests.
func (a *Artifact) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create artifact directory: %w", err)
		}
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode model artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write model artifact: %w", err)
	}
	return nil
}
