package anomaly

import (
	"fmt"
	"math"
	"sort"

	"vncsentinel/pkg/models"
)

// DefaultTopK is the number of contributing features reported per verdict.
const DefaultTopK = 5

// Config controls scorer behavior.
type Config struct {
	// TopK limits the contribution breakdown; zero means DefaultTopK.
	TopK int
	// DecisionThreshold overrides the artifact-calibrated threshold when
	// positive.
	DecisionThreshold float64
}

// Scorer wraps a pre-fitted isolation forest artifact. Scoring is a pure
// function of (vector, artifact); with no artifact loaded the scorer runs
// degraded and never blocks rule-based detection.
type Scorer struct {
	artifact  *Artifact
	topK      int
	threshold float64
}

// NewScorer builds a scorer over an artifact. A nil artifact yields a
// degraded scorer.
func NewScorer(artifact *Artifact, cfg Config) *Scorer {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	threshold := cfg.DecisionThreshold
	if threshold <= 0 && artifact != nil {
		threshold = artifact.DecisionThreshold
	}
	if threshold <= 0 {
		threshold = 0.55
	}

	return &Scorer{artifact: artifact, topK: topK, threshold: threshold}
}

// Ready reports whether a model is loaded.
func (s *Scorer) Ready() bool {
	return s != nil && s.artifact != nil
}

// Threshold returns the active decision threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Score produces the anomaly verdict for one vector.
func (s *Scorer) Score(v models.FeatureVector) models.AnomalyVerdict {
	if !s.Ready() {
		return models.AnomalyVerdict{Degraded: true}
	}

	scaled, err := s.artifact.Scaler.Transform(v.Values())
	if err != nil {
		// Schema drift is caught at artifact load; treat a runtime
		// mismatch as model unavailability.
		return models.AnomalyVerdict{Degraded: true}
	}

	score := s.artifact.Forest.Score(scaled)
	return models.AnomalyVerdict{
		Score:       score,
		IsAnomalous: score >= s.threshold,
		TopFeatures: s.contributions(v, scaled, score),
	}
}

// contributions estimates each feature's signed marginal effect by
// re-scoring with that feature moved to the reference center (scaled 0)
// and taking the score delta. Deterministic and model-agnostic.
func (s *Scorer) contributions(v models.FeatureVector, scaled []float64, score float64) []models.FeatureContribution {
	names := models.FeatureNames()
	probe := make([]float64, len(scaled))
	copy(probe, scaled)

	all := make([]models.FeatureContribution, len(scaled))
	for i := range scaled {
		prev := probe[i]
		probe[i] = 0
		all[i] = models.FeatureContribution{
			Feature:      names[i],
			Contribution: score - s.artifact.Forest.Score(probe),
			Description:  describeFeature(names[i], v.Value(i)),
		}
		probe[i] = prev
	}

	sort.SliceStable(all, func(a, b int) bool {
		return math.Abs(all[a].Contribution) > math.Abs(all[b].Contribution)
	})
	if len(all) > s.topK {
		all = all[:s.topK]
	}
	return all
}

// describeFeature renders a dashboard-facing explanation of one feature
// value.
func describeFeature(name string, value float64) string {
	switch name {
	case models.FieldBytesPerMinute:
		return fmt.Sprintf("data transfer rate: %.0f bytes/min", value)
	case models.FieldTotalBytesOut:
		return fmt.Sprintf("total data out: %.1f MB", value/1024/1024)
	case models.FieldClipboardEventsRate:
		return fmt.Sprintf("clipboard events: %.1f/min", value)
	case models.FieldClipboardBytesRatio:
		return fmt.Sprintf("clipboard data ratio: %.1f%%", value*100)
	case models.FieldScreenshotFrequency:
		return fmt.Sprintf("screenshot rate: %.1f/min", value)
	case models.FieldNumFileTransferEvents:
		return fmt.Sprintf("file transfers: %.0f", value)
	case models.FieldDeviceTrustScore:
		return fmt.Sprintf("device trust: %.2f", value)
	case models.FieldUnusualTimeAccess:
		if value >= 1 {
			return "session during unusual hours"
		}
		return "session during normal hours"
	case models.FieldLowTrustDevice:
		if value >= 1 {
			return "low-trust device"
		}
		return "trusted device"
	case models.FieldWeakAuth:
		if value >= 1 {
			return "weak authentication"
		}
		return "strong authentication"
	default:
		return fmt.Sprintf("%s: %.2f", name, value)
	}
}
