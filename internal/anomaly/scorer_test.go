package anomaly

import (
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"

	"vncsentinel/pkg/models"
)

func baselineFields() map[string]float64 {
	fields := make(map[string]float64, models.NumFeatures)
	for _, name := range models.FeatureNames() {
		fields[name] = 0
	}
	fields[models.FieldDurationSeconds] = 1800
	fields[models.FieldTotalBytesIn] = 5e6
	fields[models.FieldTotalBytesOut] = 2e6
	fields[models.FieldAvgBytesPerSecOut] = 1100
	fields[models.FieldNumClipboardEvents] = 3
	fields[models.FieldTotalClipboardBytes] = 2048
	fields[models.FieldBytesPerMinute] = 66000
	fields[models.FieldDeviceTrustScore] = 0.9
	fields[models.FieldRatioBytesOutIn] = 0.4
	fields[models.FieldAvgFrameRate] = 6
	fields[models.FieldEntropyScore] = 4.2
	fields[models.FieldBytesOutZScore] = 0.1
	return fields
}

func vectorFromFields(t *testing.T, fields map[string]float64) models.FeatureVector {
	t.Helper()
	v, err := models.NewFeatureVector(fields)
	if err != nil {
		t.Fatalf("failed to build vector: %v", err)
	}
	return v
}

// trainedArtifact fits a small forest on jittered copies of the baseline
// session profile.
func trainedArtifact(t *testing.T, threshold float64) *Artifact {
	t.Helper()

	base := vectorFromFields(t, baselineFields()).Values()
	rng := rand.New(rand.NewSource(7))
	samples := make([][]float64, 256)
	for i := range samples {
		row := make([]float64, len(base))
		for d, v := range base {
			row[d] = v*(0.8+0.4*rng.Float64()) + 0.01*rng.Float64()
		}
		samples[i] = row
	}

	scaler, err := FitRobustScaler(samples)
	if err != nil {
		t.Fatalf("failed to fit scaler: %v", err)
	}
	scaled := make([][]float64, len(samples))
	for i, row := range samples {
		s, err := scaler.Transform(row)
		if err != nil {
			t.Fatalf("failed to transform sample: %v", err)
		}
		scaled[i] = s
	}

	forest := NewIsolationForest(100, 128)
	if err := forest.Fit(scaled, 7); err != nil {
		t.Fatalf("failed to fit forest: %v", err)
	}

	return &Artifact{
		Version:           "test",
		FeatureNames:      models.FeatureNames(),
		Scaler:            scaler,
		Forest:            forest,
		DecisionThreshold: threshold,
	}
}

func TestScorerDegradedWithoutModel(t *testing.T) {
	scorer := NewScorer(nil, Config{})
	if scorer.Ready() {
		t.Fatalf("scorer without artifact must not be ready")
	}

	verdict := scorer.Score(vectorFromFields(t, baselineFields()))
	if !verdict.Degraded {
		t.Fatalf("expected degraded verdict")
	}
	if verdict.Score != 0 || verdict.IsAnomalous || len(verdict.TopFeatures) != 0 {
		t.Fatalf("degraded verdict must be empty: %+v", verdict)
	}
}

func TestScorerSeparatesOutlierFromBaseline(t *testing.T) {
	scorer := NewScorer(trainedArtifact(t, 0.6), Config{})

	baseline := scorer.Score(vectorFromFields(t, baselineFields()))
	if baseline.Degraded {
		t.Fatalf("expected live verdict")
	}
	if baseline.Score < 0 || baseline.Score > 1 {
		t.Fatalf("score out of range: %f", baseline.Score)
	}

	exfil := baselineFields()
	exfil[models.FieldBytesPerMinute] = 5e9
	exfil[models.FieldTotalBytesOut] = 1e11
	exfil[models.FieldTotalClipboardBytes] = 5e8
	exfil[models.FieldClipboardEventsRate] = 500
	exfil[models.FieldScreenshotFrequency] = 200
	exfil[models.FieldEntropyScore] = 7.9
	exfil[models.FieldBytesOutZScore] = 9.5
	outlier := scorer.Score(vectorFromFields(t, exfil))

	if outlier.Score <= baseline.Score {
		t.Fatalf("outlier must score above baseline: outlier=%f baseline=%f", outlier.Score, baseline.Score)
	}
	if !outlier.IsAnomalous {
		t.Fatalf("outlier must cross the decision threshold, score=%f", outlier.Score)
	}
	if baseline.IsAnomalous {
		t.Fatalf("baseline must stay below the decision threshold, score=%f", baseline.Score)
	}
	if len(outlier.TopFeatures) != DefaultTopK {
		t.Fatalf("expected %d contributing features, got %d", DefaultTopK, len(outlier.TopFeatures))
	}
	for _, contrib := range outlier.TopFeatures {
		if contrib.Feature == "" || contrib.Description == "" {
			t.Fatalf("contribution must name and describe its feature: %+v", contrib)
		}
	}
}

func TestScorerIsDeterministic(t *testing.T) {
	scorer := NewScorer(trainedArtifact(t, 0.6), Config{})
	v := vectorFromFields(t, baselineFields())

	first := scorer.Score(v)
	second := scorer.Score(v)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical vectors must produce identical verdicts")
	}
}

func TestScorerTopKOverride(t *testing.T) {
	scorer := NewScorer(trainedArtifact(t, 0.6), Config{TopK: 3})
	verdict := scorer.Score(vectorFromFields(t, baselineFields()))
	if len(verdict.TopFeatures) != 3 {
		t.Fatalf("expected 3 contributing features, got %d", len(verdict.TopFeatures))
	}
}

func TestScorerThresholdOverride(t *testing.T) {
	artifact := trainedArtifact(t, 0.6)
	scorer := NewScorer(artifact, Config{DecisionThreshold: 0.9})
	if scorer.Threshold() != 0.9 {
		t.Fatalf("config threshold must override the artifact, got %f", scorer.Threshold())
	}

	scorer = NewScorer(artifact, Config{})
	if scorer.Threshold() != 0.6 {
		t.Fatalf("expected artifact threshold 0.6, got %f", scorer.Threshold())
	}
}

func TestArtifactValidateRejectsSchemaDrift(t *testing.T) {
	artifact := trainedArtifact(t, 0.6)
	artifact.FeatureNames[0] = "renamed_field"
	if err := artifact.Validate(); err == nil {
		t.Fatalf("expected schema mismatch to be rejected")
	}
}

func TestArtifactValidateRejectsBadThreshold(t *testing.T) {
	artifact := trainedArtifact(t, 0.6)
	artifact.DecisionThreshold = 1.2
	if err := artifact.Validate(); err == nil {
		t.Fatalf("expected out-of-range threshold to be rejected")
	}
}

func TestArtifactValidateRejectsUnfittedForest(t *testing.T) {
	artifact := trainedArtifact(t, 0.6)
	artifact.Forest = NewIsolationForest(10, 32)
	if err := artifact.Validate(); err == nil {
		t.Fatalf("expected unfitted forest to be rejected")
	}
}

func TestArtifactSaveLoadPreservesScores(t *testing.T) {
	artifact := trainedArtifact(t, 0.6)
	path := filepath.Join(t.TempDir(), "model.json")
	if err := artifact.Save(path); err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}

	loaded, err := LoadArtifact(path)
	if err != nil {
		t.Fatalf("failed to load artifact: %v", err)
	}

	v := vectorFromFields(t, baselineFields())
	before := NewScorer(artifact, Config{}).Score(v)
	after := NewScorer(loaded, Config{}).Score(v)
	if before.Score != after.Score {
		t.Fatalf("reloaded model must score identically: %f vs %f", before.Score, after.Score)
	}
}

func TestRobustScalerTransform(t *testing.T) {
	samples := [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}, {5, 50}}
	scaler, err := FitRobustScaler(samples)
	if err != nil {
		t.Fatalf("failed to fit scaler: %v", err)
	}

	out, err := scaler.Transform([]float64{3, 30})
	if err != nil {
		t.Fatalf("failed to transform: %v", err)
	}
	// The median maps to zero in both dimensions.
	if out[0] != 0 || out[1] != 0 {
		t.Fatalf("median must scale to zero, got %v", out)
	}

	if _, err := scaler.Transform([]float64{1}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestUnfittedForestScoresZero(t *testing.T) {
	forest := NewIsolationForest(10, 32)
	if forest.Fitted() {
		t.Fatalf("new forest must not be fitted")
	}
	if score := forest.Score(make([]float64, models.NumFeatures)); score != 0 {
		t.Fatalf("unfitted forest must score 0, got %f", score)
	}
}
