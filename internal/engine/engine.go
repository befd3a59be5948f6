package engine

import (
	"fmt"
	"sync/atomic"

	"vncsentinel/internal/anomaly"
	"vncsentinel/internal/risk"
	"vncsentinel/internal/rules"
	"vncsentinel/pkg/models"
)

// Snapshot is an immutable bundle of everything one detection call reads:
// rule engines, the fitted scorer, score bands and the remediation table.
// Reload swaps whole snapshots; nothing inside one is ever mutated.
type Snapshot struct {
	Version     string
	Rules       *rules.ThresholdEngine
	Sigma       rules.Engine
	Scorer      *anomaly.Scorer
	Bands       risk.Bands
	Remediation *risk.Table
}

func (s *Snapshot) validate() error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if s.Rules == nil {
		return fmt.Errorf("snapshot has no rule engine")
	}
	if s.Scorer == nil {
		return fmt.Errorf("snapshot has no anomaly scorer")
	}
	if s.Remediation == nil {
		return fmt.Errorf("snapshot has no remediation table")
	}
	if err := s.Bands.Validate(); err != nil {
		return fmt.Errorf("invalid score bands: %w", err)
	}
	return nil
}

// Engine is the session threat detection engine: the sole public entry
// point. Detect is a pure computation over the current snapshot and is
// safe for unlimited concurrent callers.
type Engine struct {
	snap atomic.Pointer[Snapshot]
}

// New creates an engine over an initial snapshot.
func New(snap *Snapshot) (*Engine, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}
	e := &Engine{}
	e.snap.Store(snap)
	return e, nil
}

// Swap atomically replaces the snapshot. In-flight Detect calls keep
// reading the snapshot they started with.
func (e *Engine) Swap(snap *Snapshot) error {
	if err := snap.validate(); err != nil {
		return err
	}
	e.snap.Store(snap)
	return nil
}

// Snapshot returns the current snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Detect classifies one feature vector. It never fails for a well-formed
// vector: with no model loaded it degrades to rule-only detection, so a
// verdict is always produced.
func (e *Engine) Detect(v models.FeatureVector) models.DetectionResult {
	snap := e.snap.Load()

	hits := snap.Rules.Evaluate(v)
	if snap.Sigma != nil {
		hits = append(hits, snap.Sigma.Evaluate(v)...)
	}

	verdict := snap.Scorer.Score(v)
	assessment := risk.Aggregate(hits, verdict, snap.Bands)
	action := snap.Remediation.Recommend(assessment.Primary, assessment.Risk)

	categories := assessment.Categories
	if categories == nil {
		categories = []models.ThreatCategory{}
	}
	explanation := assessment.Explanation
	if explanation == nil {
		explanation = []string{}
	}

	return models.DetectionResult{
		RiskLevel:         assessment.Risk,
		ThreatCategories:  categories,
		Explanation:       explanation,
		AnomalyScore:      verdict.Score,
		RecommendedAction: action,
		RuleHits:          hits,
		Anomaly:           verdict,
	}
}

// DetectFields validates a raw feature map at the boundary and runs
// detection. Missing fields are an input error; no detection is
// attempted for an incomplete vector.
func (e *Engine) DetectFields(fields map[string]float64) (models.DetectionResult, error) {
	v, err := models.NewFeatureVector(fields)
	if err != nil {
		return models.DetectionResult{}, err
	}
	return e.Detect(v), nil
}
