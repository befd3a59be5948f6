package risk

import (
	"reflect"
	"testing"

	"vncsentinel/pkg/models"
)

func TestDefaultBandsValid(t *testing.T) {
	if err := DefaultBands().Validate(); err != nil {
		t.Fatalf("default bands must validate: %v", err)
	}
}

func TestBandsValidateRejectsBadRanges(t *testing.T) {
	cases := []Bands{
		{Medium: 0, High: 0.75},
		{Medium: 0.55, High: 0.4},
		{Medium: 0.55, High: 0.55},
		{Medium: 0.55, High: 1.0},
		{Medium: 1.1, High: 1.2},
	}
	for _, b := range cases {
		if err := b.Validate(); err == nil {
			t.Fatalf("expected bands %+v to be rejected", b)
		}
	}
}

func TestRiskForBandsScores(t *testing.T) {
	bands := DefaultBands()
	cases := []struct {
		score float64
		want  models.RiskLevel
	}{
		{0.0, models.RiskNone},
		{0.54, models.RiskNone},
		{0.55, models.RiskMedium},
		{0.74, models.RiskMedium},
		{0.75, models.RiskHigh},
		{0.99, models.RiskHigh},
	}
	for _, tc := range cases {
		if got := bands.RiskFor(tc.score); got != tc.want {
			t.Fatalf("score %f: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestAggregateRuleOnly(t *testing.T) {
	hits := []models.RuleHit{
		{RuleID: "r1", Category: models.CategoryFileTransfer, Severity: models.SeverityHigh, Reason: "bulk transfer"},
		{RuleID: "r2", Category: models.CategoryClipboardTheft, Severity: models.SeverityMedium, Reason: "clipboard spike"},
	}
	verdict := models.AnomalyVerdict{Score: 0.2}

	got := Aggregate(hits, verdict, DefaultBands())
	if got.Risk != models.RiskHigh {
		t.Fatalf("expected HIGH, got %s", got.Risk)
	}
	wantCategories := []models.ThreatCategory{models.CategoryFileTransfer, models.CategoryClipboardTheft}
	if !reflect.DeepEqual(got.Categories, wantCategories) {
		t.Fatalf("unexpected categories: %v", got.Categories)
	}
	// Only the categories behind the top severity drive remediation.
	if !reflect.DeepEqual(got.Primary, []models.ThreatCategory{models.CategoryFileTransfer}) {
		t.Fatalf("unexpected primary categories: %v", got.Primary)
	}
	if !reflect.DeepEqual(got.Explanation, []string{"bulk transfer", "clipboard spike"}) {
		t.Fatalf("unexpected explanation: %v", got.Explanation)
	}
}

func TestAggregateAnomalyOnlyAttributesInsiderThreat(t *testing.T) {
	verdict := models.AnomalyVerdict{
		Score:       0.8,
		IsAnomalous: true,
		TopFeatures: []models.FeatureContribution{
			{Feature: "bytes_per_minute", Contribution: 0.2, Description: "data transfer rate: 900 bytes/min"},
			{Feature: "entropy_score", Contribution: -0.1, Description: "entropy_score: 7.90"},
		},
	}

	got := Aggregate(nil, verdict, DefaultBands())
	if got.Risk != models.RiskHigh {
		t.Fatalf("expected HIGH from banded score, got %s", got.Risk)
	}
	if !reflect.DeepEqual(got.Categories, []models.ThreatCategory{models.CategoryInsiderThreat}) {
		t.Fatalf("anomaly-only finding must be attributed to InsiderThreat: %v", got.Categories)
	}
	want := []string{
		"anomaly: data transfer rate: 900 bytes/min",
		"anomaly: entropy_score: 7.90",
	}
	if !reflect.DeepEqual(got.Explanation, want) {
		t.Fatalf("unexpected explanation: %v", got.Explanation)
	}
}

func TestAggregateTakesMaxOfBothSources(t *testing.T) {
	hits := []models.RuleHit{
		{RuleID: "r1", Category: models.CategoryClipboardTheft, Severity: models.SeverityMedium, Reason: "clipboard spike"},
	}
	verdict := models.AnomalyVerdict{Score: 0.8, IsAnomalous: true}

	got := Aggregate(hits, verdict, DefaultBands())
	if got.Risk != models.RiskHigh {
		t.Fatalf("anomaly HIGH must win over rule MEDIUM, got %s", got.Risk)
	}

	// Reversed: HIGH rule against quiet anomaly.
	hits[0].Severity = models.SeverityHigh
	got = Aggregate(hits, models.AnomalyVerdict{Score: 0.1}, DefaultBands())
	if got.Risk != models.RiskHigh {
		t.Fatalf("rule HIGH must win over quiet anomaly, got %s", got.Risk)
	}
}

func TestAggregateQuietVerdictAddsNoAnomalyEvidence(t *testing.T) {
	verdict := models.AnomalyVerdict{
		Score:       0.3,
		IsAnomalous: false,
		TopFeatures: []models.FeatureContribution{
			{Feature: "bytes_per_minute", Description: "data transfer rate: 100 bytes/min"},
		},
	}
	hits := []models.RuleHit{
		{RuleID: "r1", Category: models.CategoryFileTransfer, Severity: models.SeverityMedium, Reason: "bulk transfer"},
	}

	got := Aggregate(hits, verdict, DefaultBands())
	if !reflect.DeepEqual(got.Explanation, []string{"bulk transfer"}) {
		t.Fatalf("quiet verdict must not add anomaly lines: %v", got.Explanation)
	}
}

func TestAggregateDeduplicatesExactReasons(t *testing.T) {
	hits := []models.RuleHit{
		{RuleID: "r1", Category: models.CategoryFileTransfer, Severity: models.SeverityMedium, Reason: "same reason"},
		{RuleID: "r2", Category: models.CategoryFileTransfer, Severity: models.SeverityMedium, Reason: "same reason"},
	}

	got := Aggregate(hits, models.AnomalyVerdict{}, DefaultBands())
	if !reflect.DeepEqual(got.Explanation, []string{"same reason"}) {
		t.Fatalf("duplicate reasons must collapse: %v", got.Explanation)
	}
}

func TestAggregateBenignIsEmpty(t *testing.T) {
	got := Aggregate(nil, models.AnomalyVerdict{Score: 0.1}, DefaultBands())
	if got.Risk != models.RiskNone {
		t.Fatalf("expected NONE, got %s", got.Risk)
	}
	if len(got.Categories) != 0 || len(got.Primary) != 0 || len(got.Explanation) != 0 {
		t.Fatalf("benign assessment must be empty: %+v", got)
	}
}
