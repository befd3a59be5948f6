package risk

import (
	"fmt"

	"vncsentinel/pkg/models"
)

// Bands maps the continuous anomaly score to a risk contribution:
// below Medium contributes nothing, [Medium, High) contributes MEDIUM,
// and High and above contributes HIGH.
type Bands struct {
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// DefaultBands returns the offline-calibrated score bands.
func DefaultBands() Bands {
	return Bands{Medium: 0.55, High: 0.75}
}

// Validate rejects inverted or out-of-range bands at load time.
func (b Bands) Validate() error {
	if b.Medium <= 0 || b.Medium >= 1 {
		return fmt.Errorf("medium band %f outside (0,1)", b.Medium)
	}
	if b.High <= b.Medium || b.High >= 1 {
		return fmt.Errorf("high band %f must be in (%f,1)", b.High, b.Medium)
	}
	return nil
}

// RiskFor maps an anomaly score to its banded risk level.
func (b Bands) RiskFor(score float64) models.RiskLevel {
	switch {
	case score >= b.High:
		return models.RiskHigh
	case score >= b.Medium:
		return models.RiskMedium
	default:
		return models.RiskNone
	}
}

// Assessment combines rule and anomaly evidence into one risk level,
// the implicated categories, and an ordered explanation.
type Assessment struct {
	Risk        models.RiskLevel
	Categories  []models.ThreatCategory
	Primary     []models.ThreatCategory
	Explanation []string
}

// Aggregate folds rule hits and the anomaly verdict together. The final
// risk is the maximum of both sources: when they disagree the higher one
// wins, so combined evidence is never under-reported. Explanations list
// rule reasons first, in rule-table order, then anomaly evidence, with
// exact duplicate strings removed. The dashboard depends on that order.
func Aggregate(hits []models.RuleHit, verdict models.AnomalyVerdict, bands Bands) Assessment {
	ruleRisk := models.RiskNone
	maxSeverity := models.Severity("")
	for _, hit := range hits {
		if hit.Severity.Rank() > maxSeverity.Rank() {
			maxSeverity = hit.Severity
		}
	}
	if maxSeverity.Rank() > 0 {
		ruleRisk = models.RiskFromSeverity(maxSeverity)
	}

	anomalyRisk := bands.RiskFor(verdict.Score)
	risk := models.MaxRisk(ruleRisk, anomalyRisk)

	categories := uniqueCategories(hits)
	primary := primaryCategories(hits, maxSeverity)

	// Anomaly-only findings have no rule category to borrow: they are
	// attributed to InsiderThreat.
	if len(hits) == 0 && (verdict.IsAnomalous || anomalyRisk.Rank() > 0) {
		categories = append(categories, models.CategoryInsiderThreat)
		primary = append(primary, models.CategoryInsiderThreat)
	}

	explanation := make([]string, 0, len(hits)+len(verdict.TopFeatures))
	seen := make(map[string]struct{}, len(hits)+len(verdict.TopFeatures))
	appendReason := func(reason string) {
		if _, dup := seen[reason]; dup {
			return
		}
		seen[reason] = struct{}{}
		explanation = append(explanation, reason)
	}
	for _, hit := range hits {
		appendReason(hit.Reason)
	}
	if verdict.IsAnomalous {
		for _, contrib := range verdict.TopFeatures {
			reason := contrib.Description
			if reason == "" {
				reason = contrib.Feature
			}
			appendReason("anomaly: " + reason)
		}
	}

	return Assessment{
		Risk:        risk,
		Categories:  categories,
		Primary:     primary,
		Explanation: explanation,
	}
}

func uniqueCategories(hits []models.RuleHit) []models.ThreatCategory {
	var out []models.ThreatCategory
	seen := make(map[models.ThreatCategory]struct{}, len(hits))
	for _, hit := range hits {
		if _, dup := seen[hit.Category]; dup {
			continue
		}
		seen[hit.Category] = struct{}{}
		out = append(out, hit.Category)
	}
	return out
}

// primaryCategories keeps only the categories backing the highest
// severity observed, preserving hit order.
func primaryCategories(hits []models.RuleHit, maxSeverity models.Severity) []models.ThreatCategory {
	if maxSeverity.Rank() == 0 {
		return nil
	}
	var top []models.RuleHit
	for _, hit := range hits {
		if hit.Severity == maxSeverity {
			top = append(top, hit)
		}
	}
	return uniqueCategories(top)
}
