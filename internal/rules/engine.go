package rules

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"vncsentinel/pkg/models"
)

// Engine produces rule hits for a feature vector.
type Engine interface {
	Evaluate(v models.FeatureVector) []models.RuleHit
}

// Condition is one field comparison inside a rule. All conditions of a
// rule must hold for the rule to fire.
type Condition struct {
	Field     string  `yaml:"field"`
	Op        string  `yaml:"op"`
	Threshold float64 `yaml:"threshold"`
}

// Descriptor is one rule of the threshold rule table. Thresholds are
// configuration data: adding a rule touches only the table.
type Descriptor struct {
	ID       string                `yaml:"id"`
	Category models.ThreatCategory `yaml:"category"`
	Severity models.Severity       `yaml:"severity"`
	Reason   string                `yaml:"reason"`
	When     []Condition           `yaml:"when"`
}

type ruleFile struct {
	Rules []Descriptor `yaml:"rules"`
}

var validOps = map[string]struct{}{
	"gt": {}, "gte": {}, "lt": {}, "lte": {}, "eq": {},
}

// ThresholdEngine evaluates a fixed rule table over feature vectors.
// It is stateless and safe for unlimited concurrent readers.
type ThresholdEngine struct {
	descriptors []Descriptor
}

// NewThresholdEngine validates a rule table and builds an engine.
// A malformed table fails here, at load time, never per call.
func NewThresholdEngine(descriptors []Descriptor) (*ThresholdEngine, error) {
	seen := make(map[string]struct{}, len(descriptors))
	categories := make(map[models.ThreatCategory]struct{}, 8)
	for _, c := range models.ThreatCategories() {
		categories[c] = struct{}{}
	}

	for i, d := range descriptors {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("rule %s: duplicate id", id)
		}
		seen[id] = struct{}{}

		if _, ok := categories[d.Category]; !ok {
			return nil, fmt.Errorf("rule %s: unknown category %q", id, d.Category)
		}
		if d.Severity.Rank() == 0 {
			return nil, fmt.Errorf("rule %s: unknown severity %q", id, d.Severity)
		}
		if len(d.When) == 0 {
			return nil, fmt.Errorf("rule %s: at least one condition is required", id)
		}
		for j, cond := range d.When {
			if _, ok := models.FeatureIndex(cond.Field); !ok {
				return nil, fmt.Errorf("rule %s condition %d: unknown field %q", id, j, cond.Field)
			}
			if _, ok := validOps[cond.Op]; !ok {
				return nil, fmt.Errorf("rule %s condition %d: unknown op %q", id, j, cond.Op)
			}
		}
	}

	return &ThresholdEngine{descriptors: descriptors}, nil
}

// LoadRuleFile reads a YAML rule table. Unknown keys are rejected.
func LoadRuleFile(path string) ([]Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var rf ruleFile
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rule file %s defines no rules", path)
	}
	return rf.Rules, nil
}

// Evaluate applies every rule in table order and returns all hits.
// Rules are independent: no short-circuiting, so simultaneous threats
// are all reported.
func (e *ThresholdEngine) Evaluate(v models.FeatureVector) []models.RuleHit {
	var hits []models.RuleHit
	for _, d := range e.descriptors {
		if !matches(d, v) {
			continue
		}
		hits = append(hits, models.RuleHit{
			RuleID:   d.ID,
			Category: d.Category,
			Severity: d.Severity,
			Reason:   buildReason(d, v),
		})
	}
	return hits
}

// Len returns the number of loaded rules.
func (e *ThresholdEngine) Len() int {
	return len(e.descriptors)
}

func matches(d Descriptor, v models.FeatureVector) bool {
	for _, cond := range d.When {
		value, ok := v.Get(cond.Field)
		if !ok {
			return false
		}
		if !compare(value, cond.Op, cond.Threshold) {
			return false
		}
	}
	return true
}

func compare(value float64, op string, threshold float64) bool {
	switch op {
	case "gt":
		return value > threshold
	case "gte":
		return value >= threshold
	case "lt":
		return value < threshold
	case "lte":
		return value <= threshold
	case "eq":
		return value == threshold
	default:
		return false
	}
}

func buildReason(d Descriptor, v models.FeatureVector) string {
	details := make([]string, 0, len(d.When))
	for _, cond := range d.When {
		value, _ := v.Get(cond.Field)
		details = append(details, fmt.Sprintf("%s=%s %s %s",
			cond.Field, formatValue(value), opSymbol(cond.Op), formatValue(cond.Threshold)))
	}
	reason := strings.TrimSpace(d.Reason)
	if reason == "" {
		reason = d.ID
	}
	return reason + " (" + strings.Join(details, ", ") + ")"
}

func opSymbol(op string) string {
	switch op {
	case "gt":
		return ">"
	case "gte":
		return ">="
	case "lt":
		return "<"
	case "lte":
		return "<="
	default:
		return "=="
	}
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
