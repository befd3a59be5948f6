package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"vncsentinel/pkg/models"
)

// SigmaLoadStats tracks the number of loaded and skipped Sigma rules.
type SigmaLoadStats struct {
	TotalFiles     int
	Loaded         int
	SkippedComplex int
	SkippedInvalid int
}

type compiledSigmaRule struct {
	rule sigma.Rule
	eval *sigmaevaluator.RuleEvaluator
	hit  models.RuleHit
}

// SigmaEngine evaluates operator-authored Sigma rules against the
// flattened feature map of a session vector. It complements the built-in
// threshold table; both sources feed the same aggregator.
type SigmaEngine struct {
	rules []compiledSigmaRule
	ctx   context.Context
}

// NewSigmaEngine loads Sigma rules from a file or directory and compiles
// evaluators. Unsupported or complex rules are skipped and counted.
func NewSigmaEngine(path string) (*SigmaEngine, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve sigma rule path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat sigma rule path: %w", err)
	}

	files := make([]string, 0, 64)
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			if isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk sigma rule directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("sigma rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	compiled := make([]compiledSigmaRule, 0, len(files))
	for _, ruleFile := range files {
		raw, err := os.ReadFile(ruleFile)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		rule, err := sigma.ParseRule(raw)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}

		if ok, _ := isSimpleSingleEventRule(rule); !ok {
			stats.SkippedComplex++
			continue
		}

		compiled = append(compiled, compiledSigmaRule{
			rule: rule,
			eval: sigmaevaluator.ForRule(rule),
			hit:  hitFromSigmaRule(rule),
		})
		stats.Loaded++
	}

	return &SigmaEngine{rules: compiled, ctx: context.Background()}, stats, nil
}

// Evaluate matches all loaded Sigma rules against the feature map and
// returns hits for matched rules.
func (e *SigmaEngine) Evaluate(v models.FeatureVector) []models.RuleHit {
	if e == nil || len(e.rules) == 0 {
		return nil
	}

	eventMap := sigmaEventFromVector(v)
	var hits []models.RuleHit
	for _, rule := range e.rules {
		res, err := rule.eval.Matches(e.ctx, eventMap)
		if err != nil {
			continue
		}
		if res.Match {
			hits = append(hits, rule.hit)
		}
	}
	return hits
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

func isSimpleSingleEventRule(rule sigma.Rule) (bool, string) {
	if rule.Detection.Timeframe > 0 {
		return false, "timeframe is not supported"
	}

	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return false, "aggregation condition is not supported"
		}
		if !isSimpleSearchExpression(cond.Search) {
			return false, "complex condition expression is not supported"
		}
	}

	for _, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return false, "keyword search is not supported"
		}
		if len(search.EventMatchers) == 0 {
			return false, "search has no event matchers"
		}
	}

	return true, ""
}

func isSimpleSearchExpression(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.And:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Or:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Not:
		return isSimpleSearchExpression(e.Expr)
	default:
		return false
	}
}

func sigmaEventFromVector(v models.FeatureVector) map[string]interface{} {
	fields := v.Fields()
	buf := make(map[string]interface{}, len(fields))
	for k, val := range fields {
		buf[k] = val
	}
	return buf
}

func hitFromSigmaRule(rule sigma.Rule) models.RuleHit {
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		id = strings.TrimSpace(rule.Title)
	}

	reason := strings.TrimSpace(rule.Title)
	if reason == "" {
		reason = id
	}

	return models.RuleHit{
		RuleID:   id,
		Category: categoryFromSigmaTags(rule.Tags),
		Severity: severityFromSigmaLevel(rule.Level),
		Reason:   reason,
	}
}

// severityFromSigmaLevel folds the five Sigma levels onto the three rule
// severities. Unknown levels default to MEDIUM.
func severityFromSigmaLevel(level string) models.Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "informational", "low":
		return models.SeverityLow
	case "high", "critical":
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

// categoryFromSigmaTags reads a vnc.<category> tag. Untagged rules land in
// InsiderThreat, the catch-all for behavioral findings.
func categoryFromSigmaTags(tags []string) models.ThreatCategory {
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if !strings.HasPrefix(tag, "vnc.") {
			continue
		}
		switch strings.TrimPrefix(tag, "vnc.") {
		case "file_transfer":
			return models.CategoryFileTransfer
		case "screenshot_exfiltration":
			return models.CategoryScreenshotExfiltration
		case "clipboard_theft":
			return models.CategoryClipboardTheft
		case "encoded_data_transfer":
			return models.CategoryEncodedDataTransfer
		case "credential_reuse":
			return models.CategoryCredentialReuse
		case "insider_threat":
			return models.CategoryInsiderThreat
		}
	}
	return models.CategoryInsiderThreat
}
