package rules

import (
	"os"
	"path/filepath"
	"testing"

	"vncsentinel/pkg/models"
)

const simpleSigmaRule = `title: Weak auth session
id: vnc-weak-auth
status: experimental
level: high
logsource:
  product: vnc
tags:
  - vnc.credential_reuse
detection:
  selection:
    weak_auth: 1
  condition: selection
`

func TestNewSigmaEngineLoadsSimpleRule(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "weak_auth.yml"), []byte(simpleSigmaRule), 0644); err != nil {
		t.Fatalf("failed to write rule: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("failed to write note: %v", err)
	}

	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("failed to load sigma rules: %v", err)
	}
	if stats.TotalFiles != 1 || stats.Loaded != 1 {
		t.Fatalf("unexpected load stats: %+v", stats)
	}
	if engine == nil || len(engine.rules) != 1 {
		t.Fatalf("expected 1 compiled rule")
	}

	hit := engine.rules[0].hit
	if hit.RuleID != "vnc-weak-auth" {
		t.Fatalf("unexpected rule id: %s", hit.RuleID)
	}
	if hit.Severity != models.SeverityHigh {
		t.Fatalf("level high must map to HIGH, got %s", hit.Severity)
	}
	if hit.Category != models.CategoryCredentialReuse {
		t.Fatalf("unexpected category: %s", hit.Category)
	}
	if hit.Reason != "Weak auth session" {
		t.Fatalf("unexpected reason: %s", hit.Reason)
	}
}

func TestNewSigmaEngineSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("{{not yaml"), 0644); err != nil {
		t.Fatalf("failed to write rule: %v", err)
	}

	_, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("invalid files are skipped, not fatal: %v", err)
	}
	if stats.SkippedInvalid != 1 || stats.Loaded != 0 {
		t.Fatalf("unexpected load stats: %+v", stats)
	}
}

func TestSeverityFromSigmaLevel(t *testing.T) {
	cases := map[string]models.Severity{
		"informational": models.SeverityLow,
		"low":           models.SeverityLow,
		"medium":        models.SeverityMedium,
		"high":          models.SeverityHigh,
		"critical":      models.SeverityHigh,
		"":              models.SeverityMedium,
		"weird":         models.SeverityMedium,
	}
	for level, want := range cases {
		if got := severityFromSigmaLevel(level); got != want {
			t.Fatalf("level %q: expected %s, got %s", level, want, got)
		}
	}
}

func TestCategoryFromSigmaTags(t *testing.T) {
	cases := []struct {
		tags []string
		want models.ThreatCategory
	}{
		{[]string{"attack.t1041", "vnc.file_transfer"}, models.CategoryFileTransfer},
		{[]string{"vnc.screenshot_exfiltration"}, models.CategoryScreenshotExfiltration},
		{[]string{"vnc.clipboard_theft"}, models.CategoryClipboardTheft},
		{[]string{"vnc.encoded_data_transfer"}, models.CategoryEncodedDataTransfer},
		{[]string{"vnc.credential_reuse"}, models.CategoryCredentialReuse},
		{[]string{"vnc.insider_threat"}, models.CategoryInsiderThreat},
		{[]string{"attack.exfiltration"}, models.CategoryInsiderThreat},
		{nil, models.CategoryInsiderThreat},
	}
	for _, tc := range cases {
		if got := categoryFromSigmaTags(tc.tags); got != tc.want {
			t.Fatalf("tags %v: expected %s, got %s", tc.tags, tc.want, got)
		}
	}
}

func TestSigmaEvaluateOnEmptyEngine(t *testing.T) {
	var engine *SigmaEngine
	if hits := engine.Evaluate(benignVector(t, nil)); hits != nil {
		t.Fatalf("nil engine must produce no hits")
	}
}
