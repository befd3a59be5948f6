package risk

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"vncsentinel/pkg/models"
)

func TestDefaultTableCoversEveryCategoryAndRisk(t *testing.T) {
	table := DefaultTable()
	for _, category := range models.ThreatCategories() {
		for _, risk := range actionableRisks {
			action := table.Recommend([]models.ThreatCategory{category}, risk)
			if action == models.ActionNone {
				t.Fatalf("(%s, %s) resolved to no action", category, risk)
			}
		}
	}
}

func TestDefaultTableGrid(t *testing.T) {
	table := DefaultTable()
	cases := []struct {
		category models.ThreatCategory
		risk     models.RiskLevel
		want     models.Action
	}{
		{models.CategoryFileTransfer, models.RiskHigh, models.ActionTerminateSession},
		{models.CategoryFileTransfer, models.RiskMedium, models.ActionAlertSecurityTeam},
		{models.CategoryScreenshotExfiltration, models.RiskMedium, models.ActionLimitFrameRate},
		{models.CategoryScreenshotExfiltration, models.RiskHigh, models.ActionTerminateSession},
		{models.CategoryClipboardTheft, models.RiskMedium, models.ActionDisableClipboard},
		{models.CategoryClipboardTheft, models.RiskHigh, models.ActionTerminateSession},
		{models.CategoryEncodedDataTransfer, models.RiskMedium, models.ActionDeepPacketInspection},
		{models.CategoryEncodedDataTransfer, models.RiskHigh, models.ActionDeepPacketInspection},
		{models.CategoryCredentialReuse, models.RiskHigh, models.ActionForceReauthentication},
		{models.CategoryInsiderThreat, models.RiskHigh, models.ActionAlertSecurityTeam},
		{models.CategoryInsiderThreat, models.RiskLow, models.ActionAlertSecurityTeam},
	}
	for _, tc := range cases {
		got := table.Recommend([]models.ThreatCategory{tc.category}, tc.risk)
		if got != tc.want {
			t.Fatalf("(%s, %s): expected %s, got %s", tc.category, tc.risk, tc.want, got)
		}
	}
}

func TestRecommendNoRiskOrCategoriesMeansNoAction(t *testing.T) {
	table := DefaultTable()
	if got := table.Recommend([]models.ThreatCategory{models.CategoryFileTransfer}, models.RiskNone); got != models.ActionNone {
		t.Fatalf("NONE risk must yield no action, got %s", got)
	}
	if got := table.Recommend(nil, models.RiskHigh); got != models.ActionNone {
		t.Fatalf("no categories must yield no action, got %s", got)
	}
}

func TestRecommendPicksMostRestrictiveAcrossCategories(t *testing.T) {
	table := DefaultTable()

	got := table.Recommend([]models.ThreatCategory{models.CategoryCredentialReuse, models.CategoryFileTransfer}, models.RiskHigh)
	if got != models.ActionTerminateSession {
		t.Fatalf("TerminateSession outranks ForceReauthentication, got %s", got)
	}

	got = table.Recommend([]models.ThreatCategory{models.CategoryInsiderThreat, models.CategoryEncodedDataTransfer}, models.RiskHigh)
	if got != models.ActionDeepPacketInspection {
		t.Fatalf("DeepPacketInspection outranks AlertSecurityTeam, got %s", got)
	}
}

func TestActionRestrictivenessOrdering(t *testing.T) {
	ladder := []models.Action{
		models.ActionNone,
		models.ActionAlertSecurityTeam,
		models.ActionLimitFrameRate,
		models.ActionDisableClipboard,
		models.ActionDeepPacketInspection,
		models.ActionForceReauthentication,
		models.ActionTerminateSession,
	}
	for i := 1; i < len(ladder); i++ {
		if ladder[i].Restrictiveness() <= ladder[i-1].Restrictiveness() {
			t.Fatalf("%s must be more restrictive than %s", ladder[i], ladder[i-1])
		}
	}
}

func TestNewTableRejectsIncompleteGrid(t *testing.T) {
	entries := defaultEntries()
	// Drop one (category, risk) pair.
	trimmed := entries[:0]
	for _, e := range entries {
		if e.Category == models.CategoryClipboardTheft && e.Risk == models.RiskHigh {
			continue
		}
		trimmed = append(trimmed, e)
	}
	if _, err := NewTable(trimmed); err == nil {
		t.Fatalf("expected incomplete grid to be rejected")
	}
}

func TestNewTableRejectsDuplicatesAndUnknowns(t *testing.T) {
	entries := append(defaultEntries(), Entry{
		Category: models.CategoryFileTransfer,
		Risk:     models.RiskHigh,
		Action:   models.ActionNone,
	})
	if _, err := NewTable(entries); err == nil {
		t.Fatalf("expected duplicate entry to be rejected")
	}

	bad := defaultEntries()
	bad[0].Action = "SelfDestruct"
	if _, err := NewTable(bad); err == nil {
		t.Fatalf("expected unknown action to be rejected")
	}
}

func TestLoadTableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remediations.yml")
	data, err := yaml.Marshal(remediationFile{Remediations: defaultEntries()})
	if err != nil {
		t.Fatalf("failed to marshal table: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}

	table, err := LoadTableFile(path)
	if err != nil {
		t.Fatalf("failed to load table: %v", err)
	}
	got := table.Recommend([]models.ThreatCategory{models.CategoryClipboardTheft}, models.RiskMedium)
	if got != models.ActionDisableClipboard {
		t.Fatalf("unexpected action from loaded table: %s", got)
	}
}

func TestLoadTableFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remediations.yml")
	content := `remediations:
  - category: FileTransfer
    risk: HIGH
    action: TerminateSession
    escalation: page_oncall
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}
	if _, err := LoadTableFile(path); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}
