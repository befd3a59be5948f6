package risk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vncsentinel/pkg/models"
)

// Entry is one remediation table row.
type Entry struct {
	Category models.ThreatCategory `yaml:"category"`
	Risk     models.RiskLevel      `yaml:"risk"`
	Action   models.Action         `yaml:"action"`
}

type remediationFile struct {
	Remediations []Entry `yaml:"remediations"`
}

// Table is the total (category, risk) → action lookup. It only
// recommends; executing an action belongs to an external collaborator.
type Table struct {
	actions map[models.ThreatCategory]map[models.RiskLevel]models.Action
}

var actionableRisks = []models.RiskLevel{models.RiskLow, models.RiskMedium, models.RiskHigh}

var knownActions = map[models.Action]struct{}{
	models.ActionNone:                  {},
	models.ActionAlertSecurityTeam:     {},
	models.ActionLimitFrameRate:        {},
	models.ActionDisableClipboard:      {},
	models.ActionDeepPacketInspection:  {},
	models.ActionForceReauthentication: {},
	models.ActionTerminateSession:      {},
}

// NewTable validates entries and checks totality: every category must
// have an action for every actionable risk level, so a lookup can never
// miss at detection time.
func NewTable(entries []Entry) (*Table, error) {
	actions := make(map[models.ThreatCategory]map[models.RiskLevel]models.Action, len(models.ThreatCategories()))

	for i, e := range entries {
		if _, ok := knownActions[e.Action]; !ok {
			return nil, fmt.Errorf("remediation %d: unknown action %q", i, e.Action)
		}
		if e.Risk.Rank() == 0 && e.Risk != models.RiskNone {
			return nil, fmt.Errorf("remediation %d: unknown risk %q", i, e.Risk)
		}
		byRisk := actions[e.Category]
		if byRisk == nil {
			byRisk = make(map[models.RiskLevel]models.Action, 4)
			actions[e.Category] = byRisk
		}
		if _, dup := byRisk[e.Risk]; dup {
			return nil, fmt.Errorf("remediation %d: duplicate entry for (%s, %s)", i, e.Category, e.Risk)
		}
		byRisk[e.Risk] = e.Action
	}

	for _, category := range models.ThreatCategories() {
		byRisk, ok := actions[category]
		if !ok {
			return nil, fmt.Errorf("remediation table has no entries for category %s", category)
		}
		for _, risk := range actionableRisks {
			if _, ok := byRisk[risk]; !ok {
				return nil, fmt.Errorf("remediation table missing entry for (%s, %s)", category, risk)
			}
		}
	}

	return &Table{actions: actions}, nil
}

// DefaultTable returns the built-in remediation grid.
func DefaultTable() *Table {
	t, err := NewTable(defaultEntries())
	if err != nil {
		// The built-in grid is covered by tests; reaching this is a bug.
		panic(err)
	}
	return t
}

// LoadTableFile reads a remediation override file. Unknown keys are
// rejected and totality is re-checked.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open remediation file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var rf remediationFile
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("parse remediation file %s: %w", path, err)
	}
	return NewTable(rf.Remediations)
}

// Recommend picks the action for the given categories at the given risk.
// With several categories the most restrictive action wins.
func (t *Table) Recommend(categories []models.ThreatCategory, risk models.RiskLevel) models.Action {
	if risk == models.RiskNone || len(categories) == 0 {
		return models.ActionNone
	}

	chosen := models.ActionNone
	for _, category := range categories {
		byRisk, ok := t.actions[category]
		if !ok {
			continue
		}
		action, ok := byRisk[risk]
		if !ok {
			continue
		}
		if action.Restrictiveness() > chosen.Restrictiveness() {
			chosen = action
		}
	}
	return chosen
}

func defaultEntries() []Entry {
	mediums := map[models.ThreatCategory]models.Action{
		models.CategoryFileTransfer:           models.ActionAlertSecurityTeam,
		models.CategoryScreenshotExfiltration: models.ActionLimitFrameRate,
		models.CategoryClipboardTheft:         models.ActionDisableClipboard,
		models.CategoryEncodedDataTransfer:    models.ActionDeepPacketInspection,
		models.CategoryCredentialReuse:        models.ActionAlertSecurityTeam,
		models.CategoryInsiderThreat:          models.ActionAlertSecurityTeam,
	}
	highs := map[models.ThreatCategory]models.Action{
		models.CategoryFileTransfer:           models.ActionTerminateSession,
		models.CategoryScreenshotExfiltration: models.ActionTerminateSession,
		models.CategoryClipboardTheft:         models.ActionTerminateSession,
		models.CategoryEncodedDataTransfer:    models.ActionDeepPacketInspection,
		models.CategoryCredentialReuse:        models.ActionForceReauthentication,
		models.CategoryInsiderThreat:          models.ActionAlertSecurityTeam,
	}

	var entries []Entry
	for _, category := range models.ThreatCategories() {
		entries = append(entries,
			Entry{Category: category, Risk: models.RiskNone, Action: models.ActionNone},
			Entry{Category: category, Risk: models.RiskLow, Action: models.ActionAlertSecurityTeam},
			Entry{Category: category, Risk: models.RiskMedium, Action: mediums[category]},
			Entry{Category: category, Risk: models.RiskHigh, Action: highs[category]},
		)
	}
	return entries
}
