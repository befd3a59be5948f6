package models

// Severity is the ordinal severity of a single rule hit.
type Severity string

// Rule hit severities.
const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Rank returns the ordinal position of a severity. Unknown values rank
// below LOW so malformed data never escalates risk.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// RiskLevel is the ordinal classification attached to a detection result.
type RiskLevel string

// Detection risk levels.
const (
	RiskNone   RiskLevel = "NONE"
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Rank returns the ordinal position of a risk level.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// RiskFromSeverity maps a rule severity to its equivalent risk level.
func RiskFromSeverity(s Severity) RiskLevel {
	switch s {
	case SeverityLow:
		return RiskLow
	case SeverityMedium:
		return RiskMedium
	case SeverityHigh:
		return RiskHigh
	default:
		return RiskNone
	}
}

// MaxRisk returns the higher of two risk levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ThreatCategory labels the kind of exfiltration a rule or verdict points at.
type ThreatCategory string

// Threat categories.
const (
	CategoryFileTransfer           ThreatCategory = "FileTransfer"
	CategoryScreenshotExfiltration ThreatCategory = "ScreenshotExfiltration"
	CategoryClipboardTheft         ThreatCategory = "ClipboardTheft"
	CategoryEncodedDataTransfer    ThreatCategory = "EncodedDataTransfer"
	CategoryCredentialReuse        ThreatCategory = "CredentialReuse"
	CategoryInsiderThreat          ThreatCategory = "InsiderThreat"
)

// ThreatCategories lists all known categories.
func ThreatCategories() []ThreatCategory {
	return []ThreatCategory{
		CategoryFileTransfer,
		CategoryScreenshotExfiltration,
		CategoryClipboardTheft,
		CategoryEncodedDataTransfer,
		CategoryCredentialReuse,
		CategoryInsiderThreat,
	}
}

// RuleHit is one deterministic rule match over a feature vector.
type RuleHit struct {
	RuleID   string         `json:"rule_id"`
	Category ThreatCategory `json:"category"`
	Severity Severity       `json:"severity"`
	Reason   string         `json:"reason"`
}
