package models

import "time"

// Action is a recommended automated remediation. Executing it is the
// responsibility of an external collaborator.
type Action string

// Remediation actions, mildest first.
const (
	ActionNone                  Action = "None"
	ActionAlertSecurityTeam     Action = "AlertSecurityTeam"
	ActionLimitFrameRate        Action = "LimitFrameRate"
	ActionDisableClipboard      Action = "DisableClipboard"
	ActionDeepPacketInspection  Action = "DeepPacketInspection"
	ActionForceReauthentication Action = "ForceReauthentication"
	ActionTerminateSession      Action = "TerminateSession"
)

// Restrictiveness orders actions for tie-breaking: session-terminating
// beats rate-limiting beats alerting-only.
func (a Action) Restrictiveness() int {
	switch a {
	case ActionTerminateSession:
		return 6
	case ActionForceReauthentication:
		return 5
	case ActionDeepPacketInspection:
		return 4
	case ActionDisableClipboard:
		return 3
	case ActionLimitFrameRate:
		return 2
	case ActionAlertSecurityTeam:
		return 1
	default:
		return 0
	}
}

// DetectionResult is the engine's only output: risk classification,
// ordered explanation and a recommended action for one feature vector.
// It is immutable once constructed and deterministic for an identical
// vector and snapshot.
type DetectionResult struct {
	RiskLevel         RiskLevel        `json:"risk_level"`
	ThreatCategories  []ThreatCategory `json:"threat_categories"`
	Explanation       []string         `json:"explanation"`
	AnomalyScore      float64          `json:"anomaly_score"`
	RecommendedAction Action           `json:"recommended_action"`
	RuleHits          []RuleHit        `json:"rule_hits,omitempty"`
	Anomaly           AnomalyVerdict   `json:"anomaly"`
}

// DetectionRecord is the pipeline envelope around a detection result.
// Identity and timestamps live here so the result itself stays
// deterministic.
type DetectionRecord struct {
	RecordID   string          `json:"record_id"`
	SessionID  string          `json:"session_id"`
	ObservedAt time.Time       `json:"observed_at"`
	Result     DetectionResult `json:"result"`
}
