package models

import "time"

// SessionSnapshot is one observation window of session telemetry as
// supplied by the collector: a session identity plus the raw feature map.
type SessionSnapshot struct {
	SessionID  string             `json:"session_id"`
	ObservedAt time.Time          `json:"observed_at"`
	Features   map[string]float64 `json:"features"`
}
