package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vncsentinel/pkg/models"
)

// Parse converts a collector payload into a normalized SessionSnapshot.
// Feature values arriving as numeric strings or booleans are coerced;
// non-numeric values are dropped and surface later as missing fields.
func Parse(data []byte) (*models.SessionSnapshot, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode telemetry payload: %w", err)
	}

	snap := &models.SessionSnapshot{
		SessionID: getString(raw, "session_id", "session.id"),
		Features:  make(map[string]float64),
	}
	if snap.SessionID == "" {
		return nil, fmt.Errorf("telemetry payload has no session_id")
	}

	if ts := getString(raw, "observed_at", "ts", "@timestamp"); ts != "" {
		if t, ok := parseTimestamp(ts); ok {
			snap.ObservedAt = t
		}
	}

	featuresRaw, ok := getPath(raw, "features")
	if !ok {
		return nil, fmt.Errorf("telemetry payload has no features (session_id=%s)", snap.SessionID)
	}
	featureMap, ok := featuresRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("telemetry features is not an object (session_id=%s)", snap.SessionID)
	}
	for name, value := range featureMap {
		if num, ok := coerceNumber(value); ok {
			snap.Features[name] = num
		}
	}

	return snap, nil
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}

	for _, layout := range []string{
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

func coerceNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		return parsed, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func getString(root map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			switch val := v.(type) {
			case string:
				return val
			case float64:
				if val == float64(int64(val)) {
					return strconv.FormatInt(int64(val), 10)
				}
				return strconv.FormatFloat(val, 'f', -1, 64)
			}
		}
	}
	return ""
}

func getPath(root map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = root
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}
