package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Feature field names. The schema is fixed and versioned: scoring artifacts
// and rule tables both reference fields by these names.
const (
	FieldDurationSeconds       = "duration_seconds"
	FieldTotalBytesIn          = "total_bytes_in"
	FieldTotalBytesOut         = "total_bytes_out"
	FieldAvgBytesPerSecOut     = "avg_bytes_per_sec_out"
	FieldNumClipboardEvents    = "num_clipboard_events"
	FieldTotalClipboardBytes   = "total_clipboard_bytes"
	FieldNumScreenshotEvents   = "num_screenshot_events"
	FieldNumFileTransferEvents = "num_file_transfer_events"
	FieldTotalFilesSizeBytes   = "total_files_size_bytes"
	FieldAvgFrameRate          = "avg_frame_rate"
	FieldProcessesSpawned      = "processes_spawned_count"
	FieldDeviceTrustScore      = "device_trust_score"
	FieldRatioBytesOutIn       = "ratio_bytes_out_in"
	FieldBytesPerMinute        = "bytes_per_minute"
	FieldClipboardBytesRatio   = "clipboard_bytes_ratio"
	FieldClipboardEventsRate   = "clipboard_events_rate"
	FieldScreenshotFrequency   = "screenshot_frequency"
	FieldFileTransferRate      = "file_transfer_rate"
	FieldAvgFileSize           = "avg_file_size"
	FieldUnusualTimeAccess     = "unusual_time_access"
	FieldWeekendFlag           = "weekend_flag"
	FieldLowTrustDevice        = "low_trust_device"
	FieldWeakAuth              = "weak_auth"
	FieldUnencrypted           = "unencrypted"
	FieldHighFrameRate         = "high_frame_rate"
	FieldEntropyScore          = "entropy_score"
	FieldBytesOutZScore        = "bytes_out_zscore"
)

// NumFeatures is the size of the fixed feature schema.
const NumFeatures = 27

// fieldSpec documents one feature field and its plausible value range.
// Out-of-range inputs are clamped to keep scoring defined.
type fieldSpec struct {
	Name string
	Min  float64
	Max  float64
}

var fieldSpecs = [NumFeatures]fieldSpec{
	{FieldDurationSeconds, 0, 604800},
	{FieldTotalBytesIn, 0, 1e12},
	{FieldTotalBytesOut, 0, 1e12},
	{FieldAvgBytesPerSecOut, 0, 1e9},
	{FieldNumClipboardEvents, 0, 1e5},
	{FieldTotalClipboardBytes, 0, 1e10},
	{FieldNumScreenshotEvents, 0, 1e5},
	{FieldNumFileTransferEvents, 0, 1e5},
	{FieldTotalFilesSizeBytes, 0, 1e12},
	{FieldAvgFrameRate, 0, 120},
	{FieldProcessesSpawned, 0, 1e4},
	{FieldDeviceTrustScore, 0, 1},
	{FieldRatioBytesOutIn, 0, 1e6},
	{FieldBytesPerMinute, 0, 6e10},
	{FieldClipboardBytesRatio, 0, 1},
	{FieldClipboardEventsRate, 0, 1e4},
	{FieldScreenshotFrequency, 0, 1e3},
	{FieldFileTransferRate, 0, 1e3},
	{FieldAvgFileSize, 0, 1e11},
	{FieldUnusualTimeAccess, 0, 1},
	{FieldWeekendFlag, 0, 1},
	{FieldLowTrustDevice, 0, 1},
	{FieldWeakAuth, 0, 1},
	{FieldUnencrypted, 0, 1},
	{FieldHighFrameRate, 0, 1},
	{FieldEntropyScore, 0, 8},
	{FieldBytesOutZScore, -10, 10},
}

var fieldIndex = buildFieldIndex()

func buildFieldIndex() map[string]int {
	idx := make(map[string]int, NumFeatures)
	for i, spec := range fieldSpecs {
		idx[spec.Name] = i
	}
	return idx
}

// FeatureNames returns the schema field names in canonical order.
func FeatureNames() []string {
	names := make([]string, NumFeatures)
	for i, spec := range fieldSpecs {
		names[i] = spec.Name
	}
	return names
}

// FeatureIndex returns the canonical position of a field name.
func FeatureIndex(name string) (int, bool) {
	i, ok := fieldIndex[name]
	return i, ok
}

// ValidationError reports required feature fields missing at the input
// boundary. No detection is attempted for an incomplete vector.
type ValidationError struct {
	Missing []string
}

// Error lists the missing field names.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("feature vector missing %d required fields: %s",
		len(e.Missing), strings.Join(e.Missing, ", "))
}

// FeatureVector is an immutable snapshot of one session observation window.
// Values are stored in canonical field order.
type FeatureVector struct {
	values [NumFeatures]float64
}

// NewFeatureVector builds a vector from a field-name map. Unknown fields are
// ignored, missing fields are a ValidationError, and values outside the
// documented plausible range are clamped rather than rejected.
func NewFeatureVector(fields map[string]float64) (FeatureVector, error) {
	var v FeatureVector
	var missing []string
	for i, spec := range fieldSpecs {
		raw, ok := fields[spec.Name]
		if !ok {
			missing = append(missing, spec.Name)
			continue
		}
		v.values[i] = clampValue(raw, spec)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return FeatureVector{}, &ValidationError{Missing: missing}
	}
	return v, nil
}

// VectorFromValues builds a vector from values in canonical field order.
func VectorFromValues(values []float64) (FeatureVector, error) {
	if len(values) != NumFeatures {
		return FeatureVector{}, fmt.Errorf("expected %d feature values, got %d", NumFeatures, len(values))
	}
	var v FeatureVector
	for i, spec := range fieldSpecs {
		v.values[i] = clampValue(values[i], spec)
	}
	return v, nil
}

func clampValue(raw float64, spec fieldSpec) float64 {
	if math.IsNaN(raw) {
		return spec.Min
	}
	if raw < spec.Min {
		return spec.Min
	}
	if raw > spec.Max {
		return spec.Max
	}
	return raw
}

// Value returns the feature at a canonical index.
func (v FeatureVector) Value(i int) float64 {
	return v.values[i]
}

// Get returns a feature by field name.
func (v FeatureVector) Get(name string) (float64, bool) {
	i, ok := fieldIndex[name]
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

// Values returns a copy of the values in canonical order.
func (v FeatureVector) Values() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v.values[:])
	return out
}

// Fields returns a copy of the vector as a field-name map.
func (v FeatureVector) Fields() map[string]float64 {
	out := make(map[string]float64, NumFeatures)
	for i, spec := range fieldSpecs {
		out[spec.Name] = v.values[i]
	}
	return out
}
