package models

import (
	"errors"
	"math"
	"testing"
)

func completeFields() map[string]float64 {
	fields := make(map[string]float64, NumFeatures)
	for _, name := range FeatureNames() {
		fields[name] = 0
	}
	fields[FieldDurationSeconds] = 1800
	fields[FieldTotalBytesIn] = 5e6
	fields[FieldTotalBytesOut] = 2e6
	fields[FieldBytesPerMinute] = 66000
	fields[FieldDeviceTrustScore] = 0.9
	fields[FieldEntropyScore] = 4.2
	return fields
}

func TestNewFeatureVectorMissingFieldsReported(t *testing.T) {
	fields := completeFields()
	delete(fields, FieldEntropyScore)
	delete(fields, FieldBytesPerMinute)

	_, err := NewFeatureVector(fields)
	if err == nil {
		t.Fatalf("expected validation error for incomplete vector")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Missing) != 2 {
		t.Fatalf("expected 2 missing fields, got %v", verr.Missing)
	}
	// Missing names come back sorted so the error is stable.
	if verr.Missing[0] != FieldBytesPerMinute || verr.Missing[1] != FieldEntropyScore {
		t.Fatalf("unexpected missing fields: %v", verr.Missing)
	}
}

func TestNewFeatureVectorClampsOutOfRangeValues(t *testing.T) {
	fields := completeFields()
	fields[FieldDeviceTrustScore] = 1.7
	fields[FieldBytesOutZScore] = -50
	fields[FieldEntropyScore] = math.NaN()

	v, err := NewFeatureVector(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, _ := v.Get(FieldDeviceTrustScore); got != 1 {
		t.Fatalf("expected device trust clamped to 1, got %f", got)
	}
	if got, _ := v.Get(FieldBytesOutZScore); got != -10 {
		t.Fatalf("expected zscore clamped to -10, got %f", got)
	}
	if got, _ := v.Get(FieldEntropyScore); got != 0 {
		t.Fatalf("expected NaN entropy clamped to 0, got %f", got)
	}
}

func TestNewFeatureVectorIgnoresUnknownFields(t *testing.T) {
	fields := completeFields()
	fields["collector_version"] = 3

	v, err := NewFeatureVector(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := v.Get("collector_version"); ok {
		t.Fatalf("unknown field must not be stored")
	}
}

func TestVectorFromValuesRejectsWrongLength(t *testing.T) {
	if _, err := VectorFromValues(make([]float64, NumFeatures-1)); err == nil {
		t.Fatalf("expected error for short value slice")
	}
	if _, err := VectorFromValues(make([]float64, NumFeatures)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFeatureSchemaIsConsistent(t *testing.T) {
	names := FeatureNames()
	if len(names) != NumFeatures {
		t.Fatalf("expected %d feature names, got %d", NumFeatures, len(names))
	}
	for i, name := range names {
		idx, ok := FeatureIndex(name)
		if !ok || idx != i {
			t.Fatalf("field %s maps to index %d, expected %d", name, idx, i)
		}
	}
	if _, ok := FeatureIndex("no_such_field"); ok {
		t.Fatalf("unknown field must not resolve")
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	fields := completeFields()
	v, err := NewFeatureVector(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back := v.Fields()
	if len(back) != NumFeatures {
		t.Fatalf("expected %d fields, got %d", NumFeatures, len(back))
	}
	if back[FieldDurationSeconds] != 1800 {
		t.Fatalf("unexpected duration: %f", back[FieldDurationSeconds])
	}
}
