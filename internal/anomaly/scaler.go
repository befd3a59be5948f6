package anomaly

import (
	"fmt"
	"sort"
)

// RobustScaler centers by the median and scales by the interquartile
// range, so a handful of extreme training sessions cannot distort the
// reference distribution.
type RobustScaler struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

const minScale = 1e-9

// FitRobustScaler computes per-dimension median and IQR from samples.
func FitRobustScaler(samples [][]float64) (*RobustScaler, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to fit")
	}
	dims := len(samples[0])

	center := make([]float64, dims)
	scale := make([]float64, dims)
	column := make([]float64, len(samples))
	for d := 0; d < dims; d++ {
		for i, row := range samples {
			if len(row) != dims {
				return nil, fmt.Errorf("sample %d has %d dims, expected %d", i, len(row), dims)
			}
			column[i] = row[d]
		}
		sort.Float64s(column)
		center[d] = quantile(column, 0.5)
		iqr := quantile(column, 0.75) - quantile(column, 0.25)
		if iqr < minScale {
			iqr = 1
		}
		scale[d] = iqr
	}

	return &RobustScaler{Center: center, Scale: scale}, nil
}

// Transform maps a raw vector into scaled reference space.
func (s *RobustScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Center) {
		return nil, fmt.Errorf("vector has %d dims, scaler expects %d", len(x), len(s.Center))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale < minScale {
			scale = 1
		}
		out[i] = (v - s.Center[i]) / scale
	}
	return out, nil
}

// quantile interpolates over a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
