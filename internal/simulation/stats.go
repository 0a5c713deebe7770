package simulation

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrNoSamples is returned when there is nothing to aggregate.
var ErrNoSamples = errors.New("no successful samples")

// Baseline holds column-wise statistics of a sample matrix.
type Baseline struct {
	Mean   []float64 `json:"mean"`
	Median []float64 `json:"median"`
	Std    []float64 `json:"std"` // population standard deviation
	Count  int       `json:"count"`
}

// Aggregate computes the per-node mean, median, and standard deviation of
// samples, one row per repetition.
func Aggregate(samples [][]float64) (Baseline, error) {
	if len(samples) == 0 {
		return Baseline{}, ErrNoSamples
	}
	n := len(samples[0])
	for r, row := range samples {
		if len(row) != n {
			return Baseline{}, fmt.Errorf("sample %d has %d values, want %d", r, len(row), n)
		}
	}

	b := Baseline{
		Mean:   make([]float64, n),
		Median: make([]float64, n),
		Std:    make([]float64, n),
		Count:  len(samples),
	}
	col := make([]float64, len(samples))
	for j := 0; j < n; j++ {
		for r, row := range samples {
			col[r] = row[j]
		}
		b.Mean[j] = mean(col)
		b.Std[j] = std(col, b.Mean[j])
		b.Median[j] = median(col)
	}
	return b, nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func std(values []float64, mu float64) float64 {
	var sum float64
	for _, v := range values {
		d := v - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// median sorts values in place.
func median(values []float64) float64 {
	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

// Linspace returns n evenly spaced points from start to stop inclusive.
func Linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	out[n-1] = stop
	return out
}

// Select returns the entries of v at the given indices, in order.
func Select(v []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for k, i := range indices {
		out[k] = v[i]
	}
	return out
}

// SelectRows applies Select to every row.
func SelectRows(rows [][]float64, indices []int) [][]float64 {
	out := make([][]float64, len(rows))
	for r, row := range rows {
		out[r] = Select(row, indices)
	}
	return out
}
