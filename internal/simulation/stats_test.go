package simulation

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestAggregate(t *testing.T) {
	samples := [][]float64{
		{1, 10, 0},
		{2, 20, 0},
		{3, 30, 0},
		{6, 40, 0},
	}
	b, err := Aggregate(samples)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if b.Count != 4 {
		t.Errorf("Count = %d, want 4", b.Count)
	}
	wantMean := []float64{3, 25, 0}
	wantMedian := []float64{2.5, 25, 0}
	wantStd := []float64{math.Sqrt(3.5), math.Sqrt(125), 0}
	for j := range wantMean {
		AssertNear(t, "mean", b.Mean[j], wantMean[j], 1e-12)
		AssertNear(t, "median", b.Median[j], wantMedian[j], 1e-12)
		AssertNear(t, "std", b.Std[j], wantStd[j], 1e-12)
	}

	// The input rows are not reordered by the median computation.
	if samples[3][0] != 6 || samples[0][1] != 10 {
		t.Errorf("Aggregate modified its input: %v", samples)
	}
}

func TestAggregate_OddCountMedian(t *testing.T) {
	b, err := Aggregate([][]float64{{5}, {1}, {3}})
	if err != nil {
		t.Fatal(err)
	}
	if b.Median[0] != 3 {
		t.Errorf("median = %v, want 3", b.Median[0])
	}
}

func TestAggregate_Errors(t *testing.T) {
	if _, err := Aggregate(nil); !errors.Is(err, ErrNoSamples) {
		t.Errorf("Aggregate(nil) error = %v, want ErrNoSamples", err)
	}
	if _, err := Aggregate([][]float64{{1, 2}, {1}}); err == nil {
		t.Error("expected error for ragged samples")
	}
}

func TestLinspace(t *testing.T) {
	tests := []struct {
		name        string
		start, stop float64
		n           int
		want        []float64
	}{
		{"unit", 0, 1, 5, []float64{0, 0.25, 0.5, 0.75, 1}},
		{"single", 2, 9, 1, []float64{2}},
		{"empty", 0, 1, 0, nil},
		{"shifted", -1, 1, 3, []float64{-1, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Linspace(tt.start, tt.stop, tt.n); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Linspace = %v, want %v", got, tt.want)
			}
		})
	}

	ts := Linspace(0, 30, 100)
	if len(ts) != 100 || ts[0] != 0 || ts[99] != 30 {
		t.Errorf("Linspace(0, 30, 100) endpoints: %v .. %v (len %d)", ts[0], ts[len(ts)-1], len(ts))
	}
}

func TestSelect(t *testing.T) {
	v := []float64{0.1, 0.2, 0.3, 0.4}
	if got := Select(v, []int{3, 0}); !reflect.DeepEqual(got, []float64{0.4, 0.1}) {
		t.Errorf("Select = %v", got)
	}
	rows := SelectRows([][]float64{v, v}, []int{1})
	if !reflect.DeepEqual(rows, [][]float64{{0.2}, {0.2}}) {
		t.Errorf("SelectRows = %v", rows)
	}
}
