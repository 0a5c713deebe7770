package simulation

import (
	"math"
	"os"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/nvandessel/mendoza/internal/dynamics"
	"github.com/nvandessel/mendoza/internal/network"
)

// threeNode is A, B, and C with C activated by A and inhibited by B.
func threeNode(t *testing.T) *network.Matrices {
	t.Helper()
	m, err := network.Build([]network.NodeSpec{
		{Name: "A"},
		{Name: "B"},
		{Name: "C", Activators: "A", Inhibitors: "B"},
	})
	if err != nil {
		t.Fatalf("network.Build: %v", err)
	}
	return m
}

func newTestDriver(t *testing.T, m *network.Matrices, mutate func(*Experiment)) *Driver {
	t.Helper()
	exp := DefaultExperiment()
	exp.Seed = 42
	if mutate != nil {
		mutate(&exp)
	}
	d, err := NewDriver(m, dynamics.DefaultParams(m.Size()), exp)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return d
}

// AssertNear fails when got and want differ by more than tol.
func AssertNear(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %.12g, want %.12g (tol %g)", label, got, want, tol)
	}
}

// AssertConstantColumn asserts that node i has exactly value v at every
// output time.
func AssertConstantColumn(t *testing.T, X [][]float64, i int, v float64) {
	t.Helper()
	for k, x := range X {
		if x[i] != v {
			t.Fatalf("sample %d: x[%d] = %v, want exactly %v", k, i, x[i], v)
		}
	}
}

// column extracts node i's trajectory.
func column(X [][]float64, i int) []float64 {
	out := make([]float64, len(X))
	for k, x := range X {
		out[k] = x[i]
	}
	return out
}

func peak(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
