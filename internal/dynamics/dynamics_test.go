package dynamics

import (
	"math"
	"testing"

	"github.com/nvandessel/mendoza/internal/network"
)

// literalSigmoid is the textbook form of the transform, used as a reference
// where it does not overflow.
func literalSigmoid(w, h float64) float64 {
	e := math.Exp(-h * (w - 0.5))
	return (-math.Exp(0.5*h) + e) / ((1 - math.Exp(0.5*h)) * (1 + e))
}

func mustBuild(t *testing.T, nodes []network.NodeSpec) *network.Matrices {
	t.Helper()
	m, err := network.Build(nodes)
	if err != nil {
		t.Fatalf("network.Build: %v", err)
	}
	return m
}

func threeNode(t *testing.T) *network.Matrices {
	return mustBuild(t, []network.NodeSpec{
		{Name: "A"},
		{Name: "B"},
		{Name: "C", Activators: "A", Inhibitors: "B"},
	})
}

func TestSigmoid_Endpoints(t *testing.T) {
	for _, h := range []float64{0.5, 1, 5, 10, 50, 800, 5000} {
		if got := Sigmoid(0, h); math.Abs(got) > 1e-12 {
			t.Errorf("Sigmoid(0, %v) = %v, want 0", h, got)
		}
		if got := Sigmoid(1, h); math.Abs(got-1) > 1e-12 {
			t.Errorf("Sigmoid(1, %v) = %v, want 1", h, got)
		}
	}
}

func TestSigmoid_MatchesLiteralForm(t *testing.T) {
	for _, h := range []float64{1, 3, 10, 20} {
		for k := 0; k <= 100; k++ {
			w := float64(k) / 100
			got, want := Sigmoid(w, h), literalSigmoid(w, h)
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("Sigmoid(%v, %v) = %.15f, literal %.15f", w, h, got, want)
			}
		}
	}
}

func TestSigmoid_LargeSteepnessStaysFinite(t *testing.T) {
	for _, w := range []float64{-0.5, 0, 0.25, 0.4999, 0.5, 0.75, 1, 1.5} {
		got := Sigmoid(w, 2000)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("Sigmoid(%v, 2000) = %v", w, got)
		}
	}
	// Far above the midpoint the transform saturates at 1.
	if got := Sigmoid(0.9, 2000); math.Abs(got-1) > 1e-9 {
		t.Errorf("Sigmoid(0.9, 2000) = %v, want ~1", got)
	}
	if got := Sigmoid(0.1, 2000); math.Abs(got) > 1e-9 {
		t.Errorf("Sigmoid(0.1, 2000) = %v, want ~0", got)
	}
}

func TestSigmoid_Monotone(t *testing.T) {
	prev := Sigmoid(0, 10)
	for k := 1; k <= 1000; k++ {
		cur := Sigmoid(float64(k)/1000, 10)
		if cur < prev {
			t.Fatalf("Sigmoid decreased at w=%v: %v < %v", float64(k)/1000, cur, prev)
		}
		prev = cur
	}
}

func TestClassify(t *testing.T) {
	m := mustBuild(t, []network.NodeSpec{
		{Name: "src"},
		{Name: "act", Activators: "src"},
		{Name: "inh", Inhibitors: "src"},
		{Name: "both", Activators: "src", Inhibitors: "act"},
		{Name: "dangling", Activators: "nobody"},
	})

	want := []Regulation{Unregulated, ActivatorsOnly, InhibitorsOnly, Both, Unregulated}
	for i, w := range want {
		if got := Classify(m, i); got != w {
			t.Errorf("Classify(%s) = %v, want %v", m.Name(i), got, w)
		}
	}
}

func TestWeight(t *testing.T) {
	m := threeNode(t)
	inhOnly := mustBuild(t, []network.NodeSpec{{Name: "B"}, {Name: "T", Inhibitors: "B"}})

	tests := []struct {
		name string
		m    *network.Matrices
		node int
		x    []float64
		want float64
	}{
		{"activator fully on, inhibitor off", m, 2, []float64{1, 0, 0}, 1},
		{"both fully on", m, 2, []float64{1, 1, 0}, 0},
		{"activator half", m, 2, []float64{0.5, 0, 0}, 2 * (0.5 / 1.5)},
		{"activator half, inhibitor half", m, 2, []float64{0.5, 0.5, 0}, (2 * 0.5 / 1.5) * (1 - 2*0.5/1.5)},
		{"all off", m, 2, []float64{0, 0, 0}, 0},
		{"source node", m, 0, []float64{0.3, 0.7, 0.9}, 0},
		{"inhibitor off", inhOnly, 1, []float64{0, 0.4}, 1},
		{"inhibitor on", inhOnly, 1, []float64{1, 0.4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Weight(tt.m, tt.node, tt.x)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Weight = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeight_MultipleActivatorsReachOne(t *testing.T) {
	m := mustBuild(t, []network.NodeSpec{
		{Name: "a"}, {Name: "b"}, {Name: "c"},
		{Name: "t", Activators: "a,b,c"},
	})
	if got := Weight(m, 3, []float64{1, 1, 1, 0}); math.Abs(got-1) > 1e-12 {
		t.Errorf("Weight with all activators on = %v, want 1", got)
	}
	if got := Weight(m, 3, []float64{1, 0, 0, 0}); got <= 0 || got >= 1 {
		t.Errorf("Weight with one of three activators on = %v, want in (0, 1)", got)
	}
}

func TestRates_UnregulatedNode(t *testing.T) {
	m := threeNode(t)
	p := Params{Gamma: []float64{0.7, 1, 1}, H: 10}

	for _, x := range [][]float64{{0.2, 0, 0}, {0.2, 1, 1}, {0.2, 0.5, 0.1}} {
		dst := make([]float64, 3)
		Rates(m, p, nil, x, dst)
		want := Sigmoid(0, 10) - 0.7*0.2
		if math.Abs(dst[0]-want) > 1e-15 {
			t.Errorf("x=%v: rate[A] = %v, want %v", x, dst[0], want)
		}
	}
}

func TestRates_FullyClampedIsZero(t *testing.T) {
	m := threeNode(t)
	p := DefaultParams(3)
	clamped := []bool{true, true, true}

	dst := []float64{9, 9, 9}
	Rates(m, p, clamped, []float64{0.1, 0.9, 0.4}, dst)
	for i, v := range dst {
		if v != 0 {
			t.Errorf("rate[%d] = %v, want 0", i, v)
		}
	}
}

func TestRates_ClampOnlyAffectsMaskedNodes(t *testing.T) {
	m := threeNode(t)
	p := DefaultParams(3)
	x := []float64{1, 0, 0}

	free := make([]float64, 3)
	Rates(m, p, nil, x, free)

	held := make([]float64, 3)
	Rates(m, p, []bool{true, false, false}, x, held)

	if held[0] != 0 {
		t.Errorf("clamped rate = %v, want 0", held[0])
	}
	if held[2] != free[2] {
		t.Errorf("unclamped rate changed: %v vs %v", held[2], free[2])
	}
	// A on, B off: C is driven at the full production rate.
	if math.Abs(free[2]-1) > 1e-12 {
		t.Errorf("rate[C] = %v, want 1", free[2])
	}
}

func TestRates_StimulusIndexedForm(t *testing.T) {
	nodes := []network.NodeSpec{
		{Name: "A"},
		{Name: "B"},
		{Name: "C", Activators: "A", Inhibitors: "B"},
	}
	square, err := network.Build(nodes)
	if err != nil {
		t.Fatal(err)
	}
	rect, err := network.BuildStimulusIndexed(nodes, []string{"B", "A"})
	if err != nil {
		t.Fatal(err)
	}

	p := DefaultParams(3)
	x := []float64{0.8, 0.3, 0.5}
	a := make([]float64, 3)
	b := make([]float64, 3)
	Rates(square, p, nil, x, a)
	Rates(rect, p, nil, x, b)
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-15 {
			t.Errorf("rate[%d]: square %v, stimulus-indexed %v", i, a[i], b[i])
		}
	}
}

func TestSystem_CopiesMask(t *testing.T) {
	m := threeNode(t)
	mask := []bool{true, false, false}
	f := System(m, DefaultParams(3), mask)
	mask[0] = false

	dst := make([]float64, 3)
	f(0, []float64{0.5, 0, 0}, dst)
	if dst[0] != 0 {
		t.Errorf("mask mutation leaked into system: rate[A] = %v", dst[0])
	}
}

func TestParamsCheck(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		n       int
		wantErr bool
	}{
		{"defaults", DefaultParams(3), 3, false},
		{"short gamma", Params{Gamma: []float64{1}, H: 10}, 3, true},
		{"zero steepness", Params{Gamma: UniformGamma(2, 1), H: 0}, 2, true},
		{"negative steepness", Params{Gamma: UniformGamma(2, 1), H: -1}, 2, true},
		{"nan steepness", Params{Gamma: UniformGamma(2, 1), H: math.NaN()}, 2, true},
		{"inf gamma", Params{Gamma: []float64{1, math.Inf(1)}, H: 10}, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Check(tt.n)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegulationString(t *testing.T) {
	if Both.String() != "both" || Unregulated.String() != "unregulated" {
		t.Errorf("unexpected names: %s, %s", Both, Unregulated)
	}
}
