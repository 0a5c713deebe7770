// Package dynamics implements the semi-quantitative rate law that turns
// incidence matrices into a continuous-time system.
//
// Each node i combines its regulators into a weight w in [0, 1], passes it
// through a normalized sigmoid with steepness h, and decays at rate gamma[i]:
//
//	dx[i]/dt = S_h(w[i]) - gamma[i]*x[i]
//
// Clamped nodes have a rate of exactly zero.
package dynamics

import (
	"fmt"
	"math"

	"github.com/nvandessel/mendoza/internal/network"
)

// DefaultSteepness is the sigmoid steepness h used when none is configured.
const DefaultSteepness = 10.0

// Regulation classifies a node by which regulator sets are non-empty.
type Regulation uint8

const (
	// Unregulated nodes have neither activators nor inhibitors; w = 0.
	Unregulated Regulation = iota
	ActivatorsOnly
	InhibitorsOnly
	// Both means activators and inhibitors are present; the two terms
	// combine multiplicatively.
	Both
)

func (r Regulation) String() string {
	switch r {
	case ActivatorsOnly:
		return "activators-only"
	case InhibitorsOnly:
		return "inhibitors-only"
	case Both:
		return "both"
	default:
		return "unregulated"
	}
}

// Params are the run constants of the rate law.
type Params struct {
	// Gamma is the per-node decay rate. Its length must equal the node count.
	Gamma []float64
	// H is the sigmoid steepness, shared by every node.
	H float64
}

// UniformGamma returns a decay vector of length n filled with g.
func UniformGamma(n int, g float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = g
	}
	return out
}

// DefaultParams returns gamma = 1 for every node and h = DefaultSteepness.
func DefaultParams(n int) Params {
	return Params{Gamma: UniformGamma(n, 1), H: DefaultSteepness}
}

// Check verifies p against a network of n nodes.
func (p Params) Check(n int) error {
	if len(p.Gamma) != n {
		return fmt.Errorf("gamma has %d entries, network has %d nodes", len(p.Gamma), n)
	}
	if !(p.H > 0) || math.IsInf(p.H, 0) {
		return fmt.Errorf("steepness must be positive and finite, got %v", p.H)
	}
	for i, g := range p.Gamma {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return fmt.Errorf("gamma[%d] is not finite", i)
		}
	}
	return nil
}

// Classify returns the regulation class of node i. The combined case is
// tested first so that a node with both regulator kinds is never treated as
// having only one of them.
func Classify(m *network.Matrices, i int) Regulation {
	hasAct := len(m.ActivationColumns(i)) > 0
	hasInh := len(m.InhibitionColumns(i)) > 0
	switch {
	case hasAct && hasInh:
		return Both
	case hasAct:
		return ActivatorsOnly
	case hasInh:
		return InhibitorsOnly
	default:
		return Unregulated
	}
}

// Weight returns the combined regulatory weight w[i] for state x.
func Weight(m *network.Matrices, i int, x []float64) float64 {
	switch Classify(m, i) {
	case Both:
		return activation(m, i, x) * (1 - inhibition(m, i, x))
	case ActivatorsOnly:
		return activation(m, i, x)
	case InhibitorsOnly:
		return 1 - inhibition(m, i, x)
	default:
		return 0
	}
}

// activation is ((1+Σα)/Σα) * (Σαx/(1+Σαx)). Only called when row i of the
// activation matrix has at least one entry.
func activation(m *network.Matrices, i int, x []float64) float64 {
	return saturate(m, m.ActivationColumns(i), x)
}

// inhibition is the same saturating term over the inhibition row.
func inhibition(m *network.Matrices, i int, x []float64) float64 {
	return saturate(m, m.InhibitionColumns(i), x)
}

func saturate(m *network.Matrices, cols []int, x []float64) float64 {
	sum := float64(len(cols))
	var sumX float64
	for _, j := range cols {
		sumX += x[m.ColumnNode(j)]
	}
	return ((1 + sum) / sum) * (sumX / (1 + sumX))
}

// Sigmoid is the normalized sigmoid transform S_h with S_h(0) = 0 and
// S_h(1) = 1:
//
//	S_h(w) = (-e^(h/2) + e^(-h(w-1/2))) / ((1 - e^(h/2)) * (1 + e^(-h(w-1/2))))
//
// It is evaluated in a rearranged form whose exponents are never positive,
// so it stays finite for any steepness.
func Sigmoid(w, h float64) float64 {
	var p float64
	if w >= 0.5 {
		// (1 - e^(-hw)) / (1 + e^(-h(w-1/2)))
		p = -math.Expm1(-h*w) / (1 + math.Exp(-h*(w-0.5)))
	} else {
		// Same ratio scaled by e^(h(w-1/2)).
		e := math.Exp(h * (w - 0.5))
		p = (e - math.Exp(-h/2)) / (e + 1)
	}
	return p / -math.Expm1(-h/2)
}

// Rates writes dx/dt for state x into dst. clamped may be nil; otherwise
// clamped[i] forces dst[i] = 0.
func Rates(m *network.Matrices, p Params, clamped []bool, x, dst []float64) {
	for i := range dst {
		if clamped != nil && clamped[i] {
			dst[i] = 0
			continue
		}
		dst[i] = Sigmoid(Weight(m, i, x), p.H) - p.Gamma[i]*x[i]
	}
}

// System returns the right-hand side f(t, x, dxdt) for the integrator. The
// clamp mask is copied, so the caller may reuse its slice.
func System(m *network.Matrices, p Params, clamped []bool) func(t float64, x, dxdt []float64) {
	var mask []bool
	if clamped != nil {
		mask = make([]bool, len(clamped))
		copy(mask, clamped)
	}
	return func(_ float64, x, dxdt []float64) {
		Rates(m, p, mask, x, dxdt)
	}
}
