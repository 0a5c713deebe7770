package dynamics

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nvandessel/mendoza/internal/network"
)

// fanIn is a five-node network where T is activated by a, b, c and
// inhibited by d, plus an isolated node.
var fanIn = []network.NodeSpec{
	{Name: "a"},
	{Name: "b"},
	{Name: "c"},
	{Name: "d"},
	{Name: "T", Activators: "a, b, c", Inhibitors: "d"},
	{Name: "iso"},
}

func TestDynamicsProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}
	m, err := network.Build(fanIn)
	if err != nil {
		t.Fatal(err)
	}
	n := m.Size()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	state := gen.SliceOfN(n, gen.Float64Range(0, 1))

	properties.Property("fully clamped network has zero rates", prop.ForAll(
		func(x []float64, h float64) bool {
			clamped := make([]bool, n)
			for i := range clamped {
				clamped[i] = true
			}
			dst := make([]float64, n)
			Rates(m, Params{Gamma: UniformGamma(n, 1), H: h}, clamped, x, dst)
			for _, v := range dst {
				if v != 0 {
					return false
				}
			}
			return true
		},
		state,
		gen.Float64Range(0.1, 50),
	))

	properties.Property("isolated node rate is sigmoid(0) - gamma*x", prop.ForAll(
		func(x []float64, g float64) bool {
			p := Params{Gamma: UniformGamma(n, g), H: 10}
			dst := make([]float64, n)
			Rates(m, p, nil, x, dst)
			iso := n - 1
			return math.Abs(dst[iso]-(Sigmoid(0, 10)-g*x[iso])) < 1e-15
		},
		state,
		gen.Float64Range(0, 5),
	))

	properties.Property("raising an activator never lowers the activation term", prop.ForAll(
		func(x []float64, which int, delta float64) bool {
			base := make([]float64, n)
			copy(base, x)
			// With the inhibitor held at zero, w equals the activation term.
			base[3] = 0
			raised := make([]float64, n)
			copy(raised, base)
			raised[which] += delta

			return Weight(m, 4, raised) >= Weight(m, 4, base)-1e-15
		},
		state,
		gen.IntRange(0, 2),
		gen.Float64Range(0, 1),
	))

	properties.Property("weight stays in [0, 1] on the unit cube", prop.ForAll(
		func(x []float64) bool {
			for i := 0; i < n; i++ {
				w := Weight(m, i, x)
				if w < -1e-12 || w > 1+1e-12 {
					return false
				}
			}
			return true
		},
		state,
	))

	properties.TestingRun(t)
}
