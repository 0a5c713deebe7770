package network

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomTopology builds an n-node topology where each node draws a random
// subset of regulators, plus an unknown token now and then.
func randomTopology(n int, seed uint64) []NodeSpec {
	rng := rand.New(rand.NewPCG(seed, 7))
	nodes := make([]NodeSpec, n)
	for i := range nodes {
		var act, inh []string
		for j := 0; j < n; j++ {
			if rng.IntN(3) == 0 {
				act = append(act, fmt.Sprintf("N%d", j))
			}
			if rng.IntN(4) == 0 {
				inh = append(inh, fmt.Sprintf("N%d", j))
			}
		}
		if rng.IntN(5) == 0 {
			act = append(act, "unknown")
		}
		nodes[i] = NodeSpec{
			Name:       fmt.Sprintf("N%d", i),
			Activators: strings.Join(act, ","),
			Inhibitors: strings.Join(inh, ", "),
		}
	}
	return nodes
}

// shuffleFields reverses and duplicates the tokens of every field.
func shuffleFields(nodes []NodeSpec, seed uint64) []NodeSpec {
	rng := rand.New(rand.NewPCG(seed, 11))
	out := make([]NodeSpec, len(nodes))
	for i, n := range nodes {
		out[i] = NodeSpec{
			Name:       n.Name,
			Activators: permute(rng, n.Activators),
			Inhibitors: permute(rng, n.Inhibitors),
		}
	}
	return out
}

func permute(rng *rand.Rand, field string) string {
	toks := SplitRegulators(field)
	rng.Shuffle(len(toks), func(i, j int) { toks[i], toks[j] = toks[j], toks[i] })
	if len(toks) > 0 {
		toks = append(toks, toks[0])
	}
	return "  " + strings.Join(toks, " ,  ")
}

func TestMatrixProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("matrices are square with dimension N", prop.ForAll(
		func(n int, seed uint64) bool {
			m, err := Build(randomTopology(n, seed))
			if err != nil {
				return false
			}
			return m.Size() == n && m.Columns() == n && m.Square()
		},
		gen.IntRange(1, 25),
		gen.UInt64(),
	))

	properties.Property("token order and duplicates do not matter", prop.ForAll(
		func(n int, seed uint64) bool {
			nodes := randomTopology(n, seed)
			a, err := Build(nodes)
			if err != nil {
				return false
			}
			b, err := Build(shuffleFields(nodes, seed))
			if err != nil {
				return false
			}
			return a.Equal(b)
		},
		gen.IntRange(1, 25),
		gen.UInt64(),
	))

	properties.Property("building twice is bitwise identical", prop.ForAll(
		func(n int, seed uint64) bool {
			nodes := randomTopology(n, seed)
			a, errA := Build(nodes)
			b, errB := Build(nodes)
			return errA == nil && errB == nil && a.Equal(b)
		},
		gen.IntRange(1, 25),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
