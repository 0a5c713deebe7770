package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nvandessel/mendoza/internal/metrics"
)

// StimulusLevel is the value a stimulus node is held at while clamped.
const StimulusLevel = 1.0

// Mode selects how multiple stimuli are applied.
type Mode string

const (
	// Independent clamps one stimulus per run; the others evolve freely.
	Independent Mode = "independent"
	// Joint clamps every stimulus together in a single run.
	Joint Mode = "joint"
)

// ParseMode accepts "independent" or "joint", case-insensitively. An empty
// string selects Independent.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Independent:
		return Independent, nil
	case Joint:
		return Joint, nil
	}
	return "", fmt.Errorf("unknown perturbation mode %q", s)
}

// PerturbationOptions shapes a perturbation experiment.
type PerturbationOptions struct {
	Mode Mode

	// Repetitions is the number of random initial states per perturbation
	// row. With more than one, the perturbed state is the mean final state
	// and Spread holds its standard deviation. Zero means one.
	Repetitions int
}

// Perturbation is one row of a perturbation experiment.
type Perturbation struct {
	// Stimuli are the clamped node names; Indices their node indices.
	Stimuli []string `json:"stimuli"`
	Indices []int    `json:"indices"`

	// Final is the perturbed final state, averaged over repetitions.
	Final []float64 `json:"final"`
	// Spread is the per-node standard deviation of the final state.
	Spread []float64 `json:"spread"`
	// Diff is Final minus the baseline mean.
	Diff []float64 `json:"diff"`

	Requested int       `json:"requested"`
	Succeeded int       `json:"succeeded"`
	Failures  []Failure `json:"-"`
}

// Perturb clamps the given stimulus nodes at StimulusLevel and reports each
// node's signed deviation from baseline. In Independent mode there is one row
// per stimulus and each row starts from a fresh clamp mask; in Joint mode
// there is a single row with every stimulus clamped.
func (d *Driver) Perturb(ctx context.Context, baseline Baseline, stimuli []int, opts PerturbationOptions) ([]Perturbation, error) {
	n := d.m.Size()
	if len(baseline.Mean) != n {
		return nil, fmt.Errorf("baseline has %d nodes, network has %d", len(baseline.Mean), n)
	}
	if len(stimuli) == 0 {
		return nil, errors.New("no stimuli to perturb")
	}
	for _, s := range stimuli {
		if s < 0 || s >= n {
			return nil, fmt.Errorf("stimulus index %d out of range [0, %d)", s, n)
		}
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	reps := opts.Repetitions
	if reps < 1 {
		reps = 1
	}

	var groups [][]int
	switch mode {
	case Joint:
		groups = [][]int{stimuli}
	default:
		for _, s := range stimuli {
			groups = append(groups, []int{s})
		}
	}

	rows := make([]Perturbation, 0, len(groups))
	for g, group := range groups {
		row, err := d.perturbGroup(ctx, baseline, uint32(g+1), group, reps)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (d *Driver) perturbGroup(ctx context.Context, baseline Baseline, stream uint32, group []int, reps int) (Perturbation, error) {
	names := make([]string, len(group))
	for k, s := range group {
		names[k] = d.m.Name(s)
	}

	// The mask handed to prepare is freshly allocated per repetition, so
	// clamps from one group never carry into the next.
	batch, err := d.runBatch(ctx, metrics.KindPerturbation, stream, reps, func(_ int, x0 []float64, clamped []bool) {
		for _, s := range group {
			x0[s] = StimulusLevel
			clamped[s] = true
		}
	})
	if err != nil {
		return Perturbation{}, fmt.Errorf("perturbing %s: %w", strings.Join(names, "+"), err)
	}

	stats, err := Aggregate(batch.Samples)
	if err != nil {
		return Perturbation{}, err
	}

	diff := make([]float64, len(stats.Mean))
	for i := range diff {
		diff[i] = stats.Mean[i] - baseline.Mean[i]
	}

	d.logger.Debug("perturbation complete",
		"stimuli", strings.Join(names, ","),
		"succeeded", batch.Succeeded(),
		"requested", batch.Requested)

	return Perturbation{
		Stimuli:   names,
		Indices:   append([]int(nil), group...),
		Final:     stats.Mean,
		Spread:    stats.Std,
		Diff:      diff,
		Requested: batch.Requested,
		Succeeded: batch.Succeeded(),
		Failures:  batch.Failures,
	}, nil
}
