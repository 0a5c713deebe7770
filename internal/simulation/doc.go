// Package simulation drives repeated integrations of a compiled regulatory
// network and turns their final states into baseline statistics and
// perturbation responses.
//
// A Driver owns the immutable incidence matrices and rate parameters. Each
// repetition draws a uniform random initial state from its own PCG stream,
// derived from the experiment seed and the repetition index, so a batch is
// reproducible regardless of how many workers run it.
//
// Usage:
//
//	d, err := simulation.NewDriver(m, dynamics.DefaultParams(m.Size()), simulation.DefaultExperiment())
//	batch, base, err := d.Baseline(ctx)
//	tnf, _ := m.Index("TNF")
//	rows, err := d.Perturb(ctx, base, []int{tnf}, simulation.PerturbationOptions{Mode: simulation.Independent})
//
// Failed repetitions do not abort a batch. They are reported on the Batch,
// and only a batch without a single successful repetition is an error.
package simulation
