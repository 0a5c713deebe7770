// Package mcp provides an MCP (Model Context Protocol) server for mendoza.
package mcp

import (
	"github.com/nvandessel/mendoza/internal/experiment"
	"github.com/nvandessel/mendoza/internal/network"
	"github.com/nvandessel/mendoza/internal/store"
)

// MatricesInput defines the input for the mendoza_matrices tool.
type MatricesInput struct {
	Network string             `json:"network,omitempty" jsonschema:"Path to a .csv, .yaml or .yml topology file; defaults to the configured network"`
	Nodes   []network.NodeSpec `json:"nodes,omitempty" jsonschema:"Inline node table used instead of a file"`
	Stimuli []string           `json:"stimuli,omitempty" jsonschema:"When set, build the rectangular matrices whose columns are these stimulus nodes"`
}

// MatricesOutput defines the output for the mendoza_matrices tool.
type MatricesOutput experiment.Summary

// SimulateInput defines the input for the mendoza_simulate tool.
type SimulateInput struct {
	Network     string             `json:"network,omitempty" jsonschema:"Path to a topology file; defaults to the configured network"`
	Nodes       []network.NodeSpec `json:"nodes,omitempty" jsonschema:"Inline node table used instead of a file"`
	Repetitions int                `json:"repetitions,omitempty" jsonschema:"Number of random initial states (default from config)"`
	TEnd        float64            `json:"t_end,omitempty" jsonschema:"Integration horizon (default from config)"`
	Seed        uint64             `json:"seed,omitempty" jsonschema:"Seed for reproducible runs; 0 draws a fresh one"`
	Observed    []string           `json:"observed,omitempty" jsonschema:"Restrict the reported vectors to these nodes"`
	Save        bool               `json:"save,omitempty" jsonschema:"Store the run in the run history"`
}

// SimulateOutput defines the output for the mendoza_simulate tool.
type SimulateOutput struct {
	RunID     string    `json:"run_id,omitempty" jsonschema:"ID of the stored run, when saved"`
	Seed      uint64    `json:"seed" jsonschema:"Seed that reproduces this run"`
	Requested int       `json:"requested" jsonschema:"Repetitions requested"`
	Succeeded int       `json:"succeeded" jsonschema:"Repetitions that integrated successfully"`
	Warnings  []string  `json:"warnings,omitempty" jsonschema:"Incomplete batches"`
	Nodes     []string  `json:"nodes" jsonschema:"Reported nodes, in index order"`
	Mean      []float64 `json:"mean" jsonschema:"Baseline mean per reported node"`
	Median    []float64 `json:"median" jsonschema:"Baseline median per reported node"`
	Std       []float64 `json:"std" jsonschema:"Baseline population standard deviation per reported node"`
}

// PerturbInput defines the input for the mendoza_perturb tool.
type PerturbInput struct {
	Network             string             `json:"network,omitempty" jsonschema:"Path to a topology file; defaults to the configured network"`
	Nodes               []network.NodeSpec `json:"nodes,omitempty" jsonschema:"Inline node table used instead of a file"`
	Stimuli             []string           `json:"stimuli,omitempty" jsonschema:"Nodes to clamp; defaults to the config or the topology's stimulus column"`
	Mode                string             `json:"mode,omitempty" jsonschema:"independent (one row per stimulus) or joint (all stimuli together)"`
	Repetitions         int                `json:"repetitions,omitempty" jsonschema:"Perturbed runs averaged per row (default 1)"`
	BaselineRepetitions int                `json:"baseline_repetitions,omitempty" jsonschema:"Baseline repetitions (default from config)"`
	Seed                uint64             `json:"seed,omitempty" jsonschema:"Seed for reproducible runs; 0 draws a fresh one"`
	Observed            []string           `json:"observed,omitempty" jsonschema:"Restrict the reported vectors to these nodes"`
	Save                bool               `json:"save,omitempty" jsonschema:"Store the run in the run history"`
}

// PerturbRow is one perturbation result restricted to the reported nodes.
type PerturbRow struct {
	Stimuli   []string  `json:"stimuli"`
	Final     []float64 `json:"final"`
	Spread    []float64 `json:"spread"`
	Diff      []float64 `json:"diff"`
	Requested int       `json:"requested"`
	Succeeded int       `json:"succeeded"`
}

// PerturbOutput defines the output for the mendoza_perturb tool.
type PerturbOutput struct {
	RunID    string       `json:"run_id,omitempty" jsonschema:"ID of the stored run, when saved"`
	Seed     uint64       `json:"seed" jsonschema:"Seed that reproduces this run"`
	Warnings []string     `json:"warnings,omitempty" jsonschema:"Incomplete batches"`
	Nodes    []string     `json:"nodes" jsonschema:"Reported nodes, in index order"`
	Baseline []float64    `json:"baseline" jsonschema:"Baseline mean per reported node"`
	Rows     []PerturbRow `json:"rows" jsonschema:"One row per stimulus (independent) or one row (joint)"`
}

// RunsInput defines the input for the mendoza_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return, most recent first (default 20)"`
}

// RunsOutput defines the output for the mendoza_runs tool.
type RunsOutput struct {
	Runs  []store.RunSummary `json:"runs" jsonschema:"Stored runs, most recent first"`
	Count int                `json:"count" jsonschema:"Number of runs returned"`
}
