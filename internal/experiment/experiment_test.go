package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nvandessel/mendoza/internal/config"
	"github.com/nvandessel/mendoza/internal/network"
	"github.com/nvandessel/mendoza/internal/simulation"
	"github.com/nvandessel/mendoza/internal/store"
)

var threeNodes = []network.NodeSpec{
	{Name: "A"},
	{Name: "B"},
	{Name: "C", Activators: "A, Z", Inhibitors: "B"},
}

func smallConfig() *config.ExperimentConfig {
	c := config.Default()
	c.Simulation.Repetitions = 6
	c.Simulation.Samples = 20
	c.Simulation.Seed = 7
	return c
}

func TestLoadNetwork(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.csv")
	csv := "Nodes,Activators,Inhibitors,Stimuli\nA,,,B\nB,,,\nC,A,B,\n"
	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}

	net, err := LoadNetwork(path, nil)
	if err != nil {
		t.Fatalf("LoadNetwork: %v", err)
	}
	if net.Source != path || net.Matrices.Size() != 3 {
		t.Errorf("network = %s with %d nodes", net.Source, net.Matrices.Size())
	}
	if !reflect.DeepEqual(net.Topology.Stimuli, []string{"B"}) {
		t.Errorf("Stimuli = %v", net.Topology.Stimuli)
	}

	var ce *config.ConfigurationError
	if _, err := LoadNetwork("", nil); !errors.As(err, &ce) {
		t.Errorf("LoadNetwork(\"\") = %v, want ConfigurationError", err)
	}
}

func TestFromNodes_KeepsUnresolved(t *testing.T) {
	net, err := FromNodes(threeNodes, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := net.Matrices.Unresolved(); len(got) != 1 || got[0].Token != "Z" {
		t.Errorf("Unresolved = %+v", got)
	}

	var te *network.TopologyError
	if _, err := FromNodes([]network.NodeSpec{{Name: "A"}, {Name: "A"}}, nil, nil); !errors.As(err, &te) {
		t.Errorf("duplicate nodes error = %v", err)
	}
}

func TestSimulate(t *testing.T) {
	net, err := FromNodes(threeNodes, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := smallConfig()
	cfg.Network.Observed = []string{"C"}

	res, err := Simulate(context.Background(), cfg, net, Options{})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.Seed != 7 || res.Batch.Succeeded() != 6 || res.Baseline.Count != 6 {
		t.Errorf("seed %d succeeded %d count %d", res.Seed, res.Batch.Succeeded(), res.Baseline.Count)
	}
	if !reflect.DeepEqual(res.Observed, []int{2}) {
		t.Errorf("Observed = %v", res.Observed)
	}
	if w := res.Warnings(); len(w) != 0 {
		t.Errorf("Warnings = %v", w)
	}
}

func TestSimulate_InvalidConfig(t *testing.T) {
	net, _ := FromNodes(threeNodes, nil, nil)
	cfg := smallConfig()
	cfg.Simulation.Repetitions = 0

	var ce *config.ConfigurationError
	if _, err := Simulate(context.Background(), cfg, net, Options{}); !errors.As(err, &ce) {
		t.Errorf("Simulate = %v, want ConfigurationError", err)
	}
}

func TestPerturb_FallsBackToTopologyStimuli(t *testing.T) {
	net, err := FromNodes(threeNodes, []string{"A"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := smallConfig()

	res, err := Perturb(context.Background(), cfg, net, Options{})
	if err != nil {
		t.Fatalf("Perturb: %v", err)
	}
	if len(res.Perturbations) != 1 || res.Perturbations[0].Stimuli[0] != "A" {
		t.Fatalf("rows = %+v", res.Perturbations)
	}
	if len(cfg.Perturbation.Stimuli) != 0 {
		t.Error("caller's config was modified")
	}
	row := res.Perturbations[0]
	if row.Diff[0] != simulation.StimulusLevel-res.Baseline.Mean[0] {
		t.Errorf("diff at stimulus = %v", row.Diff[0])
	}
}

func TestPerturb_NoStimuli(t *testing.T) {
	net, _ := FromNodes(threeNodes, nil, nil)
	var ce *config.ConfigurationError
	_, err := Perturb(context.Background(), smallConfig(), net, Options{})
	if !errors.As(err, &ce) || ce.Field != "perturbation.stimuli" {
		t.Errorf("Perturb = %v", err)
	}
}

func TestRecordAndSave(t *testing.T) {
	net, _ := FromNodes(threeNodes, nil, nil)
	cfg := smallConfig()
	cfg.Perturbation.Stimuli = []string{"A", "B"}
	cfg.Perturbation.Mode = "joint"

	res, err := Perturb(context.Background(), cfg, net, Options{})
	if err != nil {
		t.Fatal(err)
	}

	run := res.Record()
	if run.Network != "inline" || run.Seed != 7 || run.Requested != 6 || len(run.Samples) != 6 {
		t.Errorf("run = %+v", run)
	}
	if run.Params.Mode != "joint" || run.Params.PerturbationRepetitions != 1 || run.Params.Steepness != 10 {
		t.Errorf("params = %+v", run.Params)
	}

	if _, err := Save(context.Background(), nil, res); err == nil {
		t.Error("expected error saving without a store")
	}

	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	id, err := Save(context.Background(), s, res)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.GetRun(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Perturbations) != 1 || !reflect.DeepEqual(got.Perturbations[0].Indices, []int{0, 1}) {
		t.Errorf("stored perturbations = %+v", got.Perturbations)
	}
}

func TestSummarize(t *testing.T) {
	net, _ := FromNodes(threeNodes, nil, nil)
	sum := Summarize(net.Source, net.Matrices)

	if sum.Activations != 1 || sum.Inhibitions != 1 || len(sum.Unresolved) != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if !reflect.DeepEqual(sum.Columns, []string{"A", "B", "C"}) {
		t.Errorf("Columns = %v", sum.Columns)
	}
	want := []string{"unregulated", "unregulated", "both"}
	for i, n := range sum.Nodes {
		if n.Regulation != want[i] {
			t.Errorf("%s regulation = %q, want %q", n.Name, n.Regulation, want[i])
		}
	}

	rect, err := network.BuildStimulusIndexed(threeNodes, []string{"B"})
	if err != nil {
		t.Fatal(err)
	}
	rs := Summarize("rect", rect)
	if !reflect.DeepEqual(rs.Columns, []string{"B"}) || rs.Nodes[2].Regulation != "inhibitors-only" {
		t.Errorf("rectangular summary = %+v", rs)
	}
}
