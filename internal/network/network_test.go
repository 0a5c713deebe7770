package network

import (
	"errors"
	"reflect"
	"testing"
)

// threeNode is the A/B/C network: C activated by A and inhibited by B.
func threeNode() []NodeSpec {
	return []NodeSpec{
		{Name: "A"},
		{Name: "B"},
		{Name: "C", Activators: "A", Inhibitors: "B"},
	}
}

func TestBuild_ThreeNode(t *testing.T) {
	m, err := Build(threeNode())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Size() != 3 || m.Columns() != 3 {
		t.Fatalf("size = %dx%d, want 3x3", m.Size(), m.Columns())
	}
	if !m.Square() {
		t.Error("expected square form")
	}

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			wantAct := i == 2 && j == 0
			wantInh := i == 2 && j == 1
			if m.Act(i, j) != wantAct {
				t.Errorf("Act(%d,%d) = %v, want %v", i, j, m.Act(i, j), wantAct)
			}
			if m.Inh(i, j) != wantInh {
				t.Errorf("Inh(%d,%d) = %v, want %v", i, j, m.Inh(i, j), wantInh)
			}
		}
	}

	if got := m.Activators(2); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("Activators(C) = %v, want [0]", got)
	}
	if got := m.Inhibitors(2); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("Inhibitors(C) = %v, want [1]", got)
	}
	act, inh := m.EdgeCount()
	if act != 1 || inh != 1 {
		t.Errorf("EdgeCount = (%d, %d), want (1, 1)", act, inh)
	}
}

func TestBuild_TokenHandling(t *testing.T) {
	tests := []struct {
		name       string
		activators string
		wantCols   []int
		unresolved int
	}{
		{"blank field", "", nil, 0},
		{"whitespace only", "   ", nil, 0},
		{"padded tokens", "  A ,B  ", []int{0, 1}, 0},
		{"duplicate tokens", "A,A,A", []int{0}, 0},
		{"unknown token ignored", "A, see note", []int{0}, 1},
		{"nan text ignored", "nan", nil, 1},
		{"trailing comma", "B,", []int{1}, 0},
		{"self loop", "C", []int{2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := []NodeSpec{{Name: "A"}, {Name: "B"}, {Name: "C", Activators: tt.activators}}
			m, err := Build(nodes)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			got := m.ActivationColumns(2)
			if len(got)+len(tt.wantCols) > 0 && !reflect.DeepEqual(got, tt.wantCols) {
				t.Errorf("columns = %v, want %v", got, tt.wantCols)
			}
			if n := len(m.Unresolved()); n != tt.unresolved {
				t.Errorf("unresolved = %d, want %d", n, tt.unresolved)
			}
		})
	}
}

func TestBuild_OverlappingActivatorAndInhibitor(t *testing.T) {
	m, err := Build([]NodeSpec{
		{Name: "A", Activators: "B", Inhibitors: "B"},
		{Name: "B"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !m.Act(0, 1) || !m.Inh(0, 1) {
		t.Error("expected B to both activate and inhibit A")
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		nodes []NodeSpec
		want  error
	}{
		{"empty", nil, ErrEmptyNetwork},
		{"blank name", []NodeSpec{{Name: "A"}, {Name: "  "}}, ErrEmptyName},
		{"duplicate", []NodeSpec{{Name: "A"}, {Name: "B"}, {Name: "A"}}, ErrDuplicateNode},
		{"duplicate after trim", []NodeSpec{{Name: "A"}, {Name: " A "}}, ErrDuplicateNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.nodes)
			if err == nil {
				t.Fatal("expected error")
			}
			var topoErr *TopologyError
			if !errors.As(err, &topoErr) {
				t.Fatalf("expected *TopologyError, got %T", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuild_Idempotent(t *testing.T) {
	a, err := Build(threeNode())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(threeNode())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !a.Equal(b) {
		t.Error("two builds of the same topology differ")
	}
}

func TestBuildStimulusIndexed(t *testing.T) {
	nodes := []NodeSpec{
		{Name: "TNF"},
		{Name: "IL1"},
		{Name: "MMP13", Activators: "TNF, IL1", Inhibitors: "TIMP"},
		{Name: "TIMP", Activators: "IL1"},
	}

	m, err := BuildStimulusIndexed(nodes, []string{"IL1", "TNF"})
	if err != nil {
		t.Fatalf("BuildStimulusIndexed: %v", err)
	}
	if m.Size() != 4 || m.Columns() != 2 {
		t.Fatalf("size = %dx%d, want 4x2", m.Size(), m.Columns())
	}
	if m.Square() {
		t.Error("rectangular form reported as square")
	}
	if m.ColumnNode(0) != 1 || m.ColumnNode(1) != 0 {
		t.Errorf("column map = [%d %d], want [1 0]", m.ColumnNode(0), m.ColumnNode(1))
	}
	if !m.Act(2, 0) || !m.Act(2, 1) {
		t.Error("MMP13 should be activated by both stimulus columns")
	}
	// TIMP is not a column, so the MMP13 inhibitor entry is unresolved.
	if len(m.InhibitionColumns(2)) != 0 {
		t.Error("MMP13 should have no inhibitor columns")
	}
	if got := m.Activators(3); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("Activators(TIMP) = %v, want [1]", got)
	}
}

func TestBuildStimulusIndexed_Errors(t *testing.T) {
	nodes := threeNode()

	if _, err := BuildStimulusIndexed(nodes, []string{"Z"}); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("unknown stimulus: got %v, want ErrUnknownColumn", err)
	}
	if _, err := BuildStimulusIndexed(nodes, []string{"A", " A"}); !errors.Is(err, ErrDuplicateColumn) {
		t.Errorf("duplicate stimulus: got %v, want ErrDuplicateColumn", err)
	}
}

func TestSplitRegulators(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"A", []string{"A"}},
		{" A , B ", []string{"A", "B"}},
		{"A,,B", []string{"A", "B"}},
		{"IL-1β, TNF", []string{"IL-1β", "TNF"}},
	}
	for _, tt := range tests {
		got := SplitRegulators(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitRegulators(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDense(t *testing.T) {
	m, err := Build(threeNode())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	act, inh := m.Dense()
	if act[2][0] != 1 || inh[2][1] != 1 {
		t.Errorf("dense rows = %v / %v", act[2], inh[2])
	}
	if act[0][0] != 0 {
		t.Error("unexpected activation on A")
	}
}
