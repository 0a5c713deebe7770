// Package network compiles a regulatory network description into boolean
// activation and inhibition incidence matrices.
//
// Rows are targets and columns are regulators: Act(i, j) reports whether the
// regulator in column j activates node i. In the square form every node is a
// column; in the stimulus-indexed form only the designated stimulus nodes are.
package network

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel causes carried by TopologyError.
var (
	ErrEmptyNetwork    = errors.New("network has no nodes")
	ErrEmptyName       = errors.New("node name is empty")
	ErrDuplicateNode   = errors.New("duplicate node name")
	ErrUnknownColumn   = errors.New("column does not name a node")
	ErrDuplicateColumn = errors.New("duplicate column name")
)

// TopologyError reports a malformed or ambiguous network description.
type TopologyError struct {
	Name  string // offending node or column name, if any
	Index int    // position in the node sequence, -1 when not applicable
	Err   error
}

func (e *TopologyError) Error() string {
	if e.Name == "" && e.Index < 0 {
		return fmt.Sprintf("topology: %v", e.Err)
	}
	if e.Index < 0 {
		return fmt.Sprintf("topology: %v: %q", e.Err, e.Name)
	}
	return fmt.Sprintf("topology: %v: %q at position %d", e.Err, e.Name, e.Index)
}

func (e *TopologyError) Unwrap() error { return e.Err }

// NodeSpec is one row of a network description: a node name plus the raw
// comma-separated activator and inhibitor fields.
type NodeSpec struct {
	Name       string `json:"name" yaml:"name"`
	Activators string `json:"activators,omitempty" yaml:"activators,omitempty"`
	Inhibitors string `json:"inhibitors,omitempty" yaml:"inhibitors,omitempty"`
}

// Topology is an ordered node table plus the designated stimulus names.
type Topology struct {
	Nodes   []NodeSpec `json:"nodes" yaml:"nodes"`
	Stimuli []string   `json:"stimuli,omitempty" yaml:"stimuli,omitempty"`
}

// Names returns the node names in declaration order.
func (t Topology) Names() []string {
	names := make([]string, len(t.Nodes))
	for i, n := range t.Nodes {
		names[i] = n.Name
	}
	return names
}

// Relation distinguishes the two incidence matrices.
type Relation string

const (
	Activates Relation = "activates"
	Inhibits  Relation = "inhibits"
)

// Unresolved records a regulator token that matched no column. Such tokens
// are ignored when building; they are kept so callers can log them.
type Unresolved struct {
	Target   string   `json:"target"`
	Token    string   `json:"token"`
	Relation Relation `json:"relation"`
}

// Matrices holds the compiled incidence matrices. A Matrices value is
// immutable once built and safe for concurrent readers.
type Matrices struct {
	names []string
	index map[string]int
	cols  []int // column -> node index
	act   [][]bool
	inh   [][]bool

	// Per-row regulator columns, precomputed for the dynamics hot path.
	actCols [][]int
	inhCols [][]int

	unresolved []Unresolved
}

// Build compiles the square N×N incidence matrices for nodes.
func Build(nodes []NodeSpec) (*Matrices, error) {
	names, index, err := indexNodes(nodes)
	if err != nil {
		return nil, err
	}
	cols := make([]int, len(names))
	for i := range cols {
		cols[i] = i
	}
	return build(nodes, names, index, cols, names), nil
}

// BuildStimulusIndexed compiles rectangular N×S matrices whose columns are
// the given stimulus nodes, in the order given. Every stimulus must name a
// node.
func BuildStimulusIndexed(nodes []NodeSpec, stimuli []string) (*Matrices, error) {
	names, index, err := indexNodes(nodes)
	if err != nil {
		return nil, err
	}

	colNames := make([]string, len(stimuli))
	cols := make([]int, len(stimuli))
	seen := make(map[string]bool, len(stimuli))
	for j, s := range stimuli {
		s = strings.TrimSpace(s)
		idx, ok := index[s]
		if !ok {
			return nil, &TopologyError{Name: s, Index: -1, Err: ErrUnknownColumn}
		}
		if seen[s] {
			return nil, &TopologyError{Name: s, Index: -1, Err: ErrDuplicateColumn}
		}
		seen[s] = true
		colNames[j] = s
		cols[j] = idx
	}
	return build(nodes, names, index, cols, colNames), nil
}

// SplitRegulators splits a raw regulator field on commas and trims each
// token. Empty tokens are dropped.
func SplitRegulators(field string) []string {
	if strings.TrimSpace(field) == "" {
		return nil
	}
	parts := strings.Split(field, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

func indexNodes(nodes []NodeSpec) ([]string, map[string]int, error) {
	if len(nodes) == 0 {
		return nil, nil, &TopologyError{Index: -1, Err: ErrEmptyNetwork}
	}
	names := make([]string, len(nodes))
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			return nil, nil, &TopologyError{Index: i, Err: ErrEmptyName}
		}
		if _, dup := index[name]; dup {
			return nil, nil, &TopologyError{Name: name, Index: i, Err: ErrDuplicateNode}
		}
		index[name] = i
		names[i] = name
	}
	return names, index, nil
}

func build(nodes []NodeSpec, names []string, index map[string]int, cols []int, colNames []string) *Matrices {
	n, s := len(names), len(cols)
	colIndex := make(map[string]int, s)
	for j, name := range colNames {
		colIndex[name] = j
	}

	m := &Matrices{
		names:   names,
		index:   index,
		cols:    cols,
		act:     make([][]bool, n),
		inh:     make([][]bool, n),
		actCols: make([][]int, n),
		inhCols: make([][]int, n),
	}

	for i, spec := range nodes {
		m.act[i] = make([]bool, s)
		m.inh[i] = make([]bool, s)
		m.unresolved = markRow(m.act[i], spec.Activators, colIndex, names[i], Activates, m.unresolved)
		m.unresolved = markRow(m.inh[i], spec.Inhibitors, colIndex, names[i], Inhibits, m.unresolved)
		m.actCols[i] = setColumns(m.act[i])
		m.inhCols[i] = setColumns(m.inh[i])
	}
	return m
}

func markRow(row []bool, field string, colIndex map[string]int, target string, rel Relation, unresolved []Unresolved) []Unresolved {
	for _, tok := range SplitRegulators(field) {
		j, ok := colIndex[tok]
		if !ok {
			unresolved = append(unresolved, Unresolved{Target: target, Token: tok, Relation: rel})
			continue
		}
		row[j] = true
	}
	return unresolved
}

func setColumns(row []bool) []int {
	var out []int
	for j, set := range row {
		if set {
			out = append(out, j)
		}
	}
	return out
}

// Size returns the node count N.
func (m *Matrices) Size() int { return len(m.names) }

// Columns returns the column count: N for the square form, S otherwise.
func (m *Matrices) Columns() int { return len(m.cols) }

// Square reports whether every node is a column, in node order.
func (m *Matrices) Square() bool {
	if len(m.cols) != len(m.names) {
		return false
	}
	for j, c := range m.cols {
		if c != j {
			return false
		}
	}
	return true
}

// Names returns a copy of the node names in index order.
func (m *Matrices) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Name returns the name of node i.
func (m *Matrices) Name(i int) string { return m.names[i] }

// Index returns the index of the named node.
func (m *Matrices) Index(name string) (int, bool) {
	i, ok := m.index[strings.TrimSpace(name)]
	return i, ok
}

// ColumnNode returns the node index that column j refers to.
func (m *Matrices) ColumnNode(j int) int { return m.cols[j] }

// Act reports whether column j activates node i.
func (m *Matrices) Act(i, j int) bool { return m.act[i][j] }

// Inh reports whether column j inhibits node i.
func (m *Matrices) Inh(i, j int) bool { return m.inh[i][j] }

// ActivationColumns returns the set columns of row i of the activation
// matrix. The slice is shared and must not be modified.
func (m *Matrices) ActivationColumns(i int) []int { return m.actCols[i] }

// InhibitionColumns returns the set columns of row i of the inhibition
// matrix. The slice is shared and must not be modified.
func (m *Matrices) InhibitionColumns(i int) []int { return m.inhCols[i] }

// Activators returns the node indices activating node i.
func (m *Matrices) Activators(i int) []int { return m.toNodes(m.actCols[i]) }

// Inhibitors returns the node indices inhibiting node i.
func (m *Matrices) Inhibitors(i int) []int { return m.toNodes(m.inhCols[i]) }

func (m *Matrices) toNodes(cols []int) []int {
	out := make([]int, len(cols))
	for k, j := range cols {
		out[k] = m.cols[j]
	}
	return out
}

// EdgeCount returns the number of set entries in each matrix.
func (m *Matrices) EdgeCount() (activations, inhibitions int) {
	for i := range m.names {
		activations += len(m.actCols[i])
		inhibitions += len(m.inhCols[i])
	}
	return activations, inhibitions
}

// Unresolved returns the regulator tokens that matched no column.
func (m *Matrices) Unresolved() []Unresolved {
	out := make([]Unresolved, len(m.unresolved))
	copy(out, m.unresolved)
	return out
}

// Dense returns the matrices as 0/1 rows, for export and display.
func (m *Matrices) Dense() (act, inh [][]float64) {
	act = make([][]float64, len(m.act))
	inh = make([][]float64, len(m.inh))
	for i := range m.act {
		act[i] = boolsToFloats(m.act[i])
		inh[i] = boolsToFloats(m.inh[i])
	}
	return act, inh
}

func boolsToFloats(row []bool) []float64 {
	out := make([]float64, len(row))
	for j, b := range row {
		if b {
			out[j] = 1
		}
	}
	return out
}

// Equal reports whether both matrices have identical names, columns and
// entries.
func (m *Matrices) Equal(o *Matrices) bool {
	if m == nil || o == nil {
		return m == o
	}
	if len(m.names) != len(o.names) || len(m.cols) != len(o.cols) {
		return false
	}
	for i := range m.names {
		if m.names[i] != o.names[i] {
			return false
		}
	}
	for j := range m.cols {
		if m.cols[j] != o.cols[j] {
			return false
		}
	}
	for i := range m.act {
		for j := range m.act[i] {
			if m.act[i][j] != o.act[i][j] || m.inh[i][j] != o.inh[i][j] {
				return false
			}
		}
	}
	return true
}
