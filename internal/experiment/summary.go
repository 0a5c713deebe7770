package experiment

import (
	"github.com/nvandessel/mendoza/internal/dynamics"
	"github.com/nvandessel/mendoza/internal/network"
)

// NodeSummary describes one node's regulators.
type NodeSummary struct {
	Name       string   `json:"name"`
	Index      int      `json:"index"`
	Regulation string   `json:"regulation"`
	Activators []string `json:"activators,omitempty"`
	Inhibitors []string `json:"inhibitors,omitempty"`
}

// Summary is the human-facing view of compiled matrices: what the network
// diagram would show.
type Summary struct {
	Source      string               `json:"source"`
	Nodes       []NodeSummary        `json:"nodes"`
	Columns     []string             `json:"columns"`
	Activations int                  `json:"activations"`
	Inhibitions int                  `json:"inhibitions"`
	Unresolved  []network.Unresolved `json:"unresolved,omitempty"`
}

// Summarize describes m, which may be square or stimulus indexed.
func Summarize(source string, m *network.Matrices) Summary {
	out := Summary{
		Source:     source,
		Nodes:      make([]NodeSummary, m.Size()),
		Columns:    make([]string, m.Columns()),
		Unresolved: m.Unresolved(),
	}
	out.Activations, out.Inhibitions = m.EdgeCount()
	for j := range out.Columns {
		out.Columns[j] = m.Name(m.ColumnNode(j))
	}
	for i := range out.Nodes {
		out.Nodes[i] = NodeSummary{
			Name:       m.Name(i),
			Index:      i,
			Regulation: dynamics.Classify(m, i).String(),
			Activators: NodeNames(m, m.Activators(i)),
			Inhibitors: NodeNames(m, m.Inhibitors(i)),
		}
	}
	return out
}

// NodeNames maps node indices to names. It returns nil for an empty list.
func NodeNames(m *network.Matrices, idx []int) []string {
	if len(idx) == 0 {
		return nil
	}
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = m.Name(i)
	}
	return out
}
