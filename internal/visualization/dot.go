// Package visualization renders regulatory networks in various output formats.
package visualization

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nvandessel/mendoza/internal/dynamics"
	"github.com/nvandessel/mendoza/internal/network"
)

// Format specifies the output format for network rendering.
type Format string

const (
	FormatText  Format = "text"
	FormatDOT   Format = "dot"
	FormatGraph Format = "graph"
)

// ParseFormat accepts "text", "dot" or "graph". Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatDOT, FormatGraph:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, dot or graph)", s)
	}
}

// regulationColors maps regulation classes to DOT fill colors.
var regulationColors = map[dynamics.Regulation]string{
	dynamics.Unregulated:    "lightgray",
	dynamics.ActivatorsOnly: "mediumseagreen",
	dynamics.InhibitorsOnly: "tomato",
	dynamics.Both:           "goldenrod",
}

// edgeStyles maps relations to DOT edge attributes.
var edgeStyles = map[network.Relation]string{
	network.Activates: `color="forestgreen", arrowhead=normal`,
	network.Inhibits:  `color="firebrick", arrowhead=tee`,
}

// Edge is one regulatory interaction, source regulating target.
type Edge struct {
	Source   string           `json:"source"`
	Target   string           `json:"target"`
	Relation network.Relation `json:"relation"`
}

// Edges lists every interaction of m in target order, activations before
// inhibitions for each target.
func Edges(m *network.Matrices) []Edge {
	var edges []Edge
	for i := 0; i < m.Size(); i++ {
		for _, j := range m.Activators(i) {
			edges = append(edges, Edge{Source: m.Name(j), Target: m.Name(i), Relation: network.Activates})
		}
		for _, j := range m.Inhibitors(i) {
			edges = append(edges, Edge{Source: m.Name(j), Target: m.Name(i), Relation: network.Inhibits})
		}
	}
	return edges
}

// RenderDOT produces a Graphviz DOT representation of m. Stimulus nodes are
// drawn as double octagons.
func RenderDOT(m *network.Matrices, stimuli []string) string {
	var b strings.Builder
	b.WriteString("digraph mendoza {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=ellipse, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [penwidth=1.5];\n\n")

	for i := 0; i < m.Size(); i++ {
		name := m.Name(i)
		reg := dynamics.Classify(m, i)
		shape := ""
		if slices.Contains(stimuli, name) {
			shape = ", shape=doubleoctagon"
		}
		fmt.Fprintf(&b, "  %q [fillcolor=%q, tooltip=%q%s];\n", name, regulationColors[reg], reg.String(), shape)
	}
	b.WriteString("\n")

	for _, e := range Edges(m) {
		fmt.Fprintf(&b, "  %q -> %q [%s];\n", e.Source, e.Target, edgeStyles[e.Relation])
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderGraph produces a JSON-ready graph with nodes and edges arrays.
func RenderGraph(m *network.Matrices, stimuli []string) map[string]any {
	nodes := make([]map[string]any, m.Size())
	for i := range nodes {
		name := m.Name(i)
		nodes[i] = map[string]any{
			"id":         i,
			"name":       name,
			"regulation": dynamics.Classify(m, i).String(),
			"stimulus":   slices.Contains(stimuli, name),
		}
	}
	edges := Edges(m)
	if edges == nil {
		edges = []Edge{}
	}

	return map[string]any{
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(nodes),
		"edge_count": len(edges),
	}
}
