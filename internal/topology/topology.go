// Package topology reads network descriptions from tabular or YAML files.
//
// The tabular form has one row per node with the columns Nodes, Activators,
// Inhibitors and an optional Stimuli column. Header names are matched after
// trimming whitespace. Cells that are blank or hold a NaN marker left by
// spreadsheet exports count as empty.
package topology

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/mendoza/internal/network"
)

// Column headers of the tabular form.
const (
	ColumnNodes      = "Nodes"
	ColumnActivators = "Activators"
	ColumnInhibitors = "Inhibitors"
	ColumnStimuli    = "Stimuli"
)

// ErrUnsupportedFormat is returned by Load for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported topology format")

// Load reads a topology from path, choosing the reader by extension:
// .csv, .tsv, .yaml or .yml.
func Load(path string) (network.Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return network.Topology{}, fmt.Errorf("opening topology: %w", err)
	}
	defer f.Close()

	var topo network.Topology
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		topo, err = ReadCSV(f, ',')
	case ".tsv":
		topo, err = ReadCSV(f, '\t')
	case ".yaml", ".yml":
		topo, err = ReadYAML(f)
	default:
		return network.Topology{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return network.Topology{}, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return topo, nil
}

// ReadCSV reads the tabular form with the given field separator.
func ReadCSV(r io.Reader, comma rune) (network.Topology, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	// Leading-space trimming would swallow empty tab-separated fields.
	reader.TrimLeadingSpace = !unicode.IsSpace(comma)

	header, err := reader.Read()
	if err == io.EOF {
		return network.Topology{}, errors.New("empty table")
	}
	if err != nil {
		return network.Topology{}, fmt.Errorf("read header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		// A UTF-8 byte order mark survives some spreadsheet exports.
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	nodesCol, ok := cols[ColumnNodes]
	if !ok {
		return network.Topology{}, fmt.Errorf("missing %q column", ColumnNodes)
	}
	cell := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return clean(record[i])
	}

	var topo network.Topology
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return network.Topology{}, fmt.Errorf("read row %d: %w", line, err)
		}
		if blankRecord(record) {
			continue
		}

		if s := cell(record, ColumnStimuli); s != "" {
			topo.Stimuli = append(topo.Stimuli, s)
		}
		if nodesCol >= len(record) || clean(record[nodesCol]) == "" {
			// The Stimuli column may run longer than the node list.
			continue
		}
		topo.Nodes = append(topo.Nodes, network.NodeSpec{
			Name:       clean(record[nodesCol]),
			Activators: cell(record, ColumnActivators),
			Inhibitors: cell(record, ColumnInhibitors),
		})
	}
	return topo, nil
}

// ReadYAML reads a document of the form
//
//	nodes:
//	  - name: C
//	    activators: A
//	    inhibitors: B
//	stimuli: [A]
func ReadYAML(r io.Reader) (network.Topology, error) {
	var topo network.Topology
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&topo); err != nil {
		if err == io.EOF {
			return network.Topology{}, errors.New("empty document")
		}
		return network.Topology{}, fmt.Errorf("decode: %w", err)
	}
	for i := range topo.Nodes {
		n := &topo.Nodes[i]
		n.Name = clean(n.Name)
		n.Activators = clean(n.Activators)
		n.Inhibitors = clean(n.Inhibitors)
	}
	stimuli := topo.Stimuli[:0]
	for _, s := range topo.Stimuli {
		if s = clean(s); s != "" {
			stimuli = append(stimuli, s)
		}
	}
	topo.Stimuli = stimuli
	return topo, nil
}

// WriteYAML writes topo in the form ReadYAML accepts.
func WriteYAML(w io.Writer, topo network.Topology) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(topo); err != nil {
		return fmt.Errorf("encode topology: %w", err)
	}
	return enc.Close()
}

// clean trims s and maps NaN markers to "".
func clean(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "nan", "none", "null", "n/a":
		return ""
	}
	return s
}

func blankRecord(record []string) bool {
	for _, f := range record {
		if clean(f) != "" {
			return false
		}
	}
	return true
}
