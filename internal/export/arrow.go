// Package export writes simulation results as Arrow IPC files so they can be
// loaded by dataframe tools without a bespoke parser.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/mendoza/internal/simulation"
)

// Key column names.
const (
	KeyTime       = "t"
	KeyRepetition = "repetition"
	KeyRow        = "row"
)

// BaselineLabel labels the baseline mean row of a perturbation frame.
const BaselineLabel = "baseline"

// ErrShape is returned when a frame's rows do not line up with its key or
// node columns.
var ErrShape = errors.New("frame shape mismatch")

// Frame is a table with one key column followed by one float64 column per
// node. The key is numeric (Index) or textual (Labels), never both.
type Frame struct {
	Key      string
	Index    []float64
	Labels   []string
	Nodes    []string
	Rows     [][]float64
	Metadata map[string]string
}

// Trajectory frames a time series: one row per output time.
func Trajectory(nodes []string, times []float64, X [][]float64) Frame {
	return Frame{
		Key:      KeyTime,
		Index:    times,
		Nodes:    nodes,
		Rows:     X,
		Metadata: map[string]string{"kind": "trajectory"},
	}
}

// Samples frames the final states of a batch, keyed by repetition number.
func Samples(nodes []string, samples [][]float64) Frame {
	index := make([]float64, len(samples))
	for i := range index {
		index[i] = float64(i)
	}
	return Frame{
		Key:      KeyRepetition,
		Index:    index,
		Nodes:    nodes,
		Rows:     samples,
		Metadata: map[string]string{"kind": "samples"},
	}
}

// Perturbations frames a perturbation experiment: the baseline mean first,
// then one diff row per perturbation labelled by its stimuli joined with "+".
func Perturbations(nodes []string, base simulation.Baseline, rows []simulation.Perturbation) Frame {
	labels := make([]string, 0, len(rows)+1)
	values := make([][]float64, 0, len(rows)+1)
	labels = append(labels, BaselineLabel)
	values = append(values, base.Mean)
	for _, p := range rows {
		labels = append(labels, strings.Join(p.Stimuli, "+"))
		values = append(values, p.Diff)
	}
	return Frame{
		Key:      KeyRow,
		Labels:   labels,
		Nodes:    nodes,
		Rows:     values,
		Metadata: map[string]string{"kind": "perturbation", "values": "diff"},
	}
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.Rows) }

// Check reports whether the frame is well formed.
func (f Frame) Check() error {
	if f.Key == "" {
		return fmt.Errorf("%w: key column has no name", ErrShape)
	}
	if (f.Index == nil) == (f.Labels == nil) && len(f.Rows) > 0 {
		return fmt.Errorf("%w: exactly one of index or labels must be set", ErrShape)
	}
	if f.Labels != nil && len(f.Labels) != len(f.Rows) {
		return fmt.Errorf("%w: %d labels for %d rows", ErrShape, len(f.Labels), len(f.Rows))
	}
	if f.Index != nil && len(f.Index) != len(f.Rows) {
		return fmt.Errorf("%w: %d index values for %d rows", ErrShape, len(f.Index), len(f.Rows))
	}
	seen := map[string]bool{f.Key: true}
	for _, n := range f.Nodes {
		if seen[n] {
			return fmt.Errorf("%w: duplicate column %q", ErrShape, n)
		}
		seen[n] = true
	}
	for i, row := range f.Rows {
		if len(row) != len(f.Nodes) {
			return fmt.Errorf("%w: row %d has %d values for %d nodes", ErrShape, i, len(row), len(f.Nodes))
		}
	}
	return nil
}

func (f Frame) schema() *arrow.Schema {
	keyType := arrow.DataType(arrow.PrimitiveTypes.Float64)
	if f.Labels != nil {
		keyType = arrow.BinaryTypes.String
	}
	fields := make([]arrow.Field, 0, len(f.Nodes)+1)
	fields = append(fields, arrow.Field{Name: f.Key, Type: keyType})
	for _, n := range f.Nodes {
		fields = append(fields, arrow.Field{Name: n, Type: arrow.PrimitiveTypes.Float64})
	}
	md := arrow.MetadataFrom(f.Metadata)
	return arrow.NewSchema(fields, &md)
}

// Write encodes f as a single-record Arrow IPC file. The file footer
// records block offsets, so w must be seekable.
func Write(w io.WriteSeeker, f Frame) error {
	if err := f.Check(); err != nil {
		return err
	}

	mem := memory.DefaultAllocator
	schema := f.schema()

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	if f.Labels != nil {
		b.Field(0).(*array.StringBuilder).AppendValues(f.Labels, nil)
	} else {
		b.Field(0).(*array.Float64Builder).AppendValues(f.Index, nil)
	}
	for j := range f.Nodes {
		col := b.Field(j + 1).(*array.Float64Builder)
		col.Reserve(len(f.Rows))
		for _, row := range f.Rows {
			col.UnsafeAppend(row[j])
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to finish arrow file: %w", err)
	}
	return nil
}

// WriteFile writes f to path, replacing any existing file.
func WriteFile(path string, f Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Read decodes an Arrow IPC file written by Write. Files with several
// record batches are concatenated.
func Read(r ipc.ReadAtSeeker) (Frame, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return Frame{}, fmt.Errorf("failed to open arrow file: %w", err)
	}
	defer fr.Close()

	schema := fr.Schema()
	fields := schema.Fields()
	if len(fields) == 0 {
		return Frame{}, fmt.Errorf("%w: no columns", ErrShape)
	}

	f := Frame{Key: fields[0].Name, Metadata: map[string]string{}}
	md := schema.Metadata()
	for i, k := range md.Keys() {
		f.Metadata[k] = md.Values()[i]
	}
	for _, fld := range fields[1:] {
		if fld.Type.ID() != arrow.FLOAT64 {
			return Frame{}, fmt.Errorf("%w: column %q is %s, want float64", ErrShape, fld.Name, fld.Type)
		}
		f.Nodes = append(f.Nodes, fld.Name)
	}

	switch fields[0].Type.ID() {
	case arrow.FLOAT64:
		f.Index = []float64{}
	case arrow.STRING:
		f.Labels = []string{}
	default:
		return Frame{}, fmt.Errorf("%w: key column %q is %s", ErrShape, f.Key, fields[0].Type)
	}

	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to read record %d: %w", i, err)
		}
		appendRecord(&f, rec)
	}
	return f, nil
}

// appendRecord copies rec's rows into f. The record stays owned by the
// reader.
func appendRecord(f *Frame, rec arrow.Record) {
	n := int(rec.NumRows())
	switch key := rec.Column(0).(type) {
	case *array.Float64:
		f.Index = append(f.Index, key.Float64Values()...)
	case *array.String:
		for i := 0; i < n; i++ {
			f.Labels = append(f.Labels, key.Value(i))
		}
	}

	cols := make([][]float64, len(f.Nodes))
	for j := range f.Nodes {
		cols[j] = rec.Column(j + 1).(*array.Float64).Float64Values()
	}
	for i := 0; i < n; i++ {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = c[i]
		}
		f.Rows = append(f.Rows, row)
	}
}

// ReadFile reads a frame from path.
func ReadFile(path string) (Frame, error) {
	in, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()
	return Read(in)
}

// Column returns the values of node column name, or false when absent.
func (f Frame) Column(name string) ([]float64, bool) {
	for j, n := range f.Nodes {
		if n == name {
			out := make([]float64, len(f.Rows))
			for i, row := range f.Rows {
				out[i] = row[j]
			}
			return out, true
		}
	}
	return nil, false
}
