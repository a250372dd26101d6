package datadist

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// Manifest is a column-major emulation of a dataframe: an ordered set of
// named columns, each holding one cell per row. Cells are untyped at the
// boundary; validation coerces them in place and package construction
// rewrites path cells to logical keys.
type Manifest struct {
	cols  []string
	cells map[string][]any
}

// NewManifest creates an empty manifest with the given column order.
func NewManifest(columns ...string) (*Manifest, error) {
	m := &Manifest{cells: make(map[string][]any, len(columns))}
	for _, c := range columns {
		if _, dup := m.cells[c]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrConfig, c)
		}
		m.cols = append(m.cols, c)
		m.cells[c] = nil
	}
	return m, nil
}

// AppendRow adds one row. Columns missing from the mapping get nil cells;
// keys that are not manifest columns are a configuration error.
func (m *Manifest) AppendRow(row map[string]any) error {
	for k := range row {
		if _, ok := m.cells[k]; !ok {
			return fmt.Errorf("%w: unknown column %q", ErrConfig, k)
		}
	}
	for _, c := range m.cols {
		m.cells[c] = append(m.cells[c], row[c])
	}
	return nil
}

// Columns returns the column names in order.
func (m *Manifest) Columns() []string {
	out := make([]string, len(m.cols))
	copy(out, m.cols)
	return out
}

// HasColumn reports whether the manifest has the named column.
func (m *Manifest) HasColumn(name string) bool {
	_, ok := m.cells[name]
	return ok
}

// Len returns the number of rows.
func (m *Manifest) Len() int {
	if len(m.cols) == 0 {
		return 0
	}
	return len(m.cells[m.cols[0]])
}

// Column returns the live cell slice for a column. Mutating the returned
// slice mutates the manifest; validators rely on this for in-place coercion.
func (m *Manifest) Column(name string) ([]any, error) {
	vals, ok := m.cells[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown column %q", ErrConfig, name)
	}
	return vals, nil
}

// Cell returns the value at (column, row).
func (m *Manifest) Cell(column string, row int) (any, error) {
	vals, err := m.Column(column)
	if err != nil {
		return nil, err
	}
	if row < 0 || row >= len(vals) {
		return nil, fmt.Errorf("%w: row %d out of range for column %q", ErrConfig, row, column)
	}
	return vals[row], nil
}

// SetCell overwrites the value at (column, row).
func (m *Manifest) SetCell(column string, row int, v any) error {
	vals, err := m.Column(column)
	if err != nil {
		return err
	}
	if row < 0 || row >= len(vals) {
		return fmt.Errorf("%w: row %d out of range for column %q", ErrConfig, row, column)
	}
	vals[row] = v
	return nil
}

// Copy returns a deep copy of the manifest. Validation always runs against a
// copy so the caller's input is never mutated.
func (m *Manifest) Copy() *Manifest {
	out := &Manifest{
		cols:  make([]string, len(m.cols)),
		cells: make(map[string][]any, len(m.cols)),
	}
	copy(out.cols, m.cols)
	for c, vals := range m.cells {
		dup := make([]any, len(vals))
		copy(dup, vals)
		out.cells[c] = dup
	}
	return out
}

// DropRows removes the given row indices from every column and returns how
// many rows were removed.
func (m *Manifest) DropRows(rows map[int]struct{}) int {
	if len(rows) == 0 {
		return 0
	}
	n := m.Len()
	dropped := 0
	for i := range rows {
		if i >= 0 && i < n {
			dropped++
		}
	}
	if dropped == 0 {
		return 0
	}
	for _, c := range m.cols {
		vals := m.cells[c]
		kept := make([]any, 0, len(vals)-dropped)
		for i, v := range vals {
			if _, drop := rows[i]; !drop {
				kept = append(kept, v)
			}
		}
		m.cells[c] = kept
	}
	return dropped
}

// ReadCSV parses a manifest from CSV. The first record is the header; cells
// are sniffed into int, float, bool, nil (empty) or string.
func ReadCSV(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: csv manifest has no header row", ErrConfig)
	}

	m, err := NewManifest(records[0]...)
	if err != nil {
		return nil, err
	}
	for _, rec := range records[1:] {
		row := make(map[string]any, len(rec))
		for j, raw := range rec {
			if j < len(m.cols) {
				row[m.cols[j]] = parseCell(raw)
			}
		}
		if err := m.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ReadCSVFile parses a manifest from a CSV file on disk. A directory is a
// configuration error.
func ReadCSVFile(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest %q: %v", ErrNotFound, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: manifest %q is a directory", ErrConfig, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes the manifest as CSV with a header row.
func (m *Manifest) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(m.cols); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	n := m.Len()
	rec := make([]string, len(m.cols))
	for i := 0; i < n; i++ {
		for j, c := range m.cols {
			rec[j] = formatCell(m.cells[c][i])
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes the manifest as a CSV file on disk.
func (m *Manifest) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	return m.WriteCSV(f)
}

func parseCell(raw string) any {
	if raw == "" {
		return nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch raw {
	case "true", "True", "false", "False":
		b, _ := strconv.ParseBool(raw)
		return b
	}
	return raw
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case Path:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.Itoa(int(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 64)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// sortedRows returns the indices of a row set in ascending order; handy for
// deterministic logs.
func sortedRows(rows map[int]struct{}) []int {
	out := make([]int, 0, len(rows))
	for i := range rows {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
