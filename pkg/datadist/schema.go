package datadist

import (
	"strings"
	"unicode"
)

// Schema is the summation of validated and unvalidated features for a
// manifest. A nil feature means the column was never validated.
type Schema struct {
	names []string
	feats map[string]*ValidatedFeature
}

// SchemaRow is one line of the schema's table view.
type SchemaRow struct {
	Name        string
	Dtype       string
	DisplayName string
	Description string
	Units       string
	ErrorCount  int
	Validated   bool
}

// NewSchema builds a schema from an ordered list of column names and their
// validated features. Columns absent from feats are recorded as unvalidated.
func NewSchema(names []string, feats map[string]*ValidatedFeature) *Schema {
	s := &Schema{
		names: make([]string, len(names)),
		feats: make(map[string]*ValidatedFeature, len(names)),
	}
	copy(s.names, names)
	for _, n := range names {
		s.feats[n] = feats[n]
	}
	return s
}

// Columns returns the schema column names in order.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Feature returns the validated feature for a column, or nil when the column
// was not validated.
func (s *Schema) Feature(name string) *ValidatedFeature {
	return s.feats[name]
}

// Validated returns the columns that carry a validated feature.
func (s *Schema) Validated() []string {
	var out []string
	for _, n := range s.names {
		if s.feats[n] != nil {
			out = append(out, n)
		}
	}
	return out
}

// Unvalidated returns the columns without a validated feature.
func (s *Schema) Unvalidated() []string {
	var out []string
	for _, n := range s.names {
		if s.feats[n] == nil {
			out = append(out, n)
		}
	}
	return out
}

// PathColumns returns the validated columns whose dtype is path-like.
func (s *Schema) PathColumns() []string {
	var out []string
	for _, n := range s.names {
		if f := s.feats[n]; f != nil && f.Dtype() == KindPath {
			out = append(out, n)
		}
	}
	return out
}

// Table returns the schema as rows keyed by column, one per feature.
func (s *Schema) Table() []SchemaRow {
	rows := make([]SchemaRow, 0, len(s.names))
	for _, n := range s.names {
		f := s.feats[n]
		if f == nil {
			rows = append(rows, SchemaRow{Name: n})
			continue
		}
		rows = append(rows, SchemaRow{
			Name:        n,
			Dtype:       f.Dtype().String(),
			DisplayName: f.DisplayName(),
			Description: f.Description(),
			Units:       f.Units(),
			ErrorCount:  len(f.Errors()),
			Validated:   true,
		})
	}
	return rows
}

// pathNameHints are the column-name substrings that suggest a column holds
// filesystem references.
var pathNameHints = []string{"file", "path", "_dir", "directory"}

// GenerateSchemaTemplate derives a default FeatureDefinition per column when
// the caller supplies no schema. The heuristics are best effort and may
// misclassify; that is accepted behavior, not a defect:
//
//   - display name: underscores, hyphens, double spaces and periods in the
//     column name become spaces, then the result is title-cased
//   - dtype: the most frequent runtime type in the column, ties broken by
//     first encounter order
//   - cast: enabled iff more than one distinct runtime type is present
//   - path reclassification: column names containing file/path/_dir/directory
//     (and not ending in "id") whose majority type is textual become KindPath
func GenerateSchemaTemplate(m *Manifest) (map[string]*FeatureDefinition, error) {
	defs := make(map[string]*FeatureDefinition, len(m.Columns()))
	for _, col := range m.Columns() {
		vals, err := m.Column(col)
		if err != nil {
			return nil, err
		}

		displayName := displayNameFor(col)
		dtype, distinct := majorityKind(vals)

		opts := []FeatureOption{WithDisplayName(displayName)}
		if distinct > 1 {
			opts = append(opts, WithCastValues())
		}

		if looksLikePathColumn(col) && (dtype == KindString || dtype == KindPath) {
			dtype = KindPath
		}

		def, err := NewFeatureDefinition(dtype, opts...)
		if err != nil {
			return nil, err
		}
		defs[col] = def
	}
	return defs, nil
}

// majorityKind returns the most frequent TypeKind among the values and the
// number of distinct kinds seen. Ties break toward the kind encountered
// first, which keeps the result deterministic across runs.
func majorityKind(vals []any) (TypeKind, int) {
	counts := make(map[TypeKind]int)
	var order []TypeKind
	for _, v := range vals {
		k := KindOf(v)
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}
	if len(order) == 0 {
		return KindNil, 0
	}
	best := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best, len(order)
}

func looksLikePathColumn(col string) bool {
	lower := strings.ToLower(col)
	if strings.HasSuffix(lower, "id") {
		return false
	}
	for _, hint := range pathNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func displayNameFor(col string) string {
	name := strings.ReplaceAll(col, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "  ", " ")
	name = strings.ReplaceAll(name, ".", "")
	return titleCase(name)
}

// titleCase uppercases the first letter of every word and lowercases the
// rest, treating any non-letter as a word boundary.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}
