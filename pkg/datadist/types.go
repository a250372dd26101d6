package datadist

import (
	"fmt"
	"strconv"
)

// Path is the dedicated cell type for filesystem references. Keeping it
// distinct from string lets a validated (cast) path be told apart from raw
// text in the same column.
type Path string

func (p Path) String() string { return string(p) }

// TypeKind classifies the runtime type of a manifest cell. The set is the
// small group of JSON-safe primitives plus Path.
type TypeKind int

const (
	KindInvalid TypeKind = iota - 1
	KindNil
	KindBool
	KindInt
	KindFloat
	KindString
	KindPath
)

func (k TypeKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindPath:
		return "path"
	default:
		return "invalid"
	}
}

// KindOf reports the TypeKind of a runtime value.
func KindOf(v any) TypeKind {
	switch v.(type) {
	case nil:
		return KindNil
	case bool:
		return KindBool
	case int, int32, int64:
		return KindInt
	case float32, float64:
		return KindFloat
	case string:
		return KindString
	case Path:
		return KindPath
	default:
		return KindInvalid
	}
}

// Is reports whether v is already an instance of the kind, post-cast.
func (k TypeKind) Is(v any) bool {
	return KindOf(v) == k
}

// Cast attempts to coerce v into the kind. Numeric widths normalize to int
// and float64 so that equality checks over merged metadata stay simple.
func (k TypeKind) Cast(v any) (any, error) {
	switch k {
	case KindString:
		switch t := v.(type) {
		case string:
			return t, nil
		case Path:
			return string(t), nil
		case bool:
			return strconv.FormatBool(t), nil
		case int:
			return strconv.Itoa(t), nil
		case int32:
			return strconv.Itoa(int(t)), nil
		case int64:
			return strconv.FormatInt(t, 10), nil
		case float32:
			return strconv.FormatFloat(float64(t), 'g', -1, 64), nil
		case float64:
			return strconv.FormatFloat(t, 'g', -1, 64), nil
		}
	case KindInt:
		switch t := v.(type) {
		case int:
			return t, nil
		case int32:
			return int(t), nil
		case int64:
			return int(t), nil
		case float32:
			return int(t), nil
		case float64:
			return int(t), nil
		case bool:
			if t {
				return 1, nil
			}
			return 0, nil
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				return n, nil
			}
		}
	case KindFloat:
		switch t := v.(type) {
		case float64:
			return t, nil
		case float32:
			return float64(t), nil
		case int:
			return float64(t), nil
		case int32:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return f, nil
			}
		}
	case KindBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			if b, err := strconv.ParseBool(t); err == nil {
				return b, nil
			}
		}
	case KindPath:
		// Only textual values denote paths; numbers never do.
		switch t := v.(type) {
		case Path:
			return t, nil
		case string:
			return Path(t), nil
		}
	}
	return nil, fmt.Errorf("%w: cannot cast %T (%v) to %s", ErrValue, v, v, k)
}

// ValidationFunc is a per-value predicate applied during validation.
type ValidationFunc func(v any) bool

// FeatureDefinition is the immutable per-column contract: the expected type,
// optional coercion, and an ordered list of validation predicates.
type FeatureDefinition struct {
	dtype           TypeKind
	validationFuncs []ValidationFunc
	castValues      bool
	displayName     string
	description     string
	units           string
}

// FeatureOption configures a FeatureDefinition under construction.
type FeatureOption func(*FeatureDefinition)

// WithValidationFuncs sets the ordered validation predicates for the feature.
func WithValidationFuncs(funcs ...ValidationFunc) FeatureOption {
	return func(d *FeatureDefinition) { d.validationFuncs = funcs }
}

// WithCastValues enables coercion of mismatched values to the feature dtype.
func WithCastValues() FeatureOption {
	return func(d *FeatureDefinition) { d.castValues = true }
}

// WithDisplayName attaches a display name to the feature.
func WithDisplayName(name string) FeatureOption {
	return func(d *FeatureDefinition) { d.displayName = name }
}

// WithDescription attaches a description to the feature.
func WithDescription(desc string) FeatureOption {
	return func(d *FeatureDefinition) { d.description = desc }
}

// WithUnits attaches unit details to the feature.
func WithUnits(units string) FeatureOption {
	return func(d *FeatureDefinition) { d.units = units }
}

// NewFeatureDefinition builds a feature definition for the given dtype.
// Nil validation predicates are rejected here, at construction time, not at
// validation time. When dtype is KindPath, cast is forced on regardless of
// the caller's options: path columns routinely hold plain strings that must
// become Path values before existence checks.
func NewFeatureDefinition(dtype TypeKind, opts ...FeatureOption) (*FeatureDefinition, error) {
	d := &FeatureDefinition{dtype: dtype}
	for _, opt := range opts {
		opt(d)
	}

	for i, f := range d.validationFuncs {
		if f == nil {
			return nil, fmt.Errorf("%w: validation function at index %d is nil", ErrType, i)
		}
	}

	if dtype == KindPath {
		d.castValues = true
	}

	return d, nil
}

// Dtype returns the expected type of the feature.
func (d *FeatureDefinition) Dtype() TypeKind { return d.dtype }

// CastValues reports whether mismatched values are coerced during validation.
func (d *FeatureDefinition) CastValues() bool { return d.castValues }

// ValidationFuncs returns the ordered validation predicates.
func (d *FeatureDefinition) ValidationFuncs() []ValidationFunc {
	out := make([]ValidationFunc, len(d.validationFuncs))
	copy(out, d.validationFuncs)
	return out
}

// DisplayName returns the display name metadata.
func (d *FeatureDefinition) DisplayName() string { return d.displayName }

// Description returns the description metadata.
func (d *FeatureDefinition) Description() string { return d.description }

// Units returns the units metadata.
func (d *FeatureDefinition) Units() string { return d.units }

func (d *FeatureDefinition) String() string {
	return fmt.Sprintf("<FeatureDefinition [display_name: %q, dtype: %s, cast values: %t]>",
		d.displayName, d.dtype, d.castValues)
}

// ValidatedFeature is the result of checking one column: the resolved dtype,
// the definition's display metadata, and the per-row errors recorded while
// validating. Immutable after creation.
type ValidatedFeature struct {
	name        string
	dtype       TypeKind
	displayName string
	description string
	units       string
	errored     []RowError
}

// NewValidatedFeature builds the record for a checked column.
func NewValidatedFeature(name string, dtype TypeKind, displayName, description, units string, errored []RowError) *ValidatedFeature {
	vf := &ValidatedFeature{
		name:        name,
		dtype:       dtype,
		displayName: displayName,
		description: description,
		units:       units,
	}
	vf.errored = make([]RowError, len(errored))
	copy(vf.errored, errored)
	return vf
}

// Name returns the column name the feature was validated under.
func (f *ValidatedFeature) Name() string { return f.name }

// Dtype returns the resolved feature type.
func (f *ValidatedFeature) Dtype() TypeKind { return f.dtype }

// DisplayName returns the display name metadata.
func (f *ValidatedFeature) DisplayName() string { return f.displayName }

// Description returns the description metadata.
func (f *ValidatedFeature) Description() string { return f.description }

// Units returns the units metadata.
func (f *ValidatedFeature) Units() string { return f.units }

// Errors returns the per-row errors recorded during validation.
func (f *ValidatedFeature) Errors() []RowError {
	out := make([]RowError, len(f.errored))
	copy(out, f.errored)
	return out
}

// ErroredRows returns the set of row indices that failed validation.
func (f *ValidatedFeature) ErroredRows() map[int]struct{} {
	rows := make(map[int]struct{}, len(f.errored))
	for _, re := range f.errored {
		rows[re.Row] = struct{}{}
	}
	return rows
}

func (f *ValidatedFeature) String() string {
	return fmt.Sprintf("<ValidatedFeature [name: %s, dtype: %s, display_name: %s]>",
		f.name, f.dtype, f.displayName)
}
