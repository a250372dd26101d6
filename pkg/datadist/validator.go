package datadist

import (
	"fmt"
	"os"
)

// Validator validates and optionally coerces one column's values against its
// FeatureDefinition. Successfully cast values are written back into the
// column in place; the orchestrator therefore always hands validators a copy
// of the caller's manifest.
type Validator struct {
	name        string
	values      []any
	definition  *FeatureDefinition
	dropOnError bool
}

// NewValidator binds a column (name and live cell slice) to its definition.
// When dropOnError is set, per-row failures are deferred and collected;
// otherwise the first failure aborts the column.
func NewValidator(name string, values []any, definition *FeatureDefinition, dropOnError bool) *Validator {
	return &Validator{
		name:        name,
		values:      values,
		definition:  definition,
		dropOnError: dropOnError,
	}
}

// Name returns the column name being validated.
func (v *Validator) Name() string { return v.name }

// Process runs the per-row state machine: cast (optional), type check, path
// existence check (path dtype only), then each predicate in declaration
// order, short-circuiting the row on its first failure. onRow, if non-nil,
// is invoked after every row regardless of outcome.
//
// In fail-fast mode the first violation is returned as a ColumnError and the
// remaining rows are not processed. In drop mode every violation is recorded
// on the resulting ValidatedFeature instead.
func (v *Validator) Process(onRow func()) (*ValidatedFeature, error) {
	var errored []RowError

	for i := range v.values {
		rowErr := v.checkRow(i)
		if rowErr != nil {
			if !v.dropOnError {
				if onRow != nil {
					onRow()
				}
				return nil, &ColumnError{Column: v.name, Err: rowErr}
			}
			errored = append(errored, *rowErr)
		}
		if onRow != nil {
			onRow()
		}
	}

	return NewValidatedFeature(
		v.name,
		v.definition.Dtype(),
		v.definition.DisplayName(),
		v.definition.Description(),
		v.definition.Units(),
		errored,
	), nil
}

func (v *Validator) checkRow(i int) *RowError {
	val := v.values[i]
	def := v.definition

	if def.CastValues() {
		cast, err := def.Dtype().Cast(val)
		if err != nil {
			return &RowError{
				Column: v.name,
				Row:    i,
				Value:  val,
				Kind:   ErrValue,
				Reason: fmt.Sprintf("could not cast to %s", def.Dtype()),
			}
		}
		v.values[i] = cast
		val = cast
	}

	if !def.Dtype().Is(val) {
		return &RowError{
			Column: v.name,
			Row:    i,
			Value:  val,
			Kind:   ErrType,
			Reason: fmt.Sprintf("does not match type specification %s", def.Dtype()),
		}
	}

	if def.Dtype() == KindPath {
		p, _ := val.(Path)
		abs, err := ResolvePath(string(p))
		if err != nil {
			return &RowError{Column: v.name, Row: i, Value: val, Kind: ErrNotFound, Reason: err.Error()}
		}
		if _, err := os.Stat(abs); err != nil {
			return &RowError{
				Column: v.name,
				Row:    i,
				Value:  val,
				Kind:   ErrNotFound,
				Reason: "filepath was not found",
			}
		}
	}

	for fi, f := range def.ValidationFuncs() {
		if !f(val) {
			return &RowError{
				Column: v.name,
				Row:    i,
				Value:  val,
				Kind:   ErrValue,
				Reason: fmt.Sprintf("failed validation function %d", fi),
			}
		}
	}

	return nil
}
