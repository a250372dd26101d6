package datadist

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// maxLoggedErrors caps how many individual row errors are logged per column
// before truncating with an ellipsis.
const maxLoggedErrors = 10

// ValidatedDataset pairs the (possibly row-reduced) working copy of the
// manifest with the schema built from all validated features. Dropped
// reports how many rows were removed in drop-on-error mode.
type ValidatedDataset struct {
	Data    *Manifest
	Schema  *Schema
	Dropped int
}

// ProgressFunc receives the number of processed cells and the total after
// every row any validator finishes. It may be called concurrently from
// multiple validator goroutines.
type ProgressFunc func(done, total int)

type validateConfig struct {
	schema      map[string]*FeatureDefinition
	dropOnError bool
	workers     int
	onProgress  ProgressFunc
	logger      *slog.Logger
}

// ValidateOption configures a Validate call.
type ValidateOption func(*validateConfig)

// WithSchema supplies an explicit schema instead of the inferred template.
func WithSchema(schema map[string]*FeatureDefinition) ValidateOption {
	return func(c *validateConfig) { c.schema = schema }
}

// WithDropOnError defers row failures and removes the offending rows from
// the output instead of aborting validation.
func WithDropOnError() ValidateOption {
	return func(c *validateConfig) { c.dropOnError = true }
}

// WithWorkers bounds the validation worker pool.
func WithWorkers(n int) ValidateOption {
	return func(c *validateConfig) { c.workers = n }
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) ValidateOption {
	return func(c *validateConfig) { c.onProgress = fn }
}

// WithLogger routes validation warnings through the given logger.
func WithLogger(logger *slog.Logger) ValidateOption {
	return func(c *validateConfig) { c.logger = logger }
}

type validateResult struct {
	name    string
	feature *ValidatedFeature
	err     error
}

// Validate checks a manifest against a schema, inferring one when none is
// supplied. Column validators run concurrently on a bounded worker pool; the
// work is I/O bound (path existence checks dominate), so threads of control
// per column are a throughput optimization, not a correctness requirement.
//
// The caller's manifest is never mutated: validation operates on a copy.
// Every column that recorded errors is summarized through the logger whether
// or not drop-on-error is set. With drop-on-error, the union of erroring row
// indices across all columns is removed from the output and the count is
// reported on the result; without it, the first violation is returned as an
// error wrapping its kind (ErrValue, ErrType or ErrNotFound).
func Validate(m *Manifest, opts ...ValidateOption) (*ValidatedDataset, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil manifest", ErrConfig)
	}

	cfg := validateConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	schema := cfg.schema
	if schema == nil {
		var err error
		schema, err = GenerateSchemaTemplate(m)
		if err != nil {
			return nil, err
		}
	}

	working := m.Copy()

	// One validator per schema column, each owning a disjoint column slice
	// of the working copy. Column order drives scheduling and reporting.
	var order []string
	for _, col := range working.Columns() {
		if _, ok := schema[col]; ok {
			order = append(order, col)
		}
	}
	if len(order) != len(schema) {
		for col := range schema {
			if !working.HasColumn(col) {
				return nil, fmt.Errorf("%w: schema column %q not found in manifest", ErrConfig, col)
			}
		}
	}

	validators := make([]*Validator, 0, len(order))
	for _, col := range order {
		vals, err := working.Column(col)
		if err != nil {
			return nil, err
		}
		validators = append(validators, NewValidator(col, vals, schema[col], cfg.dropOnError))
	}

	features, err := runValidators(validators, &cfg, working.Len())
	if err != nil {
		return nil, err
	}

	logColumnErrors(cfg.logger, order, features)

	dropped := 0
	if cfg.dropOnError {
		union := make(map[int]struct{})
		for _, name := range order {
			for row := range features[name].ErroredRows() {
				union[row] = struct{}{}
			}
		}
		dropped = working.DropRows(union)
		if dropped > 0 {
			cfg.logger.Warn("dropped rows that failed validation",
				"count", dropped,
				"rows", sortedRows(union))
		}
	}

	return &ValidatedDataset{
		Data:    working,
		Schema:  NewSchema(working.Columns(), features),
		Dropped: dropped,
	}, nil
}

// runValidators executes the validators on a bounded worker pool and funnels
// progress through a shared atomic counter.
func runValidators(validators []*Validator, cfg *validateConfig, rows int) (map[string]*ValidatedFeature, error) {
	workers := cfg.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(validators) {
		workers = len(validators)
	}
	if workers < 1 {
		workers = 1
	}

	total := len(validators) * rows
	var done atomic.Int64
	var onRow func()
	if cfg.onProgress != nil {
		onRow = func() {
			cfg.onProgress(int(done.Add(1)), total)
		}
	}

	jobs := make(chan *Validator)
	results := make(chan validateResult, len(validators))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range jobs {
				feature, err := v.Process(onRow)
				results <- validateResult{name: v.Name(), feature: feature, err: err}
			}
		}()
	}

	for _, v := range validators {
		jobs <- v
	}
	close(jobs)
	wg.Wait()
	close(results)

	features := make(map[string]*ValidatedFeature, len(validators))
	errs := make(map[string]error)
	for res := range results {
		if res.err != nil {
			errs[res.name] = res.err
			continue
		}
		features[res.name] = res.feature
	}
	if len(errs) > 0 {
		// Propagate the first failing column in column order so the error
		// surfaced does not depend on goroutine scheduling.
		for _, v := range validators {
			if err, ok := errs[v.Name()]; ok {
				return nil, err
			}
		}
	}
	return features, nil
}

func logColumnErrors(logger *slog.Logger, order []string, features map[string]*ValidatedFeature) {
	for _, name := range order {
		feature := features[name]
		rowErrs := feature.Errors()
		if len(rowErrs) == 0 {
			continue
		}
		logger.Warn("validation recorded errors",
			"column", name,
			"count", len(rowErrs))
		for i, re := range rowErrs {
			if i == maxLoggedErrors {
				logger.Warn("...")
				break
			}
			logger.Warn("validation error",
				"column", re.Column,
				"row", re.Row,
				"value", fmt.Sprintf("%v", re.Value),
				"type", fmt.Sprintf("%T", re.Value),
				"reason", re.Reason)
		}
	}
}
