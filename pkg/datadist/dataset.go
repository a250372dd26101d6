package datadist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/datadist/dataset-distribute/pkg/datadist/bundle"
)

// approvedNamePattern is the bit-exact dataset name constraint, checked
// after lower-casing and normalizing spaces and hyphens to underscores.
var approvedNamePattern = regexp.MustCompile(`^[a-z0-9_\-]*$`)

// supportingFilesLabel is the default bundle directory for extra files added
// without an explicit label.
const supportingFilesLabel = "supporting_files"

// associatesMetaKey is the metadata field holding a file's same-row
// cross-references.
const associatesMetaKey = "associates"

// ApprovedName normalizes a dataset name (lower-case, spaces and hyphens to
// underscores) and rejects anything that still fails the approved pattern.
func ApprovedName(name string) (string, error) {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	if !approvedNamePattern.MatchString(name) {
		return "", fmt.Errorf(
			"%w: dataset names may only include lowercase alphanumeric, underscore, and hyphen characters, received %q",
			ErrConfig, name)
	}
	return name, nil
}

// Dataset binds a manifest to the packaging configuration needed to turn it
// into a distribution bundle: which columns hold files, how those columns
// are labeled inside the bundle, which columns become per-file metadata, and
// any extra supporting files.
type Dataset struct {
	data   *Manifest
	name   string
	owner  string
	readme *README

	metadataColumns []string
	pathColumns     []string
	columnLabels    map[string]string
	extraFiles      map[string][]string

	pusher *bundle.Pusher
	logger *slog.Logger
}

// DatasetOption configures a Dataset under construction.
type DatasetOption func(*Dataset)

// WithPusher attaches the push collaborator used when Distribute is asked to
// upload the finished bundle.
func WithPusher(p *bundle.Pusher) DatasetOption {
	return func(d *Dataset) { d.pusher = p }
}

// WithDatasetLogger routes dataset logging through the given logger.
func WithDatasetLogger(logger *slog.Logger) DatasetOption {
	return func(d *Dataset) { d.logger = logger }
}

// NewDataset creates a dataset from an already-parsed manifest. The name is
// normalized and checked against the approved pattern up front.
func NewDataset(data *Manifest, name, owner, readmePath string, opts ...DatasetOption) (*Dataset, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: datasets may only be initialized with a csv path or a manifest, received nil", ErrConfig)
	}

	approved, err := ApprovedName(name)
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		data:         data,
		name:         approved,
		owner:        owner,
		columnLabels: make(map[string]string),
		extraFiles:   make(map[string][]string),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	readme, err := NewREADME(readmePath, d.logger)
	if err != nil {
		return nil, err
	}
	d.readme = readme

	return d, nil
}

// NewDatasetFromCSV creates a dataset by reading the manifest from a CSV
// file on disk.
func NewDatasetFromCSV(csvPath, name, owner, readmePath string, opts ...DatasetOption) (*Dataset, error) {
	data, err := ReadCSVFile(csvPath)
	if err != nil {
		return nil, err
	}
	return NewDataset(data, name, owner, readmePath, opts...)
}

// Data returns the underlying manifest.
func (d *Dataset) Data() *Manifest { return d.data }

// Name returns the approved dataset name.
func (d *Dataset) Name() string { return d.name }

// Owner returns the package owner attached to the dataset name on push.
func (d *Dataset) Owner() string { return d.owner }

// Readme returns the dataset's README handle.
func (d *Dataset) Readme() *README { return d.readme }

func (d *Dataset) checkColumns(columns []string) error {
	for _, col := range columns {
		if !d.data.HasColumn(col) {
			return fmt.Errorf("%w: column %q was not found in the dataset", ErrConfig, col)
		}
	}
	return nil
}

// SetMetadataColumns selects the columns whose values are attached as
// metadata to every file packaged from the same row.
func (d *Dataset) SetMetadataColumns(columns []string) error {
	if err := d.checkColumns(columns); err != nil {
		return err
	}
	d.metadataColumns = append([]string(nil), columns...)
	return nil
}

// SetPathColumns explicitly overrides which columns are used for file
// distribution instead of the schema's path-like columns.
func (d *Dataset) SetPathColumns(columns []string) error {
	if err := d.checkColumns(columns); err != nil {
		return err
	}
	d.pathColumns = append([]string(nil), columns...)
	return nil
}

// SetColumnLabels overrides the bundle directory label used for a path
// column (by default the column name itself).
func (d *Dataset) SetColumnLabels(labels map[string]string) error {
	cols := make([]string, 0, len(labels))
	for col := range labels {
		cols = append(cols, col)
	}
	if err := d.checkColumns(cols); err != nil {
		return err
	}
	for col, label := range labels {
		d.columnLabels[col] = label
	}
	return nil
}

// SetExtraFiles registers supporting files grouped under bundle directory
// labels. Every path must exist at registration time.
func (d *Dataset) SetExtraFiles(files map[string][]string) error {
	converted := make(map[string][]string, len(files))
	for label, group := range files {
		for _, f := range group {
			resolved, err := ResolveExistingPath(f)
			if err != nil {
				return err
			}
			converted[label] = append(converted[label], resolved)
		}
	}
	d.extraFiles = converted
	return nil
}

// AddExtraFiles registers supporting files under the default
// "supporting_files" label.
func (d *Dataset) AddExtraFiles(files []string) error {
	return d.SetExtraFiles(map[string][]string{supportingFilesLabel: files})
}

// AddUsageDoc appends usage documentation (a local document's contents or a
// link to an external resource) to the README.
func (d *Dataset) AddUsageDoc(docOrLink string) error {
	_, err := d.readme.AppendStandards(docOrLink, "")
	return err
}

// AddLicense appends license details (a local document's contents or a link
// to an external resource) to the README.
func (d *Dataset) AddLicense(docOrLink string) error {
	_, err := d.readme.AppendStandards("", docOrLink)
	return err
}

// DistributeResult is the outcome of a Distribute call: the built package
// and, when a push destination was given, the recorded version.
type DistributeResult struct {
	Package *bundle.Package
	Version *bundle.PackageVersion
}

type distributeConfig struct {
	pushURI          string
	message          string
	attachAssociates bool
	onProgress       ProgressFunc
}

// DistributeOption configures a Distribute call.
type DistributeOption func(*distributeConfig)

// WithPush uploads the finished bundle to the given destination with an
// optional version message.
func WithPush(destination, message string) DistributeOption {
	return func(c *distributeConfig) {
		c.pushURI = destination
		c.message = message
	}
}

// WithoutAssociates skips attaching same-row cross-references to each
// packaged file's metadata.
func WithoutAssociates() DistributeOption {
	return func(c *distributeConfig) { c.attachAssociates = false }
}

// WithConstructionProgress installs a progress callback for the package
// construction pass.
func WithConstructionProgress(fn ProgressFunc) DistributeOption {
	return func(c *distributeConfig) { c.onProgress = fn }
}

// metaAccum tracks the ordered metadata values accumulated for one
// (logical key, metadata column) pair, plus whether every value so far has
// been identical. Once values diverge the flag flips permanently so the
// final entry keeps the full positional sequence.
type metaAccum struct {
	values    []any
	reducible bool
}

// Distribute validates the manifest, assembles the package, and optionally
// pushes it.
//
// Construction runs once per path column, then once per row within that
// column: each cell's resolved physical path maps to the logical key
// "{label}/{hash}_{filename}", so identical resolved paths collapse to one
// entry with merged metadata while distinct paths never collide even when
// filenames match. Directories become directory entries without metadata or
// deduplication. Path cells are rewritten in place to their logical keys and
// the rewritten manifest ships inside the bundle as metadata.csv. Generated
// artifacts are staged in a temporary directory that is removed on every
// exit path.
func (d *Dataset) Distribute(ctx context.Context, opts ...DistributeOption) (*DistributeResult, error) {
	cfg := distributeConfig{attachAssociates: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Re-check the name: it was approved at construction but the dataset may
	// have been reconfigured since.
	name, err := ApprovedName(d.name)
	if err != nil {
		return nil, err
	}

	pkg := bundle.New()

	tmpdir, err := os.MkdirTemp("", "datadist-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	if err := d.stageReadme(pkg, tmpdir); err != nil {
		return nil, err
	}

	vds, err := Validate(d.data, WithLogger(d.logger))
	if err != nil {
		return nil, err
	}

	fpCols := d.pathColumns
	if len(fpCols) == 0 {
		fpCols = vds.Schema.PathColumns()
	}

	associates, err := d.constructEntries(pkg, vds, fpCols, cfg.onProgress)
	if err != nil {
		return nil, err
	}

	if cfg.attachAssociates {
		for _, assoc := range associates {
			if assoc == nil {
				continue
			}
			for _, lk := range assoc {
				entry, err := pkg.Get(lk)
				if err != nil {
					return nil, err
				}
				// Last writer wins across rows sharing a logical key.
				entry.MergeMeta(bundle.Meta{associatesMetaKey: assoc})
			}
		}
	}

	metaPath := filepath.Join(tmpdir, "metadata.csv")
	if err := vds.Data.WriteCSVFile(metaPath); err != nil {
		return nil, err
	}
	if err := pkg.Set("metadata.csv", metaPath, nil); err != nil {
		return nil, err
	}

	for label, files := range d.extraFiles {
		for _, f := range files {
			if err := pkg.Set(fmt.Sprintf("%s/%s", label, filepath.Base(f)), f, nil); err != nil {
				return nil, err
			}
		}
	}

	result := &DistributeResult{Package: pkg}
	if cfg.pushURI != "" {
		if d.pusher == nil {
			return nil, fmt.Errorf("%w: a pusher is required to push to %q", ErrConfig, cfg.pushURI)
		}
		version, err := d.pusher.Push(ctx, pkg, bundle.PushRequest{
			Name:        fmt.Sprintf("%s/%s", d.owner, name),
			Destination: cfg.pushURI,
			Message:     cfg.message,
		})
		if err != nil {
			return nil, err
		}
		result.Version = version
	}

	return result, nil
}

// stageReadme rewrites the README's local file links to reference_files/
// keys, registers the referenced files, and stages the updated document.
func (d *Dataset) stageReadme(pkg *bundle.Package, tmpdir string) error {
	text, err := d.readme.Text()
	if err != nil {
		return err
	}
	refs, err := d.readme.ReferencedFiles()
	if err != nil {
		return err
	}
	for _, rf := range refs {
		replaced := fmt.Sprintf("reference_files/%s", filepath.Base(rf.Resolved))
		text = strings.ReplaceAll(text, rf.Target, replaced)
		if rf.Dir {
			if err := pkg.SetDir(replaced, rf.Resolved); err != nil {
				return err
			}
		} else {
			if err := pkg.Set(replaced, rf.Resolved, nil); err != nil {
				return err
			}
		}
	}

	readmePath := filepath.Join(tmpdir, "README.md")
	if err := os.WriteFile(readmePath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to stage readme: %w", err)
	}
	return pkg.Set("README.md", readmePath, nil)
}

// constructEntries walks the path columns row by row, registering file and
// directory entries, accumulating metadata per logical key, and recording
// the per-row associate map. Metadata reduction is finalized in a single
// post-pass once all rows have contributed.
func (d *Dataset) constructEntries(
	pkg *bundle.Package,
	vds *ValidatedDataset,
	fpCols []string,
	onProgress ProgressFunc,
) ([]map[string]string, error) {
	rows := vds.Data.Len()
	associates := make([]map[string]string, rows)
	accums := make(map[string]map[string]*metaAccum)

	total := len(fpCols) * rows
	done := 0
	step := func() {
		done++
		if onProgress != nil {
			onProgress(done, total)
		}
	}

	for _, col := range fpCols {
		label := col
		if mapped, ok := d.columnLabels[col]; ok {
			label = mapped
		}

		vals, err := vds.Data.Column(col)
		if err != nil {
			return nil, err
		}

		for i, val := range vals {
			raw, err := cellPathString(col, i, val)
			if err != nil {
				return nil, err
			}
			physical, err := ResolveExistingPath(raw)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", col, i, err)
			}
			unique, err := CreateUniqueLogicalKey(physical)
			if err != nil {
				return nil, err
			}
			logicalKey := fmt.Sprintf("%s/%s", label, unique)

			info, err := os.Stat(physical)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, physical)
			}

			if info.Mode().IsRegular() {
				if err := vds.Data.SetCell(col, i, logicalKey); err != nil {
					return nil, err
				}
				if err := d.accumulateFileEntry(pkg, accums, vds, logicalKey, physical, i); err != nil {
					return nil, err
				}
				if associates[i] == nil {
					associates[i] = make(map[string]string)
				}
				associates[i][label] = logicalKey
			} else {
				if err := vds.Data.SetCell(col, i, logicalKey); err != nil {
					return nil, err
				}
				if err := pkg.SetDir(logicalKey, physical); err != nil {
					return nil, err
				}
			}
			step()
		}
	}

	finalizeMetadata(pkg, accums)
	return associates, nil
}

// accumulateFileEntry registers a file entry on first sight of its logical
// key, or appends this row's metadata values when an earlier row already
// referenced the same physical file.
func (d *Dataset) accumulateFileEntry(
	pkg *bundle.Package,
	accums map[string]map[string]*metaAccum,
	vds *ValidatedDataset,
	logicalKey, physical string,
	row int,
) error {
	rowMeta := make(map[string]any, len(d.metadataColumns))
	for _, metaCol := range d.metadataColumns {
		v, err := vds.Data.Cell(metaCol, row)
		if err != nil {
			return err
		}
		v = normalizeMetaValue(v)
		if !isJSONSerializable(v) {
			return fmt.Errorf(
				"%w: column %q row %d holds %T (%v); only string, int, float, bool and nil are allowed in metadata",
				ErrSerialization, metaCol, row, v, v)
		}
		rowMeta[metaCol] = v
	}

	if pkg.Has(logicalKey) {
		byCol := accums[logicalKey]
		for metaCol, v := range rowMeta {
			acc := byCol[metaCol]
			acc.values = append(acc.values, v)
			if acc.reducible && v != acc.values[0] {
				acc.reducible = false
			}
		}
		return nil
	}

	if err := pkg.Set(logicalKey, physical, nil); err != nil {
		return err
	}
	byCol := make(map[string]*metaAccum, len(rowMeta))
	for metaCol, v := range rowMeta {
		byCol[metaCol] = &metaAccum{values: []any{v}, reducible: true}
	}
	accums[logicalKey] = byCol
	return nil
}

// finalizeMetadata collapses every still-reducible field to its scalar value
// and keeps diverged fields as full ordered sequences, preserving positional
// correspondence across sibling fields of the same entry.
func finalizeMetadata(pkg *bundle.Package, accums map[string]map[string]*metaAccum) {
	for logicalKey, byCol := range accums {
		entry, err := pkg.Get(logicalKey)
		if err != nil {
			continue
		}
		meta := make(bundle.Meta, len(byCol))
		for metaCol, acc := range byCol {
			if acc.reducible {
				meta[metaCol] = acc.values[0]
			} else {
				meta[metaCol] = append([]any(nil), acc.values...)
			}
		}
		entry.SetMeta(meta)
	}
}

func cellPathString(col string, row int, v any) (string, error) {
	switch t := v.(type) {
	case Path:
		return string(t), nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("%w: column %q row %d holds %T (%v), not a path", ErrType, col, row, v, v)
	}
}

// normalizeMetaValue narrows numeric widths so equality checks during
// metadata merging behave.
func normalizeMetaValue(v any) any {
	switch t := v.(type) {
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func isJSONSerializable(v any) bool {
	switch v.(type) {
	case nil, string, int, float64, bool:
		return true
	default:
		return false
	}
}

func (d *Dataset) String() string {
	return fmt.Sprintf("<Dataset [package: %s/%s, rows: %d]>", d.owner, d.name, d.data.Len())
}
