// Package datadist validates tabular manifests against per-column schemas
// and assembles the referenced files into content-addressed distribution
// bundles.
//
// A manifest is an ordered table whose columns hold either scalar metadata
// or filesystem paths. Validation checks (and optionally coerces) every cell
// against a FeatureDefinition, producing a Schema of ValidatedFeatures.
// A Dataset then walks the validated path columns, deduplicates physical
// files into bundle entries keyed by deterministic logical keys, merges
// per-file metadata, and records cross-references ("associates") between
// files that originate from the same manifest row.
//
// Bundle construction and upload are delegated to the bundle subpackage,
// which provides the content-addressed Package builder and a Pusher that
// writes packages through pluggable blob stores (memory, filesystem, S3).
package datadist
