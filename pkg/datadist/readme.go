package datadist

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// linkPattern matches markdown inline links: [text](target). The closing
// bracket is located first because parentheses are legal inside the bracket
// portion.
var linkPattern = regexp.MustCompile(`\[[^\]]*\]\([^\)]*\)`)

// externalPrefixes mark link targets that are never resolved as files.
var externalPrefixes = []string{"https://", "http://", "s3://", "gs://"}

// ReferencedFile is one local file or directory a README links to.
type ReferencedFile struct {
	// Target is the raw link target as written in the README
	Target string

	// Resolved is the absolute path the target resolves to
	Resolved string

	// Dir reports whether the resolved path is a directory
	Dir bool
}

// README wraps a markdown readme document and the file references it makes.
type README struct {
	fp     string
	text   string
	logger *slog.Logger
}

// NewREADME loads a README handle for the given markdown file. A directory
// is a configuration error.
func NewREADME(path string, logger *slog.Logger) (*README, error) {
	abs, err := ResolveExistingPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: readme %q is a directory", ErrConfig, abs)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &README{fp: abs, logger: logger}, nil
}

// Path returns the resolved filepath of the readme document.
func (r *README) Path() string { return r.fp }

// Text returns the readme contents, including any appended standards
// sections, reading the file lazily on first use.
func (r *README) Text() (string, error) {
	if r.text != "" {
		return r.text, nil
	}
	raw, err := os.ReadFile(r.fp)
	if err != nil {
		return "", fmt.Errorf("failed to read readme: %w", err)
	}
	r.text = string(raw)
	return r.text, nil
}

// ReferencedFiles scans the readme for markdown links whose targets are
// local files or directories. Targets beginning with http(s)://, s3://,
// gs:// or "#" are external/anchor references and are left untouched.
// Relative targets resolve against the readme's own directory. A target that
// resolves to nothing is logged as a warning and skipped; the link stays
// as-is in the document.
func (r *README) ReferencedFiles() ([]ReferencedFile, error) {
	text, err := r.Text()
	if err != nil {
		return nil, err
	}

	var files []ReferencedFile
	seen := make(map[string]struct{})
	for _, match := range linkPattern.FindAllString(text, -1) {
		target := linkTarget(match)
		if target == "" || target[0] == '#' || isExternalTarget(target) {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}

		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(r.fp), resolved)
		}
		resolved = filepath.Clean(resolved)

		info, err := os.Stat(resolved)
		if err != nil {
			r.logger.Warn("could not find file referenced in readme", "target", target)
			continue
		}
		files = append(files, ReferencedFile{Target: target, Resolved: resolved, Dir: info.IsDir()})
	}
	return files, nil
}

// AppendStandards attaches usage and/or license sections to the readme text.
// A value that looks like an external link is referenced; anything else is
// treated as a local document whose contents are appended inline.
func (r *README) AppendStandards(usageDocOrLink, licenseDocOrLink string) (string, error) {
	text, err := r.Text()
	if err != nil {
		return "", err
	}

	if usageDocOrLink != "" {
		if isExternalTarget(usageDocOrLink) {
			text += fmt.Sprintf(
				"\n### Usage\nFor documentation on how to use and interact with this dataset please refer to [%s](%s).",
				usageDocOrLink, usageDocOrLink)
		} else {
			contents, err := readStandardsDoc(usageDocOrLink)
			if err != nil {
				return "", err
			}
			text += "\n" + contents
		}
	}

	if licenseDocOrLink != "" {
		if isExternalTarget(licenseDocOrLink) {
			text += fmt.Sprintf(
				"\n### License\nFor questions on licensing please refer to [%s](%s).",
				licenseDocOrLink, licenseDocOrLink)
		} else {
			contents, err := readStandardsDoc(licenseDocOrLink)
			if err != nil {
				return "", err
			}
			text += "\n" + contents
		}
	}

	r.text = text
	return r.text, nil
}

func readStandardsDoc(path string) (string, error) {
	abs, err := ResolveExistingPath(path)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", abs, err)
	}
	return string(raw), nil
}

// linkTarget extracts the real target from a [text](target ...) match: the
// content after the closing bracket's "(" up to the final ")", with any
// hover text after the first space discarded.
func linkTarget(match string) string {
	idx := strings.Index(match, "]")
	if idx < 0 || idx+2 >= len(match) {
		return ""
	}
	inner := match[idx+2 : len(match)-1]
	fields := strings.Fields(inner)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isExternalTarget(target string) bool {
	lower := strings.ToLower(target)
	for _, prefix := range externalPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}
