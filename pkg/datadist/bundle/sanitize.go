package bundle

import (
	"strings"
	"unicode"
)

// diacritics folds the common Latin accented ranges to plain ASCII so object
// keys stay portable across storage backends.
var diacritics = map[rune]rune{
	'Ç': 'C', 'ç': 'c',
	'Ñ': 'N', 'ñ': 'n',
}

func foldLatin(r rune) (rune, bool) {
	switch {
	case r >= 'À' && r <= 'Å':
		return 'A', true
	case r >= 'à' && r <= 'å':
		return 'a', true
	case r >= 'È' && r <= 'Ë':
		return 'E', true
	case r >= 'è' && r <= 'ë':
		return 'e', true
	case r >= 'Ì' && r <= 'Ï':
		return 'I', true
	case r >= 'ì' && r <= 'ï':
		return 'i', true
	case r >= 'Ò' && r <= 'Ö':
		return 'O', true
	case r >= 'ò' && r <= 'ö':
		return 'o', true
	case r >= 'Ù' && r <= 'Ü':
		return 'U', true
	case r >= 'ù' && r <= 'ü':
		return 'u', true
	}
	if folded, ok := diacritics[r]; ok {
		return folded, true
	}
	return 0, false
}

// sanitizeKeySegment converts one object-key path segment to printable ASCII,
// folding Latin diacritics where an equivalent exists and replacing anything
// else with a hyphen. Slashes are treated like any other unsafe rune so a
// segment cannot smuggle extra path levels into a key.
func sanitizeKeySegment(segment string) string {
	if segment == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('-')
		case r < 128 && unicode.IsPrint(r):
			b.WriteRune(r)
		default:
			if folded, ok := foldLatin(r); ok {
				b.WriteRune(folded)
			} else {
				b.WriteRune('-')
			}
		}
	}
	return b.String()
}

// sanitizeObjectKey sanitizes every segment of a slash-separated object key.
func sanitizeObjectKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = sanitizeKeySegment(seg)
	}
	return strings.Join(segments, "/")
}
