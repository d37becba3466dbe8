package playground

import "strings"

// Format identifies how source text is carried in a page fragment.
type Format int

const (
	// FormatAbsent means no recognized prefix; the example is used.
	FormatAbsent Format = iota
	// FormatRawPercentEncoded is the legacy "src=<percent-encoded>" layout.
	FormatRawPercentEncoded
	// FormatCompressed is the current "code/<lz-string>" layout.
	FormatCompressed
)

const (
	legacyPrefix     = "src="
	compressedPrefix = "code/"
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case FormatRawPercentEncoded:
		return "legacy"
	case FormatCompressed:
		return "compressed"
	case FormatAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// DetectFormat inspects the fragment prefix. Prefixes are checked in a fixed
// order with the legacy layout first; new layouts go after the existing ones.
func DetectFormat(fragment string) Format {
	switch {
	case strings.HasPrefix(fragment, legacyPrefix):
		return FormatRawPercentEncoded
	case strings.HasPrefix(fragment, compressedPrefix):
		return FormatCompressed
	default:
		return FormatAbsent
	}
}
