// Package playground converts between editor source text and the page
// fragment that carries it, so playground state can live in a shareable
// link without a server round trip.
//
// Two fragment layouts are read:
//
//	src=<percent-encoded text>    legacy links
//	code/<lz-string payload>      current links
//
// Only the current layout is ever written. Anything else decodes to the
// built-in example.
package playground

import (
	"net/url"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/conneroisu/tstlplay/internal/errors"
	"github.com/conneroisu/tstlplay/internal/lzstring"
)

// DefaultBasePath is the route the playground page is served from.
const DefaultBasePath = "/play/"

// Compressor is a reversible text compressor whose output is safe inside a
// URL fragment. DecompressFromURLSafe(CompressToURLSafe(s)) must equal s.
type Compressor interface {
	CompressToURLSafe(text string) string
	DecompressFromURLSafe(payload string) (string, error)
}

// LimitedCompressor is a Compressor that can stop decompressing once the
// output passes maxUnits UTF-16 code units.
type LimitedCompressor interface {
	Compressor
	DecompressFromURLSafeLimit(payload string, maxUnits int) (string, error)
}

// History replaces the fragment of the current page address without adding
// a navigation entry.
type History interface {
	ReplaceFragment(fragment string) error
}

// State is a decoded fragment.
type State struct {
	SourceText string `json:"source"`
	Format     Format `json:"-"`
}

// Codec maps source text to fragments and links. It is safe for concurrent
// use; the fallback example may be swapped while decoding.
type Codec struct {
	compressor Compressor
	basePath   string
	maxBytes   int64
	example    atomic.Pointer[string]
}

// Option configures a Codec.
type Option func(*Codec)

// WithCompressor replaces the default lz-string compressor.
func WithCompressor(c Compressor) Option {
	return func(codec *Codec) {
		codec.compressor = c
	}
}

// WithBasePath sets the path shareable links point at. A missing trailing
// slash is added.
func WithBasePath(path string) Option {
	return func(codec *Codec) {
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		codec.basePath = path
	}
}

// WithMaxSourceBytes caps the size of decoded source text. Compressed
// payloads that would expand past n decode to the empty string; legacy
// payloads past n are rejected. Zero or less means no cap.
func WithMaxSourceBytes(n int64) Option {
	return func(codec *Codec) {
		codec.maxBytes = n
	}
}

// WithExample sets the fallback source.
func WithExample(src string) Option {
	return func(codec *Codec) {
		codec.SetExample(src)
	}
}

// NewCodec creates a codec using lz-string, the /play/ base path and the
// built-in example unless options say otherwise.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		compressor: lzstring.URIComponent{},
		basePath:   DefaultBasePath,
	}
	c.SetExample(ExampleSource)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BasePath returns the playground route used in shareable links.
func (c *Codec) BasePath() string {
	return c.basePath
}

// Example returns the current fallback source.
func (c *Codec) Example() string {
	return *c.example.Load()
}

// SetExample swaps the fallback source.
func (c *Codec) SetExample(src string) {
	c.example.Store(&src)
}

// Decode resolves a fragment to source text and reports which layout it
// used. A single leading '#' is ignored so location.hash can be passed
// as is.
//
// Compressed payloads that fail to decompress resolve to the empty string
// with a nil error. Legacy payloads with broken percent-encoding return a
// decode error; that layout is only read for old links and is not repaired.
func (c *Codec) Decode(fragment string) (State, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	format := DetectFormat(fragment)

	switch format {
	case FormatRawPercentEncoded:
		src, err := decodeLegacy(strings.TrimPrefix(fragment, legacyPrefix))
		if err != nil {
			return State{Format: format}, err
		}
		if c.maxBytes > 0 && int64(len(src)) > c.maxBytes {
			return State{Format: format}, errors.NewDecodeError(
				errors.ErrCodeSourceTooLarge,
				"legacy fragment exceeds the source size limit",
				nil,
			)
		}
		return State{SourceText: src, Format: format}, nil

	case FormatCompressed:
		payload := strings.TrimSpace(strings.TrimPrefix(fragment, compressedPrefix))
		return State{SourceText: c.decompress(payload), Format: format}, nil

	default:
		return State{SourceText: c.Example(), Format: FormatAbsent}, nil
	}
}

// decompress returns the text carried by payload, or "" when it is corrupt
// or larger than the configured cap.
func (c *Codec) decompress(payload string) string {
	var (
		src string
		err error
	)
	if limited, ok := c.compressor.(LimitedCompressor); ok && c.maxBytes > 0 {
		// Every UTF-16 code unit takes at least one UTF-8 byte.
		src, err = limited.DecompressFromURLSafeLimit(payload, int(c.maxBytes))
	} else {
		src, err = c.compressor.DecompressFromURLSafe(payload)
	}
	if err != nil || (c.maxBytes > 0 && int64(len(src)) > c.maxBytes) {
		return ""
	}
	return src
}

// DecodeInitialState returns the source a freshly loaded page should show
// for the given fragment.
func (c *Codec) DecodeInitialState(fragment string) (string, error) {
	state, err := c.Decode(fragment)
	return state.SourceText, err
}

// Fragment returns the fragment, without '#', that carries src.
func (c *Codec) Fragment(src string) string {
	return compressedPrefix + c.compressor.CompressToURLSafe(src)
}

// EncodeAndReplaceHistory writes src into the page address through h,
// replacing the current entry. It always writes the compressed layout.
func (c *Codec) EncodeAndReplaceHistory(h History, src string) error {
	return h.ReplaceFragment(c.Fragment(src))
}

// BuildShareableLink returns an absolute-path link, such as
// /play/#code/..., that opens the playground with src loaded.
func (c *Codec) BuildShareableLink(src string) string {
	return c.basePath + "#" + c.Fragment(src)
}

// DecodeLink decodes the fragment of a full or partial playground link. A
// value without '#' is treated as a bare fragment.
func (c *Codec) DecodeLink(link string) (State, error) {
	if _, fragment, ok := strings.Cut(link, "#"); ok {
		return c.Decode(fragment)
	}
	return c.Decode(link)
}

// decodeLegacy applies decodeURIComponent semantics: '+' stays a plus and
// the decoded bytes must be valid UTF-8.
func decodeLegacy(encoded string) (string, error) {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return "", errors.NewDecodeError(
			errors.ErrCodeMalformedFragment,
			"legacy fragment is not valid percent-encoding",
			err,
		)
	}
	if !utf8.ValidString(decoded) {
		return "", errors.NewDecodeError(
			errors.ErrCodeMalformedFragment,
			"legacy fragment does not decode to UTF-8",
			nil,
		)
	}
	return strings.TrimFunc(decoded, isJSSpace), nil
}

// isJSSpace reports whether String.prototype.trim removes r. It differs
// from unicode.IsSpace only in U+0085, which it keeps, and U+FEFF, which it
// removes.
func isJSSpace(r rune) bool {
	switch r {
	case '\u0085':
		return false
	case '\uFEFF':
		return true
	}
	return unicode.IsSpace(r)
}
