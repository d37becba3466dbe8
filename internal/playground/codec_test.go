package playground

import (
	stderrors "errors"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tstlplay/internal/errors"
	"github.com/conneroisu/tstlplay/internal/lzstring"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		fragment string
		want     Format
	}{
		{"src=print(1)", FormatRawPercentEncoded},
		{"code/BYUwNmD2AEDOCuAnA", FormatCompressed},
		{"src=code/xyz", FormatRawPercentEncoded},
		{"code/src=xyz", FormatCompressed},
		{"", FormatAbsent},
		{"garbage", FormatAbsent},
		{"Src=abc", FormatAbsent},
		{"code", FormatAbsent},
		{"#code/abc", FormatAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.fragment, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.fragment))
		})
	}
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "legacy", FormatRawPercentEncoded.String())
	assert.Equal(t, "compressed", FormatCompressed.String())
	assert.Equal(t, "absent", FormatAbsent.String())
	assert.Equal(t, "unknown", Format(42).String())
}

func TestDecodeCompressedRoundTrip(t *testing.T) {
	codec := NewCodec()

	sources := []string{
		"",
		"print(1)",
		"   ",
		"\n\tindented\n",
		"const a = 1;\nconst b = 2;\nprint(a + b);\n",
		"const greeting = \"héllo wörld\";",
		"// 日本語のコメント\nlet x = \"🚀\";",
		ExampleSource,
	}

	for _, src := range sources {
		got, err := codec.DecodeInitialState("code/" + lzstring.CompressToEncodedURIComponent(src))
		require.NoError(t, err)
		assert.Equal(t, src, got)
	}
}

func TestDecodePrintScenario(t *testing.T) {
	codec := NewCodec()
	x := lzstring.CompressToEncodedURIComponent("print(1)")

	got, err := codec.DecodeInitialState("code/" + x)
	require.NoError(t, err)
	assert.Equal(t, "print(1)", got)
}

func TestDecodeCompressedTrimsPayload(t *testing.T) {
	codec := NewCodec()
	payload := lzstring.CompressToEncodedURIComponent("print(1)")

	got, err := codec.DecodeInitialState("code/  " + payload + "\n")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", got)
}

func TestDecodeCorruptCompressedPayload(t *testing.T) {
	codec := NewCodec()

	for _, fragment := range []string{
		"code/not-valid-compressed-data",
		"code/",
		"code/   ",
	} {
		state, err := codec.Decode(fragment)
		require.NoError(t, err, fragment)
		assert.Equal(t, "", state.SourceText, fragment)
		assert.Equal(t, FormatCompressed, state.Format, fragment)
	}
}

type failingCompressor struct{}

func (failingCompressor) CompressToURLSafe(text string) string { return text }

func (failingCompressor) DecompressFromURLSafe(string) (string, error) {
	return "partial", stderrors.New("broken")
}

func TestDecodeDiscardsOutputOfFailedDecompression(t *testing.T) {
	codec := NewCodec(WithCompressor(failingCompressor{}))

	got, err := codec.DecodeInitialState("code/anything")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

// exampleLink is the fragment lz-string's browser build produces for
// ExampleSource.
const exampleLink = "code/PTAEBEFMGMBsEMBOlSQB4AcD2BnSATUAQQAUBJAKABcBPDFANRiq0VAF5QBtAOwFcAtgCNIiADSh+w0RKkjEAXQDcFCvhgJkoAGZ8e0KgEssPHYZ74Aqj0NUcZHgCV4+Q3xwAKKgAtDOAFygAG5YhvgS0JA8VKKBTAasEogubgGSgvIAlIHWtlzKahpIKOYxiNrwkaC5VKAA3hSgTaB+AGKIhlH4Hlg+sdU2VNmgQlhYsJDwPCrNoADmhkGQJKHRntilOEQCWHpUgXKiwyFhKgC+qhQg1Xig6nDFhKRkLabQWOoUuvpGJqAmRCEhlgthoAGF4DgqF5fGkTuFQNBIWUcoMJFQkHNIFQADJYJG-HhxZisTL1RrNd48KGgPS2HAcMwWGr2JwpdxeTHYvEE4w8CQAVgADELMjNKSYadoOl0GZw6XYAHTaYFlDwKjgAPkRyNEiraMos6sGmTFqlm2lYoA8VKlhsIWG0OntODJDVmFvtioWSxWmw8wrNswuFyAA"

func TestExampleLinkMatchesBrowser(t *testing.T) {
	codec := NewCodec()
	assert.Equal(t, exampleLink, codec.Fragment(ExampleSource))

	got, err := codec.DecodeInitialState(exampleLink)
	require.NoError(t, err)
	assert.Equal(t, ExampleSource, got)
}

func TestDecodeEnforcesMaxSourceBytes(t *testing.T) {
	codec := NewCodec(WithMaxSourceBytes(64))

	t.Run("compressed within limit", func(t *testing.T) {
		got, err := codec.DecodeInitialState("code/" + lzstring.CompressToEncodedURIComponent("print(1)"))
		require.NoError(t, err)
		assert.Equal(t, "print(1)", got)
	})

	t.Run("compressed expanding past limit", func(t *testing.T) {
		state, err := codec.Decode("code/" + lzstring.CompressToEncodedURIComponent(strings.Repeat("a", 100_000)))
		require.NoError(t, err)
		assert.Equal(t, "", state.SourceText)
		assert.Equal(t, FormatCompressed, state.Format)
	})

	t.Run("multi-byte text counted in bytes", func(t *testing.T) {
		got, err := codec.DecodeInitialState("code/" + lzstring.CompressToEncodedURIComponent(strings.Repeat("値", 30)))
		require.NoError(t, err)
		assert.Equal(t, "", got)
	})

	t.Run("legacy past limit", func(t *testing.T) {
		_, err := codec.Decode("src=" + url.PathEscape(strings.Repeat("b", 65)))
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeSourceTooLarge))
	})

	t.Run("plain compressor", func(t *testing.T) {
		plain := NewCodec(WithCompressor(identityCompressor{}), WithMaxSourceBytes(4))
		got, err := plain.DecodeInitialState("code/longer than four")
		require.NoError(t, err)
		assert.Equal(t, "", got)
	})
}

type identityCompressor struct{}

func (identityCompressor) CompressToURLSafe(text string) string { return text }

func (identityCompressor) DecompressFromURLSafe(payload string) (string, error) {
	return payload, nil
}

func TestDecodeLegacy(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name     string
		fragment string
		want     string
	}{
		{"plain", "src=print(1)", "print(1)"},
		{"escaped", "src=" + url.PathEscape("local x = \"a b\""), "local x = \"a b\""},
		{"plus is literal", "src=1+2", "1+2"},
		{"trimmed after decoding", "src=%20%20print(1)%0A", "print(1)"},
		{"utf-8", "src=%C3%A9t%C3%A9", "été"},
		{"empty", "src=", ""},
		{"takes precedence over code/", "src=code/xyz", "code/xyz"},
		{"byte order mark trimmed", "src=%EF%BB%BFprint(1)", "print(1)"},
		{"next line kept", "src=%C2%85print(1)%C2%85", "\u0085print(1)\u0085"},
		{"no-break space trimmed", "src=%C2%A0print(1)%E2%80%A8", "print(1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := codec.Decode(tt.fragment)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state.SourceText)
			assert.Equal(t, FormatRawPercentEncoded, state.Format)
		})
	}
}

func TestDecodeLegacyMalformed(t *testing.T) {
	codec := NewCodec()

	for _, fragment := range []string{"src=%zz", "src=100%", "src=%FF%FE"} {
		_, err := codec.DecodeInitialState(fragment)
		require.Error(t, err, fragment)
		assert.True(t, errors.IsType(err, errors.ErrorTypeDecode), fragment)
		assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedFragment), fragment)
	}
}

func TestDecodeFallsBackToExample(t *testing.T) {
	codec := NewCodec()

	for _, fragment := range []string{"", "garbage", "#", "share/abc", "SRC=abc"} {
		state, err := codec.Decode(fragment)
		require.NoError(t, err)
		assert.Equal(t, ExampleSource, state.SourceText, fragment)
		assert.Equal(t, FormatAbsent, state.Format, fragment)
	}

	first, _ := codec.DecodeInitialState("")
	second, _ := codec.DecodeInitialState("")
	assert.Equal(t, first, second)
}

func TestDecodeAcceptsLeadingHash(t *testing.T) {
	codec := NewCodec()

	got, err := codec.DecodeInitialState("#" + codec.Fragment("print(1)"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)", got)

	got, err = codec.DecodeInitialState("#src=print(2)")
	require.NoError(t, err)
	assert.Equal(t, "print(2)", got)
}

func TestEncodeAndReplaceHistory(t *testing.T) {
	codec := NewCodec()
	history := NewMemoryHistory("src=print(0)")

	require.NoError(t, codec.EncodeAndReplaceHistory(history, "print(1)"))
	assert.Equal(t, 1, history.Writes())
	assert.True(t, strings.HasPrefix(history.Fragment(), "code/"))

	got, err := codec.DecodeInitialState(history.Fragment())
	require.NoError(t, err)
	assert.Equal(t, "print(1)", got)

	require.NoError(t, codec.EncodeAndReplaceHistory(history, ""))
	assert.Equal(t, 2, history.Writes())
	assert.Equal(t, "code/Q", history.Fragment())
}

func TestBuildShareableLink(t *testing.T) {
	codec := NewCodec()

	for _, src := range []string{"", "print(1)", ExampleSource, "const s = \"ü\";"} {
		link := codec.BuildShareableLink(src)
		require.True(t, strings.HasPrefix(link, "/play/#code/"), link)

		got, err := codec.DecodeInitialState(strings.TrimPrefix(link, "/play/#"))
		require.NoError(t, err)
		assert.Equal(t, src, got)
	}

	assert.Equal(t, codec.BuildShareableLink("x"), codec.BuildShareableLink("x"))
}

func TestWithBasePath(t *testing.T) {
	codec := NewCodec(WithBasePath("/playground"))
	assert.Equal(t, "/playground/", codec.BasePath())
	assert.True(t, strings.HasPrefix(codec.BuildShareableLink("x"), "/playground/#code/"))
}

func TestDecodeLink(t *testing.T) {
	codec := NewCodec()

	state, err := codec.DecodeLink("https://example.com" + codec.BuildShareableLink("print(1)"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)", state.SourceText)

	state, err = codec.DecodeLink("https://example.com/play/#src=print%282%29")
	require.NoError(t, err)
	assert.Equal(t, "print(2)", state.SourceText)

	state, err = codec.DecodeLink(codec.Fragment("bare"))
	require.NoError(t, err)
	assert.Equal(t, "bare", state.SourceText)
}

func TestSetExample(t *testing.T) {
	codec := NewCodec(WithExample("print('custom')"))
	got, _ := codec.DecodeInitialState("")
	assert.Equal(t, "print('custom')", got)

	codec.SetExample("print('reloaded')")
	got, _ = codec.DecodeInitialState("")
	assert.Equal(t, "print('reloaded')", got)
}

func TestCodecProperties(t *testing.T) {
	codec := NewCodec()
	properties := gopter.NewProperties(nil)

	properties.Property("compressed fragments round-trip", prop.ForAll(
		func(s string) bool {
			if !utf8.ValidString(s) {
				return true
			}
			got, err := codec.DecodeInitialState(codec.Fragment(s))
			return err == nil && got == s
		},
		gen.AnyString(),
	))

	properties.Property("legacy fragments round-trip trimmed", prop.ForAll(
		func(s string) bool {
			got, err := codec.DecodeInitialState("src=" + url.PathEscape(s))
			return err == nil && got == strings.TrimFunc(s, isJSSpace)
		},
		gen.AlphaString(),
	))

	properties.Property("writes only the compressed layout", prop.ForAll(
		func(s string) bool {
			history := NewMemoryHistory("")
			if err := codec.EncodeAndReplaceHistory(history, s); err != nil {
				return false
			}
			return DetectFormat(history.Fragment()) == FormatCompressed
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
