//go:build property
// +build property

package playground

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var sourceParts = []string{
	"const ", "let ", "function ", "return ", "=>", "{", "}", "(", ")",
	";", "\n", "\n\n", "    ", "\t", " ", "x", "units", "500", "\"é\"",
	"'日本'", "`${a}`", "// comment", "🚀", "%", "#", "+", "&", "=",
}

// sourceLike builds strings out of fragments that show up in real programs,
// including indentation, blank lines and non-ASCII literals.
func sourceLike() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(sourceParts)-1)).Map(func(idx []int) string {
		var b strings.Builder
		for _, i := range idx {
			b.WriteString(sourceParts[i])
		}
		return b.String()
	})
}

func TestCodecRoundTripProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 2000
	properties := gopter.NewProperties(parameters)
	codec := NewCodec()

	properties.Property("source-like text round-trips exactly", prop.ForAll(
		func(s string) bool {
			got, err := codec.DecodeInitialState(codec.Fragment(s))
			return err == nil && got == s
		},
		sourceLike(),
	))

	properties.Property("shareable links decode to the source", prop.ForAll(
		func(s string) bool {
			link := codec.BuildShareableLink(s)
			if !strings.HasPrefix(link, "/play/#code/") {
				return false
			}
			got, err := codec.DecodeInitialState(strings.TrimPrefix(link, "/play/#"))
			return err == nil && got == s
		},
		sourceLike(),
	))

	properties.Property("unrecognized fragments fall back to the example", prop.ForAll(
		func(s string) bool {
			if strings.HasPrefix(s, "src=") || strings.HasPrefix(s, "code/") ||
				strings.HasPrefix(s, "#src=") || strings.HasPrefix(s, "#code/") {
				return true
			}
			got, err := codec.DecodeInitialState(s)
			return err == nil && got == ExampleSource
		},
		gen.AnyString(),
	))

	properties.Property("compressed decoding never fails", prop.ForAll(
		func(s string) bool {
			_, err := codec.DecodeInitialState("code/" + s)
			return err == nil
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
