package compiler

import (
	"context"
	"strings"

	"github.com/conneroisu/tstlplay/internal/playground"
)

// StaticCompiler serves precompiled output for known programs. It lets the
// playground run without Node.js installed; any other program gets a single
// diagnostic saying live compilation is unavailable.
type StaticCompiler struct {
	outputs map[string]string
}

// NewStaticCompiler returns a compiler that knows the built-in example.
func NewStaticCompiler() *StaticCompiler {
	return &StaticCompiler{
		outputs: map[string]string{
			normalize(playground.ExampleSource): playground.ExampleLua,
		},
	}
}

// Add registers the Lua output for source.
func (c *StaticCompiler) Add(source, lua string) {
	c.outputs[normalize(source)] = lua
}

// Compile implements Compiler.
func (c *StaticCompiler) Compile(ctx context.Context, source string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lua, ok := c.outputs[normalize(source)]; ok {
		return &Result{Lua: lua, Diagnostics: []Diagnostic{}}, nil
	}
	return &Result{
		Diagnostics: []Diagnostic{{
			Severity: SeverityMessage,
			Message:  "live compilation is disabled on this server; only the example program has output",
		}},
	}, nil
}

func normalize(source string) string {
	return strings.TrimSpace(strings.ReplaceAll(source, "\r\n", "\n"))
}
