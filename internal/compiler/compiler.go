// Package compiler turns playground TypeScript into Lua by running the
// TypeScriptToLua command line compiler, and parses its diagnostics into a
// structured form the page can display.
package compiler

import "context"

// Compiler compiles a single TypeScript program to Lua.
//
// Type errors in the program are not Go errors: they come back as
// Diagnostics alongside whatever Lua the compiler still emitted. An error is
// returned only when compilation could not run at all.
type Compiler interface {
	Compile(ctx context.Context, source string) (*Result, error)
}

// Result is the output of one compilation.
type Result struct {
	Lua         string       `json:"lua"`
	SourceMap   string       `json:"source_map,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// HasErrors reports whether any diagnostic is an error.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
