package compiler

import (
	"encoding/json"
	"fmt"
)

// Options are the static compiler settings applied to every program.
type Options struct {
	RootDir      string
	LuaTarget    string
	LuaLibImport string
	SourceMap    bool
	Strict       bool
	Lib          []string
}

// DefaultOptions matches the settings of the hosted playground.
func DefaultOptions() Options {
	return Options{
		RootDir:      "inmemory://model/",
		LuaTarget:    "5.4",
		LuaLibImport: "inline",
		SourceMap:    true,
		Strict:       true,
		Lib:          []string{"esnext"},
	}
}

type tsconfig struct {
	CompilerOptions compilerOptions `json:"compilerOptions"`
	TSTL            tstlOptions     `json:"tstl"`
	Files           []string        `json:"files"`
}

type compilerOptions struct {
	Target    string   `json:"target"`
	Lib       []string `json:"lib"`
	Strict    bool     `json:"strict"`
	SourceMap bool     `json:"sourceMap"`
	RootDir   string   `json:"rootDir"`
	OutDir    string   `json:"outDir"`
}

type tstlOptions struct {
	LuaTarget    string `json:"luaTarget"`
	LuaLibImport string `json:"luaLibImport"`
	SourceMap    bool   `json:"sourceMap"`
	NoHeader     bool   `json:"noHeader"`
}

// TSConfig renders the tsconfig.json handed to tstl. The in-memory root of
// the browser build has no meaning on disk, so files are compiled from and
// into the working directory.
func (o Options) TSConfig(files ...string) ([]byte, error) {
	if o.LuaTarget == "" || o.LuaLibImport == "" {
		return nil, fmt.Errorf("lua target and lib import must be set")
	}
	lib := o.Lib
	if len(lib) == 0 {
		lib = []string{"esnext"}
	}

	cfg := tsconfig{
		CompilerOptions: compilerOptions{
			Target:    "ESNext",
			Lib:       lib,
			Strict:    o.Strict,
			SourceMap: o.SourceMap,
			RootDir:   ".",
			OutDir:    ".",
		},
		TSTL: tstlOptions{
			LuaTarget:    o.LuaTarget,
			LuaLibImport: o.LuaLibImport,
			SourceMap:    o.SourceMap,
			NoHeader:     true,
		},
		Files: files,
	}

	return json.MarshalIndent(cfg, "", "  ")
}
