package compiler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tstlplay/internal/errors"
	"github.com/conneroisu/tstlplay/internal/playground"
)

func TestTSConfig(t *testing.T) {
	data, err := DefaultOptions().TSConfig("main.ts")
	require.NoError(t, err)

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &cfg))

	compilerOptions := cfg["compilerOptions"].(map[string]interface{})
	assert.Equal(t, true, compilerOptions["strict"])
	assert.Equal(t, true, compilerOptions["sourceMap"])
	assert.Equal(t, []interface{}{"esnext"}, compilerOptions["lib"])

	tstl := cfg["tstl"].(map[string]interface{})
	assert.Equal(t, "5.4", tstl["luaTarget"])
	assert.Equal(t, "inline", tstl["luaLibImport"])
	assert.Equal(t, []interface{}{"main.ts"}, cfg["files"])

	_, err = Options{}.TSConfig()
	assert.Error(t, err)
}

func TestDiagnosticParser(t *testing.T) {
	output := strings.Join([]string{
		"main.ts(3,7): error TS2322: Type 'string' is not assignable to type 'number'.",
		"main.ts:5:1 - warning TSTL: Unsupported feature.",
		"  Consider a different construct.",
		"error TS5058: The specified path does not exist: 'tsconfig.json'.",
		"npm notice new version available",
		"",
	}, "\n")

	got := NewDiagnosticParser().Parse(output)
	require.Len(t, got, 3)

	assert.Equal(t, Diagnostic{
		Severity: SeverityError,
		Code:     "TS2322",
		File:     "main.ts",
		Line:     3,
		Column:   7,
		Message:  "Type 'string' is not assignable to type 'number'.",
	}, got[0])

	assert.Equal(t, SeverityWarning, got[1].Severity)
	assert.Equal(t, "TSTL", got[1].Code)
	assert.Equal(t, "Unsupported feature.\nConsider a different construct.", got[1].Message)

	assert.Equal(t, "TS5058", got[2].Code)
	assert.Zero(t, got[2].Line)
	assert.Empty(t, got[2].File)
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Severity: SeverityError, Code: "TS1005", File: "main.ts", Line: 1, Column: 2, Message: "';' expected."}
	assert.Equal(t, "main.ts(1,2): error TS1005: ';' expected.", d.String())
	assert.Equal(t, "message: hi", Diagnostic{Severity: SeverityMessage, Message: "hi"}.String())
}

func TestResultHasErrors(t *testing.T) {
	assert.False(t, (&Result{}).HasErrors())
	assert.False(t, (&Result{Diagnostics: []Diagnostic{{Severity: SeverityWarning}}}).HasErrors())
	assert.True(t, (&Result{Diagnostics: []Diagnostic{{Severity: SeverityError}}}).HasErrors())
}

func TestStaticCompiler(t *testing.T) {
	c := NewStaticCompiler()
	ctx := context.Background()

	res, err := c.Compile(ctx, "\n"+playground.ExampleSource+"\n")
	require.NoError(t, err)
	assert.Equal(t, playground.ExampleLua, res.Lua)
	assert.False(t, res.HasErrors())

	res, err = c.Compile(ctx, "print(1)")
	require.NoError(t, err)
	assert.Empty(t, res.Lua)
	require.Len(t, res.Diagnostics, 1)

	c.Add("print(1)", "print(1)\n")
	res, err = c.Compile(ctx, "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", res.Lua)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.Compile(cancelled, "print(1)")
	assert.Error(t, err)
}

func TestNewExecCompilerRejectsCommands(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
	}{
		{"shell", "sh", []string{"-c", "id"}},
		{"empty", "", nil},
		{"injected arg", "npx", []string{"tstl", "; rm -rf /"}},
		{"traversal arg", "npx", []string{"../tstl"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExecCompiler(ExecConfig{Command: tt.command, Args: tt.args, Options: DefaultOptions()})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeCommandRejected))
		})
	}
}

// fakeTSTL puts an executable named tstl on PATH that runs script.
func fakeTSTL(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler is a shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "tstl")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestExecCompilerCompiles(t *testing.T) {
	fakeTSTL(t, `test -f main.ts || exit 2
test -f tsconfig.json || exit 3
printf 'print(1)\n' > main.lua
printf '{"version":3}' > main.lua.map
echo "main.ts(1,1): warning TSTL: something minor"
`)

	c, err := NewExecCompiler(ExecConfig{Command: "tstl", Args: []string{"-p", "tsconfig.json"}, Options: DefaultOptions()})
	require.NoError(t, err)

	res, err := c.Compile(context.Background(), "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", res.Lua)
	assert.Equal(t, `{"version":3}`, res.SourceMap)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, SeverityWarning, res.Diagnostics[0].Severity)
}

func TestExecCompilerReportsTypeErrors(t *testing.T) {
	fakeTSTL(t, `echo "main.ts(2,5): error TS2304: Cannot find name 'x'."
exit 1
`)

	c, err := NewExecCompiler(ExecConfig{Command: "tstl", Options: DefaultOptions()})
	require.NoError(t, err)

	res, err := c.Compile(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, res.Lua)
	assert.True(t, res.HasErrors())
	assert.Equal(t, 2, res.Diagnostics[0].Line)
}

func TestExecCompilerFailsWithoutOutput(t *testing.T) {
	fakeTSTL(t, "echo 'Segmentation fault'\nexit 139\n")

	c, err := NewExecCompiler(ExecConfig{Command: "tstl", Options: DefaultOptions()})
	require.NoError(t, err)

	_, err = c.Compile(context.Background(), "print(1)")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCompileFailed))
}

func TestExecCompilerTimeout(t *testing.T) {
	fakeTSTL(t, "exec sleep 5\n")

	c, err := NewExecCompiler(ExecConfig{Command: "tstl", Timeout: 100 * time.Millisecond, Options: DefaultOptions()})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Compile(context.Background(), "print(1)")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCompileTimeout))
	assert.Less(t, time.Since(start), 4*time.Second)
}
