package compiler

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/conneroisu/tstlplay/internal/errors"
	"github.com/conneroisu/tstlplay/internal/logging"
	"github.com/conneroisu/tstlplay/internal/validation"
)

const (
	inputFile     = "main.ts"
	outputFile    = "main.lua"
	sourceMapFile = "main.lua.map"
	configFile    = "tsconfig.json"
)

// allowedCommands are the executables ExecCompiler may run.
var allowedCommands = map[string]bool{
	"npx":  true,
	"tstl": true,
	"node": true,
}

// ExecCompiler compiles by running tstl in a scratch directory.
type ExecCompiler struct {
	command string
	args    []string
	timeout time.Duration
	options Options
	parser  *DiagnosticParser
	logger  logging.Logger
}

// ExecConfig configures an ExecCompiler.
type ExecConfig struct {
	Command string
	Args    []string
	Timeout time.Duration
	Options Options
	Logger  logging.Logger
}

// NewExecCompiler validates the command line and returns a compiler that
// runs it.
func NewExecCompiler(cfg ExecConfig) (*ExecCompiler, error) {
	if err := validation.ValidateCommand(cfg.Command, allowedCommands); err != nil {
		return nil, errors.NewCompileError(errors.ErrCodeCommandRejected, "compiler command rejected", err)
	}
	for _, arg := range cfg.Args {
		if err := validation.ValidateArgument(arg); err != nil {
			return nil, errors.NewCompileError(errors.ErrCodeCommandRejected,
				fmt.Sprintf("invalid argument '%s'", arg), err)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &ExecCompiler{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		timeout: timeout,
		options: cfg.Options,
		parser:  NewDiagnosticParser(),
		logger:  logger.WithComponent("compiler"),
	}, nil
}

// Compile writes source and a tsconfig into a temporary directory, runs the
// compiler there and collects main.lua, its source map and diagnostics.
func (c *ExecCompiler) Compile(ctx context.Context, source string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "tstlplay-*")
	if err != nil {
		return nil, errors.WrapInternal(err, "failed to create compile directory")
	}
	defer os.RemoveAll(dir)

	if err := c.writeInputs(dir, source); err != nil {
		return nil, errors.WrapInternal(err, "failed to write compiler inputs")
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	output, runErr := cmd.CombinedOutput()
	duration := time.Since(start)

	if runErr != nil && ctx.Err() != nil {
		c.logger.Warn(ctx, ctx.Err(), "compilation timed out", "timeout", c.timeout)
		return nil, errors.NewCompileError(errors.ErrCodeCompileTimeout,
			fmt.Sprintf("compilation timed out after %s", c.timeout), ctx.Err())
	}

	var execErr *exec.Error
	if stderrors.As(runErr, &execErr) {
		return nil, errors.NewCompileError(errors.ErrCodeCompileFailed,
			fmt.Sprintf("failed to run %s", c.command), runErr)
	}

	result := &Result{Diagnostics: c.parser.Parse(string(output))}

	lua, err := os.ReadFile(filepath.Join(dir, outputFile))
	switch {
	case err == nil:
		result.Lua = string(lua)
	case runErr != nil && len(result.Diagnostics) == 0:
		return nil, errors.NewCompileError(errors.ErrCodeCompileFailed, "compiler exited without output", runErr).
			WithContext("output", logging.SanitizeForLog(string(output)))
	case !os.IsNotExist(err):
		return nil, errors.WrapInternal(err, "failed to read compiled output")
	}

	if c.options.SourceMap {
		if sourceMap, err := os.ReadFile(filepath.Join(dir, sourceMapFile)); err == nil {
			result.SourceMap = string(sourceMap)
		}
	}

	c.logger.Debug(ctx, "compiled program",
		"duration", duration,
		"source_bytes", len(source),
		"diagnostics", len(result.Diagnostics))

	return result, nil
}

func (c *ExecCompiler) writeInputs(dir, source string) error {
	tsconfig, err := c.options.TSConfig(inputFile)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, configFile), tsconfig, 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, inputFile), []byte(source), 0o600)
}
