package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tstlplay/internal/compiler"
	"github.com/conneroisu/tstlplay/internal/config"
	"github.com/conneroisu/tstlplay/internal/logging"
	"github.com/conneroisu/tstlplay/internal/lzstring"
	"github.com/conneroisu/tstlplay/internal/playground"
	"github.com/conneroisu/tstlplay/internal/server"
	"github.com/conneroisu/tstlplay/internal/snippets"
	"github.com/conneroisu/tstlplay/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the playground server",
	Long: `Start the playground HTTP server.

The page is served at the configured base path (default /play/). Programs
compile over a websocket as they are typed; /api/share, /api/decode and
/api/compile expose the same operations as JSON.

Examples:
  tstlplay serve                          # localhost:8080, compiling with npx tstl
  tstlplay serve --compiler static        # no Node.js needed, example only
  tstlplay serve --example example.ts     # reload the example when the file changes
  tstlplay serve --snippets-db snippets.db --open`,
	RunE: runServe,
}

var serveFlagKeys = map[string]string{
	"port":        "server.port",
	"host":        "server.host",
	"open":        "server.open",
	"base-path":   "playground.base_path",
	"example":     "playground.example_file",
	"compiler":    "compiler.mode",
	"snippets-db": "storage.snippets_db",
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("open", false, "Open the playground in a browser")
	serveCmd.Flags().String("base-path", playground.DefaultBasePath, "Route the playground page is served from")
	serveCmd.Flags().String("example", "", "File holding the example program, reloaded on change")
	serveCmd.Flags().String("compiler", config.CompilerModeExec, "Compiler mode (exec, static)")
	serveCmd.Flags().String("snippets-db", "", "SQLite file for short links (in memory when empty)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, serveFlagKeys)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec := playground.NewCodec(
		playground.WithBasePath(cfg.Playground.BasePath),
		playground.WithMaxSourceBytes(cfg.Playground.MaxSourceBytes),
	)

	comp, err := newCompiler(cfg, logger)
	if err != nil {
		return err
	}

	store, err := snippets.Open(cfg.Storage.SnippetsDB, lzstring.URIComponent{})
	if err != nil {
		return fmt.Errorf("opening snippet store: %w", err)
	}
	defer store.Close()

	if cfg.Playground.ExampleFile != "" {
		w, err := watcher.New(cfg.Playground.ExampleFile, cfg.Playground.MaxSourceBytes, codec.SetExample, logger)
		if err != nil {
			return fmt.Errorf("watching example: %w", err)
		}
		defer w.Stop()
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("loading example: %w", err)
		}
	}

	srv, err := server.New(cfg, server.Dependencies{
		Codec:    codec,
		Compiler: comp,
		Snippets: store,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting tstlplay at http://%s%s\n", cfg.Addr(), cfg.Playground.BasePath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, err, "shutdown did not complete")
	}

	select {
	case err := <-errCh:
		return err
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}

func newLogger(cfg *config.Config, out io.Writer) (*logging.PlaygroundLogger, error) {
	logger, err := logging.NewLogger(&logging.LoggerConfig{
		Level:  logLevel.Level(),
		Format: cfg.Logging.Format,
		Output: out,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

func newCompiler(cfg *config.Config, logger logging.Logger) (compiler.Compiler, error) {
	if cfg.Compiler.Mode == config.CompilerModeStatic {
		return compiler.NewStaticCompiler(), nil
	}

	execCompiler, err := newExecCompiler(cfg, logger)
	if err != nil {
		return nil, err
	}

	return compiler.NewCachingCompiler(execCompiler, compiler.CacheConfig{
		MaxBytes:      cfg.Compiler.CacheBytes,
		TTL:           cfg.Compiler.CacheTTL,
		MaxConcurrent: int64(cfg.Compiler.MaxConcurrent),
	}), nil
}

func newExecCompiler(cfg *config.Config, logger logging.Logger) (*compiler.ExecCompiler, error) {
	opts := compiler.DefaultOptions()
	opts.LuaTarget = cfg.Compiler.LuaTarget
	opts.LuaLibImport = cfg.Compiler.LuaLibImport
	opts.SourceMap = cfg.Compiler.SourceMap
	opts.Strict = cfg.Compiler.Strict

	return compiler.NewExecCompiler(compiler.ExecConfig{
		Command: cfg.Compiler.Command,
		Args:    cfg.Compiler.Args,
		Timeout: cfg.Compiler.Timeout,
		Options: opts,
		Logger:  logger,
	})
}
