// Package server serves the TypeScriptToLua playground: the editor page,
// the JSON API behind it, the live compile websocket and short snippet
// links.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/coder/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/tstlplay/internal/compiler"
	"github.com/conneroisu/tstlplay/internal/config"
	"github.com/conneroisu/tstlplay/internal/errors"
	"github.com/conneroisu/tstlplay/internal/logging"
	"github.com/conneroisu/tstlplay/internal/playground"
	"github.com/conneroisu/tstlplay/internal/snippets"
	"github.com/conneroisu/tstlplay/internal/validation"
)

// Dependencies are the collaborators a Server is built from.
type Dependencies struct {
	Codec    *playground.Codec
	Compiler compiler.Compiler
	Snippets *snippets.Store // optional
	Logger   logging.Logger
}

// Server serves the playground over HTTP.
type Server struct {
	config        *config.Config
	codec         *playground.Codec
	compiler      compiler.Compiler
	snippets      *snippets.Store
	logger        logging.Logger
	errHandler    *errors.ErrorHandler
	security      *SecurityConfig
	compileLimits *limiterSet
	startedAt     time.Time
	example       exampleCache

	httpServer  *http.Server
	serverMutex sync.RWMutex

	conns        map[*websocket.Conn]struct{}
	connsMutex   sync.Mutex
	isShutdown   bool
	shutdownOnce sync.Once
}

// New creates a server. Codec and Compiler are required.
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "configuration is required")
	}
	if deps.Codec == nil || deps.Compiler == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "codec and compiler are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("server")

	return &Server{
		config:        cfg,
		codec:         deps.Codec,
		compiler:      deps.Compiler,
		snippets:      deps.Snippets,
		logger:        logger,
		errHandler:    errors.NewErrorHandler(logger),
		security:      SecurityConfigFromAppConfig(cfg, logger),
		compileLimits: newLimiterSet(cfg.Playground.CompileRatePerMinute, time.Minute),
		startedAt:     time.Now(),
		example:       exampleCache{now: time.Now},
		conns:         make(map[*websocket.Conn]struct{}),
	}, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	base := s.codec.BasePath()

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+base+"{$}", s.handleIndex)
	if base != "/" {
		mux.Handle("GET /{$}", http.RedirectHandler(base, http.StatusFound))
	}
	mux.Handle("GET /static/", staticHandler())
	mux.HandleFunc("GET /api/decode", s.handleDecode)
	mux.HandleFunc("POST /api/share", s.handleShare)
	mux.HandleFunc("POST /api/compile", s.handleCompile)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.snippets != nil {
		mux.HandleFunc("POST /api/snippets", s.handleCreateSnippet)
		mux.HandleFunc("GET /s/{id}", s.handleSnippet)
	}

	chain := NewMiddlewareChain(
		RecoveryMiddleware(s.logger),
		RequestIDMiddleware(),
		LoggingMiddleware(s.logger),
		SecurityMiddleware(s.security),
		MaxBodyMiddleware(s.bodyLimit()),
	)

	return chain.Apply(mux)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Addr()

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go s.pruneLimiters(ctx)

	if s.config.Server.Open {
		go s.openBrowser(fmt.Sprintf("http://%s%s", addr, s.codec.BasePath()))
	}

	s.logger.Info(ctx, "playground listening",
		"addr", addr,
		"base_path", s.codec.BasePath(),
		"compiler", s.config.Compiler.Mode)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown closes live connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down server")

		s.closeConns()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	source := s.codec.Example()

	lua := s.exampleOutput(r.Context(), source)

	client := clientConfig{
		BasePath:      s.codec.BasePath(),
		DecodeURL:     "/api/decode",
		ShareURL:      "/api/share",
		WebSocketPath: "/ws",
	}
	if s.snippets != nil {
		client.SnippetsURL = "/api/snippets"
	}

	page := playgroundPage(pageData{
		Title:  "TypeScriptToLua Playground",
		Source: source,
		Lua:    lua,
		Client: client,
	})
	templ.Handler(page).ServeHTTP(w, r)
}

// exampleRetryInterval is how long a failed example compile is remembered
// before a page load tries again.
const exampleRetryInterval = 30 * time.Second

// exampleCache remembers the compiled example, or a recent failure to
// compile it, so page loads do not each start a compiler.
type exampleCache struct {
	mu       sync.Mutex
	source   string
	lua      string
	ok       bool
	failedAt time.Time
	group    singleflight.Group
	now      func() time.Time
}

func (c *exampleCache) lookup(source string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != source {
		return "", false
	}
	if c.ok {
		return c.lua, true
	}
	return "", c.now().Sub(c.failedAt) < exampleRetryInterval
}

func (c *exampleCache) store(source, lua string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.source, c.lua, c.ok = source, lua, err == nil
	if err != nil {
		c.failedAt = c.now()
	}
}

// exampleOutput returns the Lua for the example, or "" when it does not
// compile. Concurrent page loads share one compile, which runs without the
// lock held.
func (s *Server) exampleOutput(ctx context.Context, source string) string {
	if lua, ok := s.example.lookup(source); ok {
		return lua
	}

	v, _, _ := s.example.group.Do(source, func() (interface{}, error) {
		if lua, ok := s.example.lookup(source); ok {
			return lua, nil
		}

		compileCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Compiler.Timeout+time.Second)
		defer cancel()

		result, err := s.compiler.Compile(compileCtx, source)
		if err != nil {
			s.errHandler.Handle(ctx, err)
			s.example.store(source, "", err)
			return "", nil
		}

		s.example.store(source, result.Lua, nil)
		return result.Lua, nil
	})

	return v.(string)
}

// bodyLimit is the largest request body accepted. JSON escaping can grow a
// source up to six times.
func (s *Server) bodyLimit() int64 {
	return s.config.Playground.MaxSourceBytes*6 + 1024
}

// fragmentLimit is the longest fragment /api/decode accepts. Legacy
// percent-encoding at most triples each source byte.
func (s *Server) fragmentLimit() int64 {
	return s.config.Playground.MaxSourceBytes*3 + 64
}

func (s *Server) pruneLimiters(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.compileLimits.prune(); n > 0 {
				s.logger.Debug(ctx, "pruned idle rate limiters", "count", n)
			}
		}
	}
}

func (s *Server) openBrowser(url string) {
	time.Sleep(100 * time.Millisecond)

	ctx := context.Background()
	if err := validation.ValidateURL(url); err != nil {
		s.logger.Warn(ctx, err, "Browser open failed due to invalid URL")
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	if err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser")
	}
}
