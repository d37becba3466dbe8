// Package config provides configuration management for the playground
// service using Viper for loading from files, environment variables and
// command-line flags.
//
// Environment variables use the TSTLPLAY_ prefix with dots replaced by
// underscores, e.g. TSTLPLAY_SERVER_PORT or TSTLPLAY_COMPILER_TIMEOUT.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/tstlplay/internal/validation"
)

type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Playground PlaygroundConfig `yaml:"playground" mapstructure:"playground"`
	Compiler   CompilerConfig   `yaml:"compiler" mapstructure:"compiler"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Host           string   `yaml:"host" mapstructure:"host"`
	Open           bool     `yaml:"open" mapstructure:"open"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Environment    string   `yaml:"environment" mapstructure:"environment"`
	PublicURL      string   `yaml:"public_url" mapstructure:"public_url"`
}

type PlaygroundConfig struct {
	BasePath             string `yaml:"base_path" mapstructure:"base_path"`
	ExampleFile          string `yaml:"example_file" mapstructure:"example_file"`
	MaxSourceBytes       int64  `yaml:"max_source_bytes" mapstructure:"max_source_bytes"`
	CompileRatePerMinute int    `yaml:"compile_rate_per_minute" mapstructure:"compile_rate_per_minute"`
}

type CompilerConfig struct {
	Mode         string        `yaml:"mode" mapstructure:"mode"`
	Command      string        `yaml:"command" mapstructure:"command"`
	Args         []string      `yaml:"args" mapstructure:"args"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	LuaTarget    string        `yaml:"lua_target" mapstructure:"lua_target"`
	LuaLibImport string        `yaml:"lua_lib_import" mapstructure:"lua_lib_import"`
	Strict       bool          `yaml:"strict" mapstructure:"strict"`
	SourceMap    bool          `yaml:"source_map" mapstructure:"source_map"`

	CacheBytes    int64         `yaml:"cache_bytes" mapstructure:"cache_bytes"`
	CacheTTL      time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

type StorageConfig struct {
	SnippetsDB string `yaml:"snippets_db" mapstructure:"snippets_db"`
}

type LoggingConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// EnvPrefix is the prefix of environment variables read by viper.
const EnvPrefix = "TSTLPLAY"

// EnvKeyReplacer maps nested keys like server.port onto SERVER_PORT.
var EnvKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// Keys lists every configuration key. Viper only consults the environment
// for keys it already knows about, so BindEnv registers them all.
var Keys = []string{
	"server.port", "server.host", "server.open", "server.allowed_origins",
	"server.environment", "server.public_url",
	"playground.base_path", "playground.example_file",
	"playground.max_source_bytes", "playground.compile_rate_per_minute",
	"compiler.mode", "compiler.command", "compiler.args", "compiler.timeout",
	"compiler.lua_target", "compiler.lua_lib_import", "compiler.strict",
	"compiler.source_map", "compiler.cache_bytes", "compiler.cache_ttl",
	"compiler.max_concurrent",
	"storage.snippets_db",
	"logging.format", "logging.file",
}

// BindEnv makes v read TSTLPLAY_<SECTION>_<KEY> variables for every key.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()
	for _, key := range Keys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

const (
	CompilerModeExec   = "exec"
	CompilerModeStatic = "static"
)

var (
	validLuaTargets    = []string{"JIT", "5.0", "5.1", "5.2", "5.3", "5.4", "universal"}
	validLuaLibImports = []string{"inline", "require", "require-minimal", "none"}
)

// Load reads the configuration held by the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration held by v, applies defaults and
// validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Server defaults
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if !v.IsSet("server.port") {
		config.Server.Port = 8080
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
	if v.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	// Playground defaults
	if config.Playground.BasePath == "" {
		config.Playground.BasePath = "/play/"
	}
	if config.Playground.MaxSourceBytes == 0 {
		config.Playground.MaxSourceBytes = 256 << 10
	}
	if config.Playground.CompileRatePerMinute == 0 {
		config.Playground.CompileRatePerMinute = 60
	}

	// Compiler defaults
	if config.Compiler.Mode == "" {
		config.Compiler.Mode = CompilerModeExec
	}
	if config.Compiler.Command == "" {
		config.Compiler.Command = "npx"
	}
	if v.IsSet("compiler.args") && len(config.Compiler.Args) == 0 {
		config.Compiler.Args = v.GetStringSlice("compiler.args")
	}
	if len(config.Compiler.Args) == 0 {
		config.Compiler.Args = []string{"tstl", "-p", "tsconfig.json"}
	}
	if config.Compiler.Timeout == 0 {
		config.Compiler.Timeout = 20 * time.Second
	}
	if config.Compiler.LuaTarget == "" {
		config.Compiler.LuaTarget = "5.4"
	}
	if config.Compiler.LuaLibImport == "" {
		config.Compiler.LuaLibImport = "inline"
	}
	// Viper cannot tell an unset bool from false, so these default on only
	// when the key is absent.
	if !v.IsSet("compiler.strict") {
		config.Compiler.Strict = true
	}
	if !v.IsSet("compiler.source_map") {
		config.Compiler.SourceMap = true
	}
	// An explicit zero turns the cache off.
	if !v.IsSet("compiler.cache_bytes") {
		config.Compiler.CacheBytes = 32 << 20
	}
	if config.Compiler.CacheTTL == 0 {
		config.Compiler.CacheTTL = time.Hour
	}

	// Logging defaults
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	if v.IsSet("server.no-open") && v.GetBool("server.no-open") {
		config.Server.Open = false
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validatePlaygroundConfig(&config.Playground); err != nil {
		return fmt.Errorf("playground config: %w", err)
	}
	if err := validateCompilerConfig(&config.Compiler); err != nil {
		return fmt.Errorf("compiler config: %w", err)
	}
	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if config.Storage.SnippetsDB != "" {
		if err := validatePath(config.Storage.SnippetsDB); err != nil {
			return fmt.Errorf("storage config: snippets_db: %w", err)
		}
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %q", char)
			}
		}
	}

	if config.PublicURL != "" {
		if err := validation.ValidateURL(config.PublicURL); err != nil {
			return fmt.Errorf("public_url: %w", err)
		}
	}

	for _, origin := range config.AllowedOrigins {
		if err := validation.ValidateOriginFormat(origin); err != nil {
			return fmt.Errorf("allowed_origins: %w", err)
		}
	}

	return nil
}

func validatePlaygroundConfig(config *PlaygroundConfig) error {
	if !strings.HasPrefix(config.BasePath, "/") || !strings.HasSuffix(config.BasePath, "/") {
		return fmt.Errorf("base_path %q must start and end with '/'", config.BasePath)
	}
	if strings.ContainsAny(config.BasePath, "#?") {
		return fmt.Errorf("base_path %q must not contain '#' or '?'", config.BasePath)
	}
	if config.MaxSourceBytes < 0 {
		return fmt.Errorf("max_source_bytes must be positive")
	}
	if config.CompileRatePerMinute < 0 {
		return fmt.Errorf("compile_rate_per_minute must be positive")
	}
	if config.ExampleFile != "" {
		if err := validatePath(config.ExampleFile); err != nil {
			return fmt.Errorf("example_file: %w", err)
		}
	}

	return nil
}

func validateCompilerConfig(config *CompilerConfig) error {
	if config.Mode != CompilerModeExec && config.Mode != CompilerModeStatic {
		return fmt.Errorf("mode %q is not one of %s, %s", config.Mode, CompilerModeExec, CompilerModeStatic)
	}
	if !contains(validLuaTargets, config.LuaTarget) {
		return fmt.Errorf("lua_target %q is not one of %s", config.LuaTarget, strings.Join(validLuaTargets, ", "))
	}
	if !contains(validLuaLibImports, config.LuaLibImport) {
		return fmt.Errorf("lua_lib_import %q is not one of %s", config.LuaLibImport, strings.Join(validLuaLibImports, ", "))
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if config.CacheBytes < 0 || config.CacheTTL < 0 || config.MaxConcurrent < 0 {
		return fmt.Errorf("cache_bytes, cache_ttl and max_concurrent must not be negative")
	}
	if config.Mode == CompilerModeExec {
		if err := validation.ValidateArgument(config.Command); err != nil {
			return fmt.Errorf("command: %w", err)
		}
		for _, arg := range config.Args {
			if err := validation.ValidateArgument(arg); err != nil {
				return fmt.Errorf("args: %w", err)
			}
		}
	}

	return nil
}

func validateLoggingConfig(config *LoggingConfig) error {
	if config.Format != "text" && config.Format != "json" {
		return fmt.Errorf("format %q is not one of text, json", config.Format)
	}
	if config.File != "" {
		if err := validatePath(config.File); err != nil {
			return fmt.Errorf("file: %w", err)
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
