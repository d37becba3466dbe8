package config

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// Finding is one problem found by Check, with hints on how to fix it.
type Finding struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (f *Finding) Error() string {
	return fmt.Sprintf("validation error in %s: %s", f.Field, f.Message)
}

// Report holds the result of Check.
type Report struct {
	Valid    bool
	Errors   []Finding
	Warnings []Finding
}

// HasErrors returns true if there are any validation errors
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (r *Report) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a formatted string of all findings
func (r *Report) String() string {
	var builder strings.Builder

	write := func(title string, findings []Finding) {
		if len(findings) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, f := range findings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", f.Field, f.Message))
			for _, s := range f.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", s))
			}
		}
	}

	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if builder.Len() == 0 {
		return "configuration OK\n"
	}

	return builder.String()
}

// Check inspects an already loaded configuration for deployment problems
// that LoadFrom does not reject: an unreachable example file, a missing
// compiler binary, a production server open to every origin, and so on.
func Check(config *Config) *Report {
	report := &Report{}

	checkServer(&config.Server, report)
	checkPlayground(&config.Playground, report)
	checkCompiler(&config.Compiler, report)
	checkStorage(&config.Storage, report)

	report.Valid = !report.HasErrors()

	return report
}

func checkServer(config *ServerConfig, report *Report) {
	if err := validateHostname(config.Host); err != nil {
		report.Errors = append(report.Errors, Finding{
			Field:       "server.host",
			Value:       config.Host,
			Message:     err.Error(),
			Suggestions: []string{"Use localhost, an IP address or a DNS name"},
		})
	}

	if config.Port > 0 && config.Port < 1024 {
		report.Warnings = append(report.Warnings, Finding{
			Field:       "server.port",
			Value:       config.Port,
			Message:     fmt.Sprintf("port %d requires elevated privileges", config.Port),
			Suggestions: []string{"Use a port between 1024-65535 and put a proxy in front"},
		})
	}

	if config.Environment == "production" {
		if len(config.AllowedOrigins) == 0 {
			report.Warnings = append(report.Warnings, Finding{
				Field:       "server.allowed_origins",
				Message:     "no allowed origins configured; live compile only accepts same-host connections",
				Suggestions: []string{"List the public origin of the playground"},
			})
		}
		if config.PublicURL == "" {
			report.Warnings = append(report.Warnings, Finding{
				Field:       "server.public_url",
				Message:     "share responses will not include an absolute url",
				Suggestions: []string{"Set server.public_url to the externally visible address"},
			})
		}
	}
}

func checkPlayground(config *PlaygroundConfig, report *Report) {
	if config.ExampleFile != "" && !pathExists(config.ExampleFile) {
		report.Errors = append(report.Errors, Finding{
			Field:       "playground.example_file",
			Value:       config.ExampleFile,
			Message:     "file does not exist",
			Suggestions: []string{"Create the file or remove the setting to use the built-in example"},
		})
	}

	if config.MaxSourceBytes > 8<<20 {
		report.Warnings = append(report.Warnings, Finding{
			Field:   "playground.max_source_bytes",
			Value:   config.MaxSourceBytes,
			Message: "programs this large produce links most browsers will truncate",
		})
	}
}

func checkCompiler(config *CompilerConfig, report *Report) {
	if config.Mode != CompilerModeExec {
		return
	}
	if _, err := lookPath(config.Command); err != nil {
		report.Errors = append(report.Errors, Finding{
			Field:   "compiler.command",
			Value:   config.Command,
			Message: fmt.Sprintf("command not found in PATH: %v", err),
			Suggestions: []string{
				"Install Node.js and typescript-to-lua (npm install -g typescript-to-lua)",
				"Set compiler.mode to static to serve the bundled example output",
			},
		})
	}
}

func checkStorage(config *StorageConfig, report *Report) {
	if config.SnippetsDB == "" {
		report.Warnings = append(report.Warnings, Finding{
			Field:       "storage.snippets_db",
			Message:     "snippets are kept in memory and lost on restart",
			Suggestions: []string{"Set storage.snippets_db to a file path"},
		})
	}
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	if host == "localhost" {
		return nil
	}
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
