// Package validation provides security validation functions for preventing
// command injection, path traversal and cross-origin abuse of the
// playground endpoints.
package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ValidateArgument validates a command line argument to prevent injection attacks
func ValidateArgument(arg string) error {
	dangerous := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}
	for _, char := range dangerous {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %q", char)
		}
	}

	if strings.Contains(arg, "..") {
		return fmt.Errorf("contains path traversal: %s", arg)
	}

	if filepath.IsAbs(arg) && !strings.HasPrefix(arg, "/usr/bin/") &&
		!strings.HasPrefix(arg, "/usr/local/bin/") && !strings.HasPrefix(arg, "/bin/") {
		return fmt.Errorf("absolute path not allowed: %s", arg)
	}

	return nil
}

// ValidateCommand validates a command name against an allowlist. The
// allowlist is keyed by base name so /usr/bin/npx matches "npx".
func ValidateCommand(command string, allowedCommands map[string]bool) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}

	if !allowedCommands[filepath.Base(command)] {
		return fmt.Errorf("command '%s' is not allowed", command)
	}

	if err := ValidateArgument(command); err != nil {
		return fmt.Errorf("invalid command '%s': %w", command, err)
	}

	return nil
}

// ValidateOriginFormat checks that a configured origin is an http(s) origin
// or a bare host[:port].
func ValidateOriginFormat(origin string) error {
	if origin == "" {
		return fmt.Errorf("origin cannot be empty")
	}
	if !strings.Contains(origin, "://") {
		if strings.ContainsAny(origin, "/?# ") {
			return fmt.Errorf("invalid origin host %q", origin)
		}
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("origin %q has no host", origin)
	}

	return nil
}

// ValidateOrigin validates a request Origin header against the allowed
// origins. Entries may be full origins or bare host[:port].
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}

// ValidateSnippetID checks that id looks like a snippet identifier: 10 to 64
// characters from the URL-safe base64 alphabet.
func ValidateSnippetID(id string) error {
	if len(id) < 10 || len(id) > 64 {
		return fmt.Errorf("snippet id must be 10 to 64 characters")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("snippet id contains invalid character %q", r)
		}
	}
	return nil
}
