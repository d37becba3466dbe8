package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL validates absolute http(s) URLs such as the configured public
// URL and the address handed to the browser opener. It rejects characters
// that could smuggle shell syntax into the opener command.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	dangerous := []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", "\\", "\n", "\r", " "}
	for _, char := range dangerous {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("URL contains dangerous character: %q", char)
		}
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// AbsoluteLink joins an absolute-path playground link such as
// /play/#code/... onto a public base URL. The link's fragment is kept byte
// for byte; url.URL would re-escape it.
func AbsoluteLink(publicURL, link string) (string, error) {
	if err := ValidateURL(publicURL); err != nil {
		return "", err
	}
	if !strings.HasPrefix(link, "/") {
		return "", fmt.Errorf("link %q is not an absolute path", link)
	}

	base, err := url.Parse(publicURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	return base.Scheme + "://" + base.Host + strings.TrimSuffix(base.Path, "/") + link, nil
}
