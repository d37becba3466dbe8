package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/conneroisu/tstlplay/internal/config"
	"github.com/conneroisu/tstlplay/internal/errors"
	"github.com/conneroisu/tstlplay/internal/logging"
	"github.com/conneroisu/tstlplay/internal/validation"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	CSP                 *CSPConfig
	HSTS                *HSTSConfig
	XFrameOptions       string
	XContentTypeNoSniff bool
	ReferrerPolicy      string
	PermissionsPolicy   []string
	AllowedOrigins      []string
	TrustProxyHeaders   bool
	Logger              logging.Logger
}

// CSPConfig holds Content Security Policy configuration
type CSPConfig struct {
	DefaultSrc              []string
	ScriptSrc               []string
	StyleSrc                []string
	ImgSrc                  []string
	ConnectSrc              []string
	ObjectSrc               []string
	FrameAncestors          []string
	BaseURI                 []string
	FormAction              []string
	UpgradeInsecureRequests bool
}

// HSTSConfig holds HTTP Strict Transport Security configuration
type HSTSConfig struct {
	MaxAge            int
	IncludeSubDomains bool
	Preload           bool
}

// DefaultSecurityConfig returns the headers the playground page needs: its
// own scripts and styles, and a websocket back to the same host.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		CSP: &CSPConfig{
			DefaultSrc:     []string{"'self'"},
			ScriptSrc:      []string{"'self'"},
			StyleSrc:       []string{"'self'"},
			ImgSrc:         []string{"'self'", "data:"},
			ConnectSrc:     []string{"'self'", "ws:", "wss:"},
			ObjectSrc:      []string{"'none'"},
			FrameAncestors: []string{"'none'"},
			BaseURI:        []string{"'self'"},
			FormAction:     []string{"'self'"},
		},
		HSTS: &HSTSConfig{
			MaxAge:            31536000,
			IncludeSubDomains: true,
		},
		XFrameOptions:       "DENY",
		XContentTypeNoSniff: true,
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   []string{"geolocation=()", "camera=()", "microphone=()", "payment=()", "usb=()"},
	}
}

// SecurityConfigFromAppConfig creates security config from application config
func SecurityConfigFromAppConfig(cfg *config.Config, logger logging.Logger) *SecurityConfig {
	sec := DefaultSecurityConfig()
	sec.AllowedOrigins = append([]string(nil), cfg.Server.AllowedOrigins...)
	sec.Logger = logger

	switch cfg.Server.Environment {
	case "production":
		sec.CSP.UpgradeInsecureRequests = true
		sec.CSP.ConnectSrc = []string{"'self'", "wss:"}
		sec.HSTS.Preload = true
		sec.TrustProxyHeaders = true
	case "development":
		sec.HSTS = nil
		sec.XFrameOptions = "SAMEORIGIN"
		sec.CSP.FrameAncestors = []string{"'self'"}
	}

	return sec
}

// SecurityMiddleware applies security headers and rejects cross-origin
// state-changing requests from browsers.
func SecurityMiddleware(secConfig *SecurityConfig) func(http.Handler) http.Handler {
	if secConfig == nil {
		secConfig = DefaultSecurityConfig()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applySecurityHeaders(w, r, secConfig)

			if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
				if !isValidOrigin(r, secConfig.AllowedOrigins) {
					if secConfig.Logger != nil {
						secConfig.Logger.Warn(r.Context(),
							errors.NewValidationError(errors.ErrCodeInvalidRequest, "cross-origin request rejected"),
							"Security: Invalid origin",
							"origin", r.Header.Get("Origin"),
							"ip", getClientIP(r, secConfig.TrustProxyHeaders))
					}
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func applySecurityHeaders(w http.ResponseWriter, r *http.Request, config *SecurityConfig) {
	h := w.Header()

	if config.CSP != nil {
		h.Set("Content-Security-Policy", buildCSPHeader(config.CSP))
	}
	if config.HSTS != nil && r.TLS != nil {
		h.Set("Strict-Transport-Security", buildHSTSHeader(config.HSTS))
	}
	if config.XFrameOptions != "" {
		h.Set("X-Frame-Options", config.XFrameOptions)
	}
	if config.XContentTypeNoSniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	if config.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", config.ReferrerPolicy)
	}
	if len(config.PermissionsPolicy) > 0 {
		h.Set("Permissions-Policy", strings.Join(config.PermissionsPolicy, ", "))
	}

	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("Cross-Origin-Resource-Policy", "same-origin")
}

func buildCSPHeader(csp *CSPConfig) string {
	var directives []string

	addDirective := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, fmt.Sprintf("%s %s", name, strings.Join(values, " ")))
		}
	}

	addDirective("default-src", csp.DefaultSrc)
	addDirective("script-src", csp.ScriptSrc)
	addDirective("style-src", csp.StyleSrc)
	addDirective("img-src", csp.ImgSrc)
	addDirective("connect-src", csp.ConnectSrc)
	addDirective("object-src", csp.ObjectSrc)
	addDirective("frame-ancestors", csp.FrameAncestors)
	addDirective("base-uri", csp.BaseURI)
	addDirective("form-action", csp.FormAction)

	if csp.UpgradeInsecureRequests {
		directives = append(directives, "upgrade-insecure-requests")
	}

	return strings.Join(directives, "; ")
}

func buildHSTSHeader(hsts *HSTSConfig) string {
	header := fmt.Sprintf("max-age=%d", hsts.MaxAge)
	if hsts.IncludeSubDomains {
		header += "; includeSubDomains"
	}
	if hsts.Preload {
		header += "; preload"
	}
	return header
}

// isValidOrigin accepts requests without an Origin header (non-browser
// clients such as the share command), same-host origins and configured
// origins.
func isValidOrigin(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := append([]string{r.Host}, allowedOrigins...)
	return validation.ValidateOrigin(origin, allowed) == nil
}

// getClientIP extracts the client IP address. Forwarding headers are only
// believed behind a trusted proxy.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
