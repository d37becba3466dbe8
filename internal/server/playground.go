package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/tstlplay/internal/compiler"
	"github.com/conneroisu/tstlplay/internal/errors"
	"github.com/conneroisu/tstlplay/internal/logging"
	"github.com/conneroisu/tstlplay/internal/validation"
	"github.com/conneroisu/tstlplay/internal/version"
)

// SourceRequest is the body of share, compile and snippet requests.
type SourceRequest struct {
	Source string `json:"source"`
}

// DecodeResponse is returned by GET /api/decode.
type DecodeResponse struct {
	Source string `json:"source"`
	Format string `json:"format"`
}

// ShareResponse is returned by POST /api/share.
type ShareResponse struct {
	Fragment string `json:"fragment"`
	Link     string `json:"link"`
	URL      string `json:"url"`
}

// CompileResponse is returned by POST /api/compile.
type CompileResponse struct {
	Lua         string                `json:"lua"`
	SourceMap   string                `json:"source_map,omitempty"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics"`
}

// SnippetResponse is returned by POST /api/snippets.
type SnippetResponse struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	URL  string `json:"url"`
	Link string `json:"link"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	fragment := r.URL.Query().Get("fragment")
	if int64(len(fragment)) > s.fragmentLimit() {
		s.writeError(w, r, errors.NewValidationError(errors.ErrCodeSourceTooLarge, "fragment exceeds the size limit").
			WithContext("bytes", len(fragment)))
		return
	}

	state, err := s.codec.Decode(fragment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, DecodeResponse{
		Source: state.SourceText,
		Format: state.Format.String(),
	})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	source, err := s.readSource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	link := s.codec.BuildShareableLink(source)
	absolute, err := s.absoluteURL(r, link)
	if err != nil {
		s.writeError(w, r, errors.WrapInternal(err, "building share url"))
		return
	}

	s.writeJSONResponse(w, http.StatusOK, ShareResponse{
		Fragment: s.codec.Fragment(source),
		Link:     link,
		URL:      absolute,
	})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	limiter := s.compileLimits.get(getClientIP(r, s.security.TrustProxyHeaders))
	allowed := limiter.IsAllowed()
	limit := s.config.Playground.CompileRatePerMinute
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(limit-limiter.GetCurrentCount(), 0)))
	if !allowed {
		retry := int(math.Ceil(limiter.RetryAfter().Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
		s.writeError(w, r, errors.NewValidationError(errors.ErrCodeRateLimited, "too many compile requests"))
		return
	}

	source, err := s.readSource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	result, err := s.compiler.Compile(r.Context(), source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logging.FromContext(r.Context(), s.logger).Debug(r.Context(), "compiled",
		"duration", time.Since(start),
		"diagnostics", len(result.Diagnostics))

	diagnostics := result.Diagnostics
	if diagnostics == nil {
		diagnostics = []compiler.Diagnostic{}
	}
	s.writeJSONResponse(w, http.StatusOK, CompileResponse{
		Lua:         result.Lua,
		SourceMap:   result.SourceMap,
		Diagnostics: diagnostics,
	})
}

func (s *Server) handleCreateSnippet(w http.ResponseWriter, r *http.Request) {
	source, err := s.readSource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.snippets.Save(r.Context(), source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	path := "/s/" + id
	absolute, err := s.absoluteURL(r, path)
	if err != nil {
		s.writeError(w, r, errors.WrapInternal(err, "building snippet url"))
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, SnippetResponse{
		ID:   id,
		Path: path,
		URL:  absolute,
		Link: s.codec.BuildShareableLink(source),
	})
}

// handleSnippet redirects a short link to the full playground link.
func (s *Server) handleSnippet(w http.ResponseWriter, r *http.Request) {
	snippet, err := s.snippets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, s.codec.BuildShareableLink(snippet.Source), http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	compilerCheck := map[string]interface{}{"status": "healthy", "mode": s.config.Compiler.Mode}
	if c, ok := s.compiler.(interface{ Stats() compiler.CacheStats }); ok {
		compilerCheck["cache"] = c.Stats()
	}
	checks := map[string]interface{}{"compiler": compilerCheck}
	status := "healthy"

	if s.snippets != nil {
		count, err := s.snippets.Count(r.Context())
		if err != nil {
			status = "degraded"
			checks["snippets"] = map[string]interface{}{"status": "unhealthy", "message": err.Error()}
		} else {
			checks["snippets"] = map[string]interface{}{"status": "healthy", "count": count}
		}
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"version":   version.GetShortVersion(),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// readSource decodes a SourceRequest body and enforces the source size
// limit.
func (s *Server) readSource(r *http.Request) (string, error) {
	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return "", errors.NewValidationError(errors.ErrCodeSourceTooLarge, "request body too large")
		}
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest, "request body must be JSON like {\"source\": \"...\"}")
	}

	if int64(len(req.Source)) > s.config.Playground.MaxSourceBytes {
		return "", errors.NewValidationError(errors.ErrCodeSourceTooLarge, "source exceeds the size limit").
			WithContext("bytes", len(req.Source))
	}

	return req.Source, nil
}

// absoluteURL resolves an absolute path against the configured public URL,
// or against the request's own host when none is configured.
func (s *Server) absoluteURL(r *http.Request, path string) (string, error) {
	if s.config.Server.PublicURL != "" {
		return validation.AbsoluteLink(s.config.Server.PublicURL, path)
	}

	scheme := "http"
	if r.TLS != nil || (s.security.TrustProxyHeaders && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")) {
		scheme = "https"
	}
	return scheme + "://" + r.Host + path, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errHandler.Handle(r.Context(), err)

	msg, code := publicError(err)
	s.writeJSONResponse(w, errors.HTTPStatus(err), ErrorResponse{Error: msg, Code: code})
}

// publicError returns the message and code safe to show a client. Causes
// of internal errors stay in the log.
func publicError(err error) (string, string) {
	var pe *errors.PlaygroundError
	if stderrors.As(err, &pe) && pe.Type != errors.ErrorTypeInternal {
		return pe.Message, pe.Code
	}
	return "internal server error", errors.ErrCodeInternalError
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn(context.Background(), err, "Failed to encode JSON response")
	}
}
