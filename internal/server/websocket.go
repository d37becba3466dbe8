package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/conneroisu/tstlplay/internal/compiler"
	"github.com/conneroisu/tstlplay/internal/errors"
	"github.com/conneroisu/tstlplay/internal/logging"
	"github.com/conneroisu/tstlplay/internal/validation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Idle connections are closed after this long without a message.
	readWait = 5 * time.Minute

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second
)

// liveRequest is sent by the page whenever the editor settles.
type liveRequest struct {
	ID     int    `json:"id"`
	Source string `json:"source"`
}

// liveResponse answers a liveRequest with the same ID.
type liveResponse struct {
	ID          int                   `json:"id"`
	Lua         string                `json:"lua"`
	SourceMap   string                `json:"source_map,omitempty"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics"`
	Fragment    string                `json:"fragment"`
	Link        string                `json:"link"`
	Error       string                `json:"error,omitempty"`
	Code        string                `json:"code,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	if s.shuttingDown() {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}

	if !s.trackConn(conn) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.untrackConn(conn)

	ctx := logging.ContextWithRequestID(context.Background(), logging.RequestID(r.Context()))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.serveLiveCompile(ctx, conn, getClientIP(r, s.security.TrustProxyHeaders))
}

// serveLiveCompile answers compile requests until the peer goes away. Each
// connection has its own limiter so one tab cannot starve another.
func (s *Server) serveLiveCompile(ctx context.Context, conn *websocket.Conn, clientIP string) {
	logger := logging.FromContext(ctx, s.logger).With("client_ip", clientIP)
	limiter := NewSlidingWindowRateLimiter(s.config.Playground.CompileRatePerMinute, time.Minute)

	conn.SetReadLimit(s.bodyLimit())

	go s.keepAlive(ctx, conn)

	logger.Debug(ctx, "live compile connected")
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var req liveRequest
		readCtx, readCancel := context.WithTimeout(ctx, readWait)
		err := wsjson.Read(readCtx, conn, &req)
		readCancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				logger.Debug(ctx, "live compile closed", "error", err.Error())
			}
			return
		}

		resp := s.liveCompile(ctx, limiter, req)

		writeCtx, writeCancel := context.WithTimeout(ctx, writeWait)
		err = wsjson.Write(writeCtx, conn, resp)
		writeCancel()
		if err != nil {
			logger.Warn(ctx, err, "WebSocket write error")
			return
		}
	}
}

func (s *Server) liveCompile(ctx context.Context, limiter *SlidingWindowRateLimiter, req liveRequest) liveResponse {
	resp := liveResponse{ID: req.ID, Diagnostics: []compiler.Diagnostic{}}

	if int64(len(req.Source)) > s.config.Playground.MaxSourceBytes {
		err := errors.NewValidationError(errors.ErrCodeSourceTooLarge, "source exceeds the size limit")
		resp.Error, resp.Code = err.Message, err.Code
		return resp
	}

	resp.Fragment = s.codec.Fragment(req.Source)
	resp.Link = s.codec.BuildShareableLink(req.Source)

	if !limiter.IsAllowed() {
		resp.Error = "rate limit exceeded, retry in " + limiter.RetryAfter().Round(time.Second).String()
		resp.Code = errors.ErrCodeRateLimited
		return resp
	}

	result, err := s.compiler.Compile(ctx, req.Source)
	if err != nil {
		s.errHandler.Handle(ctx, err)
		resp.Error, resp.Code = publicError(err)
		return resp
	}

	resp.Lua = result.Lua
	resp.SourceMap = result.SourceMap
	if result.Diagnostics != nil {
		resp.Diagnostics = result.Diagnostics
	}

	return resp
}

func (s *Server) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// checkOrigin accepts same-host browsers and configured origins. Requests
// without an Origin header are rejected; only browsers use this endpoint.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	allowed := append([]string{r.Host}, s.config.Server.AllowedOrigins...)
	return validation.ValidateOrigin(origin, allowed) == nil
}

// originPatterns lists configured origins as the host patterns
// websocket.Accept matches against.
func (s *Server) originPatterns() []string {
	patterns := make([]string, 0, len(s.config.Server.AllowedOrigins))
	for _, origin := range s.config.Server.AllowedOrigins {
		if strings.Contains(origin, "://") {
			if u, err := url.Parse(origin); err == nil && u.Host != "" {
				patterns = append(patterns, u.Host)
			}
			continue
		}
		patterns = append(patterns, origin)
	}
	return patterns
}

func (s *Server) trackConn(conn *websocket.Conn) bool {
	s.connsMutex.Lock()
	defer s.connsMutex.Unlock()
	if s.isShutdown {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrackConn(conn *websocket.Conn) {
	s.connsMutex.Lock()
	defer s.connsMutex.Unlock()
	delete(s.conns, conn)
}

func (s *Server) shuttingDown() bool {
	s.connsMutex.Lock()
	defer s.connsMutex.Unlock()
	return s.isShutdown
}

// closeConns starts the close handshake on every live connection. Close
// waits for the peer, so each runs on its own goroutine.
func (s *Server) closeConns() {
	s.connsMutex.Lock()
	defer s.connsMutex.Unlock()
	s.isShutdown = true
	for conn := range s.conns {
		go conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	s.conns = make(map[*websocket.Conn]struct{})
}
