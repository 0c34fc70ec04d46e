package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/config"
	"github.com/stustapay/stustapayd/internal/metrics"
)

// Server wraps one HTTP listener of the daemon. Three of them run side
// by side (administration, terminal, customer portal), each with its
// own port and router but shared middleware.
type Server struct {
	name       string
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds a server for one API family. The handler is wrapped
// with CORS, request logging and per-request metrics before it is
// mounted. Websocket upgrades skip the timeout wrapper because it
// buffers responses and breaks connection hijacking.
func NewServer(name string, cfg config.HTTPServerConfig, timeout time.Duration, handler http.Handler, logger zerolog.Logger) *Server {
	l := logger.With().Str("api", name).Logger()
	wrapped := withCORS(withObservability(name, l, handler))
	timed := http.TimeoutHandler(wrapped, timeout, `{"id":"Internal","message":"request timed out"}`)
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebsocketUpgrade(r) {
			wrapped.ServeHTTP(w, r)
			return
		}
		timed.ServeHTTP(w, r)
	})
	return &Server{
		name: name,
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: l,
	}
}

func isWebsocketUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") == "websocket"
}

// Name returns the API family name the server was built for.
func (s *Server) Name() string {
	return s.name
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving requests until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s api: %w", s.name, err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// withCORS sets permissive CORS headers and answers preflight
// requests. The portal frontend and the terminal app are served from
// other origins.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Range")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withObservability logs every request and feeds the request
// histogram. Websocket upgrades bypass the recorder because the hub
// takes over the connection.
func withObservability(api string, logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebsocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		code := strconv.Itoa(rec.status)
		metrics.ObserveHTTPRequest(api, code, started)
		evt := logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			evt = logger.Error()
		} else if rec.status >= http.StatusBadRequest {
			evt = logger.Warn()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}
