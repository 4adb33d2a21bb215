package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fileexporter/internal/logging"
)

// DefaultPath is where metrics are served when no path is configured.
const DefaultPath = "/metrics"

// Server exposes a Gatherer for scraping.
type Server struct {
	bind   string
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	handler  http.Handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPath overrides the scrape path.
func WithPath(path string) ServerOption {
	return func(s *Server) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		s.path = path
	}
}

// NewServer builds a server for gatherer bound to bind ("host:port").
func NewServer(bind string, gatherer prometheus.Gatherer, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if gatherer == nil {
		return nil, errors.New("metrics server: gatherer is required")
	}
	if strings.TrimSpace(bind) == "" {
		return nil, errors.New("metrics server: bind address is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		bind:   bind,
		path:   DefaultPath,
		logger: logging.NewComponentLogger(logger, "metrics-server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:          promLogger{logger: s.logger},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz", s.handleHealth)
	s.handler = mux

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler serving the scrape and health endpoints.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves in the background until ctx is cancelled or Stop
// is called. Bind failures are returned.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.bind, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("metrics server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("path", s.path),
	)
	return nil
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "method not allowed"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// promLogger routes promhttp's error log into slog.
type promLogger struct {
	logger *slog.Logger
}

func (l promLogger) Println(v ...any) {
	l.logger.Warn("metrics gather error", logging.String("detail", strings.TrimSpace(fmt.Sprintln(v...))))
}
