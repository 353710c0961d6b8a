// Package api exposes the voting ledger over HTTP.
//
// Mutating routes take a signed auth.Envelope and identify the caller by the
// recovered signer address. Read routes are public.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"voting-ledger/service"
	"voting-ledger/storage"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxBodyBytes          = 1 << 20
)

type Server struct {
	ledger    *service.Ledger
	sequencer *service.Sequencer
	snapshots *storage.SnapshotStore
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
	timeout   time.Duration

	router     *mux.Router
	mu         sync.Mutex
	httpServer *http.Server
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSnapshots writes the results to store whenever voting is stopped
// through the API.
func WithSnapshots(store *storage.SnapshotStore) Option {
	return func(s *Server) { s.snapshots = store }
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer builds the HTTP handler. Mutations go through sequencer, which
// must be started by the caller; reads go straight to ledger.
func NewServer(ledger *service.Ledger, sequencer *service.Sequencer, opts ...Option) *Server {
	s := &Server{
		ledger:    ledger,
		sequencer: sequencer,
		logger:    zap.NewNop(),
		timeout:   defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/api/commits", s.handleCommit).Methods(http.MethodPost)
	r.HandleFunc("/api/reveals", s.handleReveal).Methods(http.MethodPost)
	r.HandleFunc("/api/stop", s.handleStop).Methods(http.MethodPost)

	r.HandleFunc("/api/commits/{address}", s.handleGetCommit).Methods(http.MethodGet)
	r.HandleFunc("/api/votes/{candidate}", s.handleGetVotes).Methods(http.MethodGet)
	r.HandleFunc("/api/results", s.handleGetResults).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleGetStatus).Methods(http.MethodGet)

	r.HandleFunc("/api/chain", s.handleGetChain).Methods(http.MethodGet)
	r.HandleFunc("/api/chain/audit", s.handleAuditChain).Methods(http.MethodGet)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("starting ledger API", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
