package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"solana-dex-router/internal/jsoncodec"
	"solana-dex-router/internal/pipeline"
)

// StateSource reports the pipeline lifecycle state.
type StateSource interface {
	State() pipeline.State
}

// Health is the /health response body.
type Health struct {
	Status           string  `json:"status"`
	State            string  `json:"state"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	SinceLastReceive float64 `json:"since_last_receive_seconds"`
	Stalled          bool    `json:"stalled"`
	Received         uint64  `json:"received"`
	Admitted         uint64  `json:"admitted"`
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Addr     string
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Metrics  SnapshotSource
	State    StateSource
	Logger   *zap.Logger
	Now      func() time.Time
}

// Server serves /metrics and /health.
type Server struct {
	opts   ServerOptions
	http   *http.Server
	logger *zap.Logger
}

// NewServer builds the server without starting it.
func NewServer(opts ServerOptions) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{opts: opts, logger: opts.Logger.Named("http")}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start listens in the background. Listener errors are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("listening", zap.String("addr", s.opts.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleHealth answers 200 while streaming and not stalled, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Metrics.Snapshot()
	state := s.opts.State.State()

	last := snap.StartTime
	if !snap.LastReceiveTime.IsZero() {
		last = snap.LastReceiveTime
	}

	h := Health{
		Status:           "ok",
		State:            state.String(),
		UptimeSeconds:    snap.Uptime.Seconds(),
		SinceLastReceive: s.opts.Now().Sub(last).Seconds(),
		Stalled:          snap.Stalled,
		Received:         snap.Received,
		Admitted:         snap.Admitted,
	}

	code := http.StatusOK
	if state != pipeline.StateStreaming || snap.Stalled {
		h.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := jsoncodec.NewEncoder(w).Encode(h); err != nil {
		s.logger.Debug("write health response", zap.Error(err))
	}
}
