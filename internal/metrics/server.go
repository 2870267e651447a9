package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cronkeep/internal/runtime/supervisor"
	"cronkeep/internal/scheduler"
	logx "cronkeep/pkg/logx"
)

// StatusSource is what /status and /healthz report on.
type StatusSource interface {
	Snapshot(ctx context.Context) scheduler.Snapshot
}

type ServerConfig struct {
	Addr string
	// Pprof mounts net/http/pprof under /debug.
	Pprof           bool
	ShutdownTimeout time.Duration
}

type Server struct {
	cfg       ServerConfig
	collector *Collector
	status    StatusSource
	sup       *supervisor.Supervisor
	log       logx.Logger
	startedAt time.Time
}

func NewServer(cfg ServerConfig, collector *Collector, status StatusSource, sup *supervisor.Supervisor, log logx.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{cfg: cfg, collector: collector, status: status, sup: sup, log: log, startedAt: time.Now()}
}

// Router builds the chi mux with all routes wired.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth())
	r.Get("/status", s.handleStatus())
	if s.collector != nil {
		r.Handle("/metrics", s.collector.Handler())
	}
	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("status server listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type HealthResponse struct {
	Status   string    `json:"status"`
	Running  bool      `json:"running"`
	Enabled  bool      `json:"enabled"`
	LastTick time.Time `json:"last_tick,omitempty"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.status.Snapshot(r.Context())
		resp := HealthResponse{Status: "ok", Running: snap.Running, Enabled: snap.Enabled, LastTick: snap.LastTick}
		code := http.StatusOK
		// Two missed minutes means the trigger is stuck.
		if !snap.Running || (!snap.LastTick.IsZero() && time.Since(snap.LastTick) > scheduler.StaleAfter) {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

type StatusResponse struct {
	Uptime     time.Duration      `json:"uptime_ns"`
	Scheduler  scheduler.Snapshot `json:"scheduler"`
	Goroutines []supervisor.Stats `json:"goroutines,omitempty"`
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:    time.Since(s.startedAt).Truncate(time.Second),
			Scheduler: s.status.Snapshot(r.Context()),
		}
		if s.sup != nil {
			resp.Goroutines = s.sup.Snapshot()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
