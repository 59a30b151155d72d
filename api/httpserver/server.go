package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/flashbots/lay/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"
)

// DefaultReadinessTimeout bounds a single ReadinessCheck call.
const DefaultReadinessTimeout = 2 * time.Second

// RouteRegistrar mounts a component's routes on the server router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Drainer is implemented by registrars that stop accepting writes once the
// drain period has passed.
type Drainer interface {
	SetDraining(draining bool)
}

// HTTPServerConfig configures a BaseServer.
type HTTPServerConfig struct {
	ListenAddr string

	// MetricsAddr enables the metrics listener when set.
	MetricsAddr string

	// MetricsNamespace prefixes exported metric names. Defaults to "lay".
	MetricsNamespace string

	EnablePprof bool

	Log *slog.Logger

	// ReadinessCheck, when set, is consulted by /readyz. A store ping is the
	// usual choice.
	ReadinessCheck   func(ctx context.Context) error
	ReadinessTimeout time.Duration

	// DrainDuration is how long the server reports not ready before Drainer
	// registrars are switched to draining.
	DrainDuration time.Duration

	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// BaseServer serves registrar routes next to health, drain and pprof
// endpoints and owns the metrics listener.
type BaseServer struct {
	cfg      *HTTPServerConfig
	log      *slog.Logger
	drainers []Drainer

	isReady atomic.Bool

	mu         sync.Mutex
	drainTimer *time.Timer
	drained    chan struct{}

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
}

// New builds a server for the registrars. It does not start listening.
func New(cfg *HTTPServerConfig, routeRegistrars ...RouteRegistrar) (*BaseServer, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = DefaultReadinessTimeout
	}
	namespace := cfg.MetricsNamespace
	if namespace == "" {
		namespace = "lay"
	}
	metricsSrv, err := metrics.New(namespace, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}

	srv := &BaseServer{
		cfg:        cfg,
		log:        cfg.Log,
		metricsSrv: metricsSrv,
	}
	for _, registrar := range routeRegistrars {
		if d, ok := registrar.(Drainer); ok {
			srv.drainers = append(srv.drainers, d)
		}
	}

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.routes(routeRegistrars),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	srv.isReady.Store(true)
	return srv, nil
}

func (srv *BaseServer) routes(registrars []RouteRegistrar) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)
		for _, registrar := range registrars {
			registrar.RegisterRoutes(r)
		}

		r.Get("/livez", srv.handleLivez)
		r.Get("/readyz", srv.handleReadyz)
		r.Get("/drain", srv.handleDrain)
		r.Get("/undrain", srv.handleUndrain)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *BaseServer) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (srv *BaseServer) handleLivez(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

// handleReadyz fails while drained and when the readiness check fails. The
// check error is logged, not returned.
func (srv *BaseServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "draining")
		return
	}
	if srv.cfg.ReadinessCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), srv.cfg.ReadinessTimeout)
		defer cancel()
		if err := srv.cfg.ReadinessCheck(ctx); err != nil {
			srv.log.Warn("readiness check failed", "err", err)
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeStatus(w, http.StatusOK, "ready")
}

func (srv *BaseServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.startDrain() {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}
	writeStatus(w, http.StatusOK, "draining")
}

func (srv *BaseServer) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if !srv.Undrain() {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

// Drain marks the server not ready and, after DrainDuration, switches every
// Drainer registrar to draining. The returned channel is closed when that
// happens or when Undrain cancels the drain.
func (srv *BaseServer) Drain() <-chan struct{} {
	srv.startDrain()
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.drained == nil {
		// undrained between the two locks
		done := make(chan struct{})
		close(done)
		return done
	}
	return srv.drained
}

// startDrain reports whether this call began a drain.
func (srv *BaseServer) startDrain() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.drained != nil {
		return false
	}

	srv.isReady.Store(false)
	srv.log.Info("server draining", "drainDuration", srv.cfg.DrainDuration)

	done := make(chan struct{})
	srv.drained = done
	srv.drainTimer = time.AfterFunc(srv.cfg.DrainDuration, func() {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		if srv.drained == done {
			srv.setDraining(true)
			srv.log.Info("drain period completed")
		}
		close(done)
	})
	return true
}

// Undrain cancels a drain and restores readiness. It reports whether the
// server was draining.
func (srv *BaseServer) Undrain() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.drained == nil {
		return false
	}

	// a stopped timer never runs its callback, so close on its behalf
	if srv.drainTimer.Stop() {
		close(srv.drained)
	}
	srv.drained = nil
	srv.drainTimer = nil
	srv.setDraining(false)
	srv.isReady.Store(true)
	srv.log.Info("server ready")
	return true
}

// setDraining must be called with mu held.
func (srv *BaseServer) setDraining(draining bool) {
	for _, d := range srv.drainers {
		d.SetDraining(draining)
	}
}

// Handler returns the router, for tests that drive the server with httptest.
func (srv *BaseServer) Handler() http.Handler {
	return srv.srv.Handler
}

// IsReady reports whether the server is not drained.
func (srv *BaseServer) IsReady() bool {
	return srv.isReady.Load()
}

// RunInBackground starts the HTTP listener and, if configured, the metrics listener.
func (srv *BaseServer) RunInBackground() {
	if srv.cfg.MetricsAddr != "" {
		go srv.serve("metrics", srv.cfg.MetricsAddr, srv.metricsSrv.ListenAndServe)
	}
	go srv.serve("http", srv.cfg.ListenAddr, srv.srv.ListenAndServe)
}

func (srv *BaseServer) serve(name, addr string, listen func() error) {
	srv.log.Info("listening", "server", name, "addr", addr)
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		srv.log.Error("listener failed", "server", name, "err", err)
	}
}

// Shutdown stops both listeners within GracefulShutdownDuration.
func (srv *BaseServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()

	stops := map[string]func(context.Context) error{"http": srv.srv.Shutdown}
	if srv.cfg.MetricsAddr != "" {
		stops["metrics"] = srv.metricsSrv.Shutdown
	}
	for name, stop := range stops {
		if err := stop(ctx); err != nil {
			srv.log.Error("graceful shutdown failed", "server", name, "err", err)
			continue
		}
		srv.log.Info("server stopped", "server", name)
	}
}
