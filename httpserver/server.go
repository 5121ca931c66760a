package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/supplychain-registry-client/metrics"
	"go.uber.org/atomic"
)

// HTTPServerConfig configures the API and metrics listeners.
type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// Server serves the JSON API, the websocket stream and health endpoints.
type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *Handler
	hub        *Hub
}

// New creates a server for handler. gatherer is served on cfg.MetricsAddr
// when both are set.
func New(cfg *HTTPServerConfig, handler *Handler, hub *Hub, gatherer prometheus.Gatherer) (srv *Server, err error) {
	srv = &Server{
		cfg:     cfg,
		log:     cfg.Log,
		handler: handler,
		hub:     hub,
	}
	srv.isReady.Store(true)

	if cfg.MetricsAddr != "" && gatherer != nil {
		srv.metricsSrv, err = metrics.NewMetricsServer(cfg.MetricsAddr, gatherer)
		if err != nil {
			return nil, err
		}
	}

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)

		r.Get("/api/session", srv.handler.HandleGetSession)
		r.Post("/api/session/connect", srv.handler.HandleConnect)
		r.Post("/api/session/disconnect", srv.handler.HandleDisconnect)
		r.Get("/api/binding", srv.handler.HandleGetBinding)

		r.Get("/api/notifications", srv.handler.HandleListNotifications)
		r.Delete("/api/notifications/{id}", srv.handler.HandleDismissNotification)

		r.Post("/api/components", srv.handler.HandleRegisterComponent)
		r.Get("/api/components/{id}", srv.handler.HandleGetComponent)
		r.Get("/api/components/{id}/history", srv.handler.HandleGetHistory)
		r.Post("/api/components/{id}/transfer", srv.handler.HandleTransfer)
		r.Post("/api/components/{id}/status", srv.handler.HandleUpdateStatus)
		r.Get("/api/roles/{role}/{account}", srv.handler.HandleHasRole)

		r.Get("/api/catalog", srv.handler.HandleListCatalog)
		r.Post("/api/catalog/{id}", srv.handler.HandleSearchCatalog)

		// Health and diagnostic endpoints
		r.Get("/livez", srv.handleLivenessCheck)
		r.Get("/readyz", srv.handleReadinessCheck)
		r.Get("/drain", srv.setReadiness(false, "draining", "already draining"))
		r.Get("/undrain", srv.setReadiness(true, "ready", "already ready"))
	})

	// long lived, kept out of the request logger
	if srv.hub != nil {
		mux.Get("/ws", srv.hub.ServeWS)
	}

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

type healthResponse struct {
	Status string `json:"status"`
}

func writeHealth(w http.ResponseWriter, code int, status string) {
	body, _ := json.Marshal(healthResponse{Status: status})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, "alive")
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeHealth(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeHealth(w, http.StatusOK, "ready")
}

// setReadiness returns a handler moving readiness to ready. changed and
// unchanged are the reported statuses.
func (srv *Server) setReadiness(ready bool, changed, unchanged string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if srv.isReady.Swap(ready) == ready {
			writeHealth(w, http.StatusOK, unchanged)
			return
		}
		if ready {
			srv.log.Info("Server marked as ready")
		} else {
			srv.log.Info("Server marked as not ready", slog.Duration("drainDuration", srv.cfg.DrainDuration))
		}
		writeHealth(w, http.StatusOK, changed)
	}
}

// Handler returns the router, for tests and embedding.
func (srv *Server) Handler() http.Handler {
	return srv.srv.Handler
}

type listener interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

func (srv *Server) listeners() map[string]listener {
	ls := map[string]listener{"api": srv.srv}
	if srv.metricsSrv != nil {
		ls["metrics"] = srv.metricsSrv
	}
	return ls
}

// RunInBackground starts the API listener and, if configured, the metrics listener.
func (srv *Server) RunInBackground() {
	srv.log.Info("Starting HTTP server",
		slog.String("listenAddress", srv.cfg.ListenAddr),
		slog.String("metricsAddress", srv.cfg.MetricsAddr))

	for name, l := range srv.listeners() {
		name, l := name, l
		go func() {
			if err := l.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("HTTP server failed", slog.String("server", name), "err", err)
			}
		}()
	}
}

// Shutdown drains the server, if it is still ready, closes every websocket
// client and stops both listeners.
func (srv *Server) Shutdown() {
	if srv.isReady.Swap(false) && srv.cfg.DrainDuration > 0 {
		srv.log.Info("Draining before shutdown", slog.Duration("drainDuration", srv.cfg.DrainDuration))
		time.Sleep(srv.cfg.DrainDuration)
	}

	if srv.hub != nil {
		srv.hub.Close()
	}

	for name, l := range srv.listeners() {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		if err := l.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful shutdown failed", slog.String("server", name), "err", err)
		} else {
			srv.log.Info("Server gracefully stopped", slog.String("server", name))
		}
		cancel()
	}
}
