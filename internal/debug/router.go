// Package debug serves a local HTTP view of the offline cache, the pager
// state and the Prometheus metrics.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ajramos/gmail-inbox/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PagerView exposes the pager state
type PagerView interface {
	Snapshot() services.PagerSnapshot
}

// Config holds dependencies for the debug router
type Config struct {
	Cache  services.PageCache
	Pager  PagerView
	Logger *zap.Logger
}

type cacheResponse struct {
	Account string                   `json:"account"`
	Key     string                   `json:"key"`
	Found   bool                     `json:"found"`
	Records []services.DisplayRecord `json:"records"`
}

// NewRouter creates the chi router with all debug routes
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/debug", func(r chi.Router) {
		r.Get("/cache/{account}", handleGetCache(cfg.Cache))
		r.Delete("/cache", handleClearCache(cfg.Cache, cfg.Logger))
		r.Get("/pager", handlePager(cfg.Pager))
	})
	return r
}

func handleGetCache(cache services.PageCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			writeError(w, http.StatusServiceUnavailable, services.ErrCacheUnavailable.Error())
			return
		}
		account := chi.URLParam(r, "account")
		records, ok, err := cache.Get(r.Context(), account)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrCacheCorrupted) {
				status = http.StatusUnprocessableEntity
			}
			writeError(w, status, err.Error())
			return
		}
		if records == nil {
			records = []services.DisplayRecord{}
		}
		writeJSON(w, http.StatusOK, cacheResponse{
			Account: account,
			Key:     services.CacheKey(account),
			Found:   ok,
			Records: records,
		})
	}
}

func handleClearCache(cache services.PageCache, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			writeError(w, http.StatusServiceUnavailable, services.ErrCacheUnavailable.Error())
			return
		}
		if err := cache.Clear(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		logger.Info("offline cache cleared over debug endpoint")
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePager(pager PagerView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pager == nil {
			writeError(w, http.StatusNotFound, "no pager")
			return
		}
		writeJSON(w, http.StatusOK, pager.Snapshot())
	}
}

// requestLogger logs through zap so nothing is written to the terminal
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("debug request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server runs the debug router on a local address
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
}

// Listen binds addr and returns a server ready to Serve
func Listen(addr string, cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}, nil
}

// Addr is the bound address
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until Shutdown
func (s *Server) Serve() error {
	s.logger.Info("debug server listening", zap.String("addr", s.Addr()))
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
