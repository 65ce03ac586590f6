// Package web is the HTTP front end: the responsible registry as a JSON API
// plus spreadsheet preview, conversion and template download.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/config"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/converter"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/logger"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/registry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the dependencies shared by the handlers.
type Server struct {
	config    *config.MainConfig
	registry  *registry.Registry
	converter *converter.Converter
	version   string
}

// New creates a Server. The registry is shared by all requests; it
// serializes its own calls.
func New(cfg *config.MainConfig, reg *registry.Registry, version string) *Server {
	return &Server{
		config:    cfg,
		registry:  reg,
		converter: converter.New(cfg),
		version:   version,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.healthCheckHandler)

		r.Route("/responsibles", func(r chi.Router) {
			r.Get("/", s.handleListResponsibles)
			r.Post("/", s.handleCreateResponsible)
			r.Get("/{id}", s.handleGetResponsible)
			r.Put("/{id}", s.handleUpdateResponsible)
			r.Delete("/{id}", s.handleDeleteResponsible)
		})

		r.Post("/preview", s.handlePreview)
		r.Post("/convert", s.handleConvert)
		r.Get("/template", s.handleTemplate)
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		WriteTimeout: 120 * time.Second,
		ReadTimeout:  40 * time.Second,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("Server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// requestLogger logs one line per request through the application logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]string{
		"status":  "available",
		"version": s.version,
	}

	if err := writeJSON(w, http.StatusOK, data); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
