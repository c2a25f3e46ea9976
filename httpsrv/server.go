// Package httpsrv assembles the chi router and middleware shared by the
// student endpoint and the evaluation API.
package httpsrv

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/programme-lv/pagesforge/logger"
)

type RouteRegisterer interface {
	RegisterRoutes(r chi.Router)
}

type HttpServer struct {
	router *chi.Mux
	log    *slog.Logger
}

// NewHttpServer builds a router with request logging, request ids and CORS.
// Empty origins allow any origin.
func NewHttpServer(name string, origins []string, handlers ...RouteRegisterer) *HttpServer {
	router := chi.NewRouter()

	log := httplog.NewLogger(name, httplog.Options{
		LogLevel:         slog.LevelDebug,
		Concise:          true,
		RequestHeaders:   true,
		MessageFieldName: "message",
		QuietDownRoutes:  []string{"/health"},
		QuietDownPeriod:  time.Minute,
	})

	router.Use(middleware.RequestID)
	router.Use(httplog.RequestLogger(log))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logger.WithLogger(r.Context(), httplog.LogEntry(r.Context()))))
		})
	})
	router.Use(logger.RequestIDMiddleware)
	router.Use(middleware.Recoverer)

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         3000,
	}))

	for _, h := range handlers {
		h.RegisterRoutes(router)
	}
	return &HttpServer{router: router, log: log.Logger}
}

func (s *HttpServer) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *HttpServer) Start(ctx context.Context, address string) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", slog.String("address", address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
