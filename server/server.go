package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"esim-dashboard/metrics"
	"esim-dashboard/utils"
)

const defaultShutdownTimeout = 10 * time.Second

// WebAPI is the dashboard HTTP server.
type WebAPI struct {
	router          *chi.Mux
	logger          *utils.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

// Dependencies are the collaborators the routes call into.
type Dependencies struct {
	Dashboard ReportSource
	Gatherer  prometheus.Gatherer
}

// Config configures a WebAPI.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

// NewWebAPI builds the router and an unstarted http.Server.
func NewWebAPI(logger *utils.Logger, config Config) *WebAPI {
	logger = logger.Named("server")
	router := ConfigureRouter(logger, config.Dependencies)

	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	return &WebAPI{
		router:          router,
		logger:          logger,
		shutdownTimeout: timeout,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ConfigureRouter builds the API routes without binding a listener.
func ConfigureRouter(logger *utils.Logger, deps Dependencies) *chi.Mux {
	h := NewHandler(deps.Dashboard)

	router := chi.NewRouter()
	router.Use(RequestLogger(logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", h.Health)
	if deps.Gatherer != nil {
		router.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/report", h.GetReport)
		r.Get("/products", h.ListProducts)
		r.Get("/sources", h.ListSources)
	})

	return router
}

// Handler returns the router.
func (w *WebAPI) Handler() http.Handler {
	return w.router
}

// Start serves until the listener fails or SIGINT/SIGTERM arrives.
func (w *WebAPI) Start() error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	go func() {
		w.logger.Info("Starting server on %s", w.server.Addr)
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-shutdown:
		w.logger.Info("Shutdown initiated")

		ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(ctx)
		if err != nil {
			w.logger.Error("Graceful shutdown failed: %v", err)
			err = w.server.Close()
		}
		return err
	}
}
