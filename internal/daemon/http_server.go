package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"facelane/internal/config"
	"facelane/internal/logging"
	"facelane/internal/services"
)

type httpServer struct {
	bind          string
	logger        *slog.Logger
	daemon        *Daemon
	auth          authenticator
	maxUpload     int64
	keepalive     time.Duration
	shutdownGrace time.Duration
	router        chi.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newHTTPServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *httpServer {
	s := &httpServer{
		bind:          cfg.API.Bind,
		logger:        logging.NewComponentLogger(logger, "api-server"),
		daemon:        d,
		auth:          newAuthenticator(cfg.API),
		maxUpload:     int64(cfg.API.MaxUploadMB) << 20,
		keepalive:     time.Duration(cfg.Events.KeepaliveSeconds) * time.Second,
		shutdownGrace: time.Duration(cfg.API.ShutdownGrace) * time.Second,
	}
	s.router = s.routes()
	return s
}

func (s *httpServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestContext, middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	if s.daemon.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.daemon.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/api/status", s.handleStatus)
		r.Post("/api/quick", s.handleQuick)
		r.Route("/api/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Post("/source", s.handleAttachSource)
				r.Post("/target", s.handleAttachTarget)
				r.Post("/webhook", s.handleSetWebhook)
				r.Post("/submit", s.handleSubmit)
				r.Post("/cancel", s.handleCancel)
				r.Get("/events", s.handleEvents)
				r.Get("/result", s.handleResult)
			})
		})
	})
	return r
}

func (s *httpServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *httpServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
		_ = server.Close()
	}
}

func (s *httpServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requestContext stamps a correlation id on the request and logs its outcome.
func (s *httpServer) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(middleware.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, requestID)
		ctx := services.WithRequestID(r.Context(), requestID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.logger.Debug("http request",
			logging.String(logging.FieldCorrelationID, requestID),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}
