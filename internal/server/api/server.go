// Package api exposes the sync engine over HTTP: submitting window syncs,
// polling jobs, count comparison and drift verification, behind JWT bearer
// auth.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/finvista/acusync/internal/engine"
	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/models"
	"github.com/finvista/acusync/internal/server/config"
)

// SyncEngine runs one submitted job to completion.
type SyncEngine interface {
	Run(ctx context.Context, jobID string, req engine.SyncRequest) error
}

// JobTracker is the job-lifecycle surface the handlers use.
type JobTracker interface {
	Submit(ctx context.Context, kind models.Kind, start, end time.Time) (*models.SyncJob, bool, error)
	Poll(ctx context.Context, jobID string) (*models.SyncJob, error)
	Cancel(ctx context.Context, jobID string) error
	WaitForCompletion(ctx context.Context, jobID string, pollInterval time.Duration) (*models.SyncJob, error)
}

// Comparer is the count-reconciliation surface.
type Comparer interface {
	Compare(ctx context.Context, kind models.Kind, start, end time.Time) (engine.Comparison, error)
}

// DriftVerifier is the drift-verification surface.
type DriftVerifier interface {
	Verify(ctx context.Context, kind models.Kind, start, end time.Time, fix bool) (*engine.VerifyReport, error)
}

// Server wires the HTTP handlers to the engine components.
type Server struct {
	engine     SyncEngine
	tracker    JobTracker
	reconciler Comparer
	verifier   DriftVerifier

	cfg      *config.Config
	validate *validator.Validate
	logger   logging.Logger

	httpSrv *http.Server
}

// NewServer builds the API server.
func NewServer(cfg *config.Config, eng SyncEngine, tracker JobTracker, reconciler Comparer, verifier DriftVerifier, logger logging.Logger) *Server {
	s := &Server{
		engine:     eng,
		tracker:    tracker,
		reconciler: reconciler,
		verifier:   verifier,
		cfg:        cfg,
		validate:   validator.New(),
		logger:     logger,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/sync", s.handleSync)
			r.Get("/jobs/{jobID}", s.handleJob)
			r.Post("/jobs/{jobID}/cancel", s.handleCancel)
			r.Post("/compare", s.handleCompare)
			r.Post("/verify", s.handleVerify)
		})
	})

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
