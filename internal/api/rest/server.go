package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vaultmesh/backup-sentinel/internal/domain/threat"
	"github.com/vaultmesh/backup-sentinel/internal/infrastructure/config"
	"github.com/vaultmesh/backup-sentinel/internal/service/admission"
	"github.com/vaultmesh/backup-sentinel/internal/service/auditlog"
)

// Server is the HTTP front of the security layer. Every API request
// passes through correlation, authentication, input screening and
// admission before it reaches a handler.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	redis    *redis.Client
	scanner  *threat.Scanner
	limiter  *admission.Limiter
	recorder *auditlog.Recorder

	httpServer *http.Server
}

// NewServer wires the server from its dependencies. Call Run to serve.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	redisClient *redis.Client,
	scanner *threat.Scanner,
	limiter *admission.Limiter,
	recorder *auditlog.Recorder,
) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		redis:    redisClient,
		scanner:  scanner,
		limiter:  limiter,
		recorder: recorder,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// routes builds the handler tree. Health and metrics sit outside the
// admission chain so probes and scrapes are never throttled or
// screened.
func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/backups", s.handleTriggerBackup)
	api.HandleFunc("GET /api/v1/security/categories", s.handleCategories)
	api.HandleFunc("POST /api/v1/admin/scan", s.requireAdmin(s.handleScan))
	api.HandleFunc("POST /api/v1/admin/unblock", s.requireAdmin(s.handleUnblock))

	guarded := chain(api,
		requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		securityHeadersMiddleware,
		s.authMiddleware,
		s.scanMiddleware,
		s.admissionMiddleware,
	)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.Handle("GET /metrics", promhttp.Handler())
	root.Handle("/api/", guarded)
	return root
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// the configured timeout and drains the audit recorder.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := s.recorder.Stop(shutdownCtx); err != nil {
		s.logger.Warn("audit recorder drain incomplete", zap.Error(err))
	}
	return nil
}

// Handler exposes the full middleware-wrapped handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
