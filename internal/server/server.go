package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/finbot/finbot/internal/config"
	"github.com/finbot/finbot/internal/scheduler"
	"github.com/rs/zerolog/log"
)

type Server struct {
	cfg   *config.Config
	deps  *Deps
	sched *scheduler.Scheduler
	http  *http.Server
}

// New wires the server around deps. deps are closed when Run returns.
func New(cfg *config.Config, deps *Deps) (*Server, error) {
	s := &Server{cfg: cfg, deps: deps}

	sched, err := scheduler.New(cfg.SubscriptionResetCron, resetter(deps), deps.Gate, nil)
	if err != nil {
		return nil, fmt.Errorf("setup scheduler: %w", err)
	}
	s.sched = sched

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.WebhookTimeout+10) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Run(ctx context.Context) error {
	s.sched.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		runErr = s.http.Shutdown(shutdownCtx)
		s.sched.Stop(shutdownCtx)
	case runErr = <-errCh:
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.sched.Stop(stopCtx)
	}

	if err := s.deps.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing confirm store")
	} else {
		log.Info().Msg("confirm store closed")
	}
	return runErr
}

// resetter returns nil when there is no checklist to reset.
func resetter(d *Deps) scheduler.SubscriptionResetter {
	if d.Tracker == nil || !d.Tracker.Has("subscriptions") {
		return nil
	}
	return d.Tracker
}
