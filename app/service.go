// Package app wires the simulation registry, metrics sinks and HTTP
// surface into a runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gridtwin/gridtwin/api/sessions"
	"github.com/gridtwin/gridtwin/config"
	coremetrics "github.com/gridtwin/gridtwin/core/metrics"
	"github.com/gridtwin/gridtwin/core/session"
	"github.com/gridtwin/gridtwin/infra/logger"
	"github.com/gridtwin/gridtwin/infra/metrics"
	"github.com/gridtwin/gridtwin/internal/eventbus"
)

// Service orchestrates the session registry and its HTTP surface.
type Service struct {
	Registry *session.Registry

	cfg     *config.Config
	handler *sessions.Handler
	bus     *eventbus.Bus[coremetrics.SessionEvent]
	sink    coremetrics.Sink
	log     logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.NewZerologLoggerWithLevel("service", cfg.Logging.Level)

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	factory := StrictFactory()
	if cfg.Session.Factory == "degraded" {
		factory = DegradedFactory(logg)
	}

	bus := eventbus.New[coremetrics.SessionEvent]()
	registry := session.NewRegistry(cfg.Session.Defaults, factory, ForecastDecorator(), sink, bus, logg)

	return &Service{
		Registry: registry,
		cfg:      cfg,
		handler:  sessions.New(registry, sink, logg),
		bus:      bus,
		sink:     sink,
		log:      logg,
	}, nil
}

// Run starts the HTTP surface and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.auditSessions(ctx)
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	s.handler.Register(mux)
	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
	}()

	s.log.Infof("api listening on %s", s.cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// auditSessions logs session lifecycle transitions published on the bus.
func (s *Service) auditSessions(ctx context.Context) {
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.log.Debugw("session event", map[string]any{
				"session_id": ev.SessionID,
				"action":     ev.Action,
			})
		}
	}
}

// Close shuts down all sessions best-effort and releases the service.
func (s *Service) Close() error {
	err := s.Registry.Close()
	s.bus.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	return err
}
