package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rule-console/config"
	"rule-console/internal/console"
	"rule-console/internal/logger"
	"rule-console/internal/metrics"
	"rule-console/internal/store"
	"rule-console/internal/store/mqtt"
	natsstore "rule-console/internal/store/nats"
	"rule-console/internal/store/rest"
	"rule-console/internal/view"
)

// rootOptions holds the persistent flags
type rootOptions struct {
	configPath   string
	transport    string
	baseURL      string
	token        string
	role         string
	logLevel     string
	metricsAddr  string
	pollInterval time.Duration
	output       string
}

// app is everything a command needs, built from configuration and flags
type app struct {
	cfg      *config.Config
	logger   *logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    store.Store
	feed     *mqtt.Feed // nil unless an MQTT broker is configured
	closers  []func()
}

func newApp(opts *rootOptions) (*app, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	// Apply any command line overrides
	cfg.ApplyOverrides(opts.baseURL, opts.role, opts.logLevel, opts.metricsAddr, opts.pollInterval)
	if opts.transport != "" {
		cfg.Service.Transport = opts.transport
	}
	if opts.token != "" {
		cfg.Service.Token = opts.token
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   log,
		registry: registry,
		metrics:  m,
	}
	if err := a.buildStore(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// buildStore wires the configured transport, then decorates it. Retries
// wrap instrumentation so every attempt is observed.
func (a *app) buildStore() error {
	timeout := a.cfg.Service.RequestTimeout()

	var s store.Store
	switch a.cfg.Service.Transport {
	case config.TransportNATS:
		conn, err := natsstore.Connect(&a.cfg.NATS, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() {
			if err := conn.Drain(); err != nil {
				a.logger.Warn("failed to drain NATS connection", "error", err)
			}
		})
		s = natsstore.NewClient(conn, a.cfg.NATS.SubjectPrefix, timeout, a.logger)
	default:
		client, err := rest.NewClient(rest.Config{
			BaseURL: a.cfg.Service.BaseURL,
			Token:   a.cfg.Service.Token,
			Timeout: timeout,
		}, nil, a.logger)
		if err != nil {
			return err
		}
		s = client
	}

	if a.cfg.MQTT.Broker != "" {
		feed, err := mqtt.NewFeed(&a.cfg.MQTT, a.logger)
		if err != nil {
			return err
		}
		if err := feed.Start(); err != nil {
			return err
		}
		a.closers = append(a.closers, feed.Stop)
		a.feed = feed
		s = store.WithStatsSource(s, feed)
	}

	s = store.Instrument(s, a.metrics, a.logger)
	a.store = store.WithRetry(s, store.RetryPolicy{
		Attempts: a.cfg.Console.RetryAttempts,
		Backoff:  a.cfg.Console.Backoff(),
	}, a.logger)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

// newConsole builds a controller from configuration. The caller starts it.
func (a *app) newConsole(filter store.Filter, confirmer console.Confirmer, onChange func(view.State)) *console.Controller {
	return console.New(a.store, console.Options{
		PollInterval:         a.cfg.Console.PollEvery(),
		RequestTimeout:       a.cfg.Console.Timeout(),
		PageSize:             a.cfg.Console.PageSize,
		Filter:               filter,
		KeepEditsOnTabSwitch: !a.cfg.Console.DiscardEdits(),
		Authorizer: console.RoleAuthorizer{
			Role:         a.cfg.Auth.Role,
			ManagerRoles: a.cfg.Auth.ManagerRoles,
		},
		Confirmer: confirmer,
		Logger:    a.logger,
		Metrics:   a.metrics,
		OnChange:  onChange,
	})
}

// serveMetrics runs the metrics endpoint until ctx ends, if enabled
func (a *app) serveMetrics(ctx context.Context) {
	if !a.cfg.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{
		Registry:          a.registry,
		EnableOpenMetrics: true,
	}))
	server := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("starting metrics server",
			"address", a.cfg.Metrics.Address,
			"path", a.cfg.Metrics.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}()
}

// startConsole starts c and waits until the first rule list load settles
func startConsole(ctx context.Context, c *console.Controller, changes <-chan view.State) (view.State, error) {
	if err := c.Start(ctx); err != nil {
		return view.State{}, err
	}
	for {
		if s := c.State(); s.Status() != view.StatusLoading {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return view.State{}, ctx.Err()
		case <-changes:
		}
	}
}

// changeFeed returns an OnChange hook and the channel it feeds. Updates are
// dropped when the reader falls behind; the reader re-reads State anyway.
func changeFeed() (func(view.State), <-chan view.State) {
	ch := make(chan view.State, 16)
	return func(s view.State) {
		select {
		case ch <- s:
		default:
		}
	}, ch
}
