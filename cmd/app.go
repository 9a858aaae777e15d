package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jfmyers9/webscrobbler/internal/config"
	"github.com/jfmyers9/webscrobbler/internal/scrobbler"
	"github.com/jfmyers9/webscrobbler/internal/storage"
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/rs/zerolog"
)

const httpTimeout = 30 * time.Second

// app holds what every service-facing command needs: configuration, the
// credential store, the scrobble queue and a registry holding one client
// per enabled service.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *storage.DB
	queue    *scrobbler.Queue
	registry *lastfm.Registry
}

type appOptions struct {
	dataDir string // Overrides the configured data directory
	logFile string
}

// loadConfig loads configuration and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func openApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}

	services := cfg.EnabledServices()
	if len(services) == 0 {
		return nil, fmt.Errorf("no services configured: set services.<name>.api_key and api_secret in %s", cfg.Path())
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logger := setupLogger(opts.logFile, cfg.LogLevel)

	store, err := storage.Open(filepath.Join(cfg.DataDir, "documents.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	queue, err := scrobbler.NewQueue(filepath.Join(cfg.DataDir, "queue.db"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		queue:  queue,
	}

	httpClient := &http.Client{Timeout: httpTimeout}
	apiLogger := scrobbler.NewLogger(logger)

	var apiClients []*lastfm.Client
	for _, svc := range services {
		client, err := lastfm.NewClient(lastfm.Config{
			Label:        svc.Label,
			APIKey:       svc.APIKey,
			APISecret:    svc.APISecret,
			Store:        store.Namespace(svc.Label),
			Endpoints:    svc.Endpoints(),
			HTTPClient:   httpClient,
			TokenTimeout: svc.TokenTimeout,
			UserAgent:    "webscrobbler/" + version,
			Logger:       apiLogger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		apiClients = append(apiClients, client)
	}

	a.registry, err = lastfm.NewRegistry(apiClients...)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// serviceLabel returns the label of the service selected with --service,
// or of the configured default service.
func (a *app) serviceLabel() (string, error) {
	name := serviceArg
	if name == "" {
		name = a.cfg.Service
	}

	svc, ok := a.cfg.FindService(name)
	if !ok {
		return "", fmt.Errorf("unknown service %q", name)
	}
	if !svc.Enabled() {
		return "", fmt.Errorf("service %s has no api_key/api_secret configured", svc.Label)
	}
	return svc.Label, nil
}

// client returns the client selected with --service, or the configured
// default service.
func (a *app) client() (*scrobbler.Client, error) {
	label, err := a.serviceLabel()
	if err != nil {
		return nil, err
	}
	c, ok := a.clientFor(label)
	if !ok {
		return nil, fmt.Errorf("service %s is not available", label)
	}
	return c, nil
}

// clientFor wraps the registry client for label with the shared queue.
func (a *app) clientFor(label string) (*scrobbler.Client, bool) {
	api, ok := a.registry.Get(label)
	if !ok {
		return nil, false
	}
	return scrobbler.New(api, a.queue, a.logger), true
}

// clients returns a client per registered service, in registry order.
func (a *app) clients() []*scrobbler.Client {
	var out []*scrobbler.Client
	for _, label := range a.registry.Labels() {
		if c, ok := a.clientFor(label); ok {
			out = append(out, c)
		}
	}
	return out
}

// Close releases the queue and the credential store.
func (a *app) Close() error {
	var errs []error
	if a.queue != nil {
		errs = append(errs, a.queue.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
