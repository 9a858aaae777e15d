// Package daemon runs the long-lived scrobbling process: it reads song
// events, keeps track of the current play and sends each event to the
// service it targets.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jfmyers9/webscrobbler/internal/scrobbler"
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/rs/zerolog"
)

// Config holds daemon configuration
type Config struct {
	StateFile       string        // Path to state persistence file
	ProcessInterval time.Duration // How often to flush the scrobble queue
	Input           io.Reader     // NDJSON event stream
	DefaultService  string        // Label for events that do not name one
}

// Daemon coordinates the event reader, state tracking and scrobbling.
type Daemon struct {
	config    Config
	registry  *lastfm.Registry
	queue     *scrobbler.Queue
	state     *State
	reader    *Reader
	logger    zerolog.Logger
	apiLogger zerolog.Logger
	now       func() time.Time
}

// New creates a Daemon that sends each event to the registry client named
// by the event, or to cfg.DefaultService. A registry holding one client
// makes that client the default. queue backs every client; the daemon owns
// it from here on and closes it in Shutdown.
func New(cfg Config, registry *lastfm.Registry, queue *scrobbler.Queue, logger zerolog.Logger) (*Daemon, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, errors.New("no services configured")
	}
	if cfg.Input == nil {
		return nil, errors.New("no event input configured")
	}
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = 30 * time.Second
	}
	if cfg.DefaultService == "" && registry.Len() == 1 {
		cfg.DefaultService = registry.Labels()[0]
	}
	if cfg.DefaultService != "" {
		if _, ok := registry.Get(cfg.DefaultService); !ok {
			return nil, fmt.Errorf("default service %q is not configured", cfg.DefaultService)
		}
	}

	apiLogger := logger
	logger = logger.With().Str("component", "daemon").Logger()

	state, err := NewState(cfg.StateFile)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to restore state, starting fresh")
	}

	return &Daemon{
		config:    cfg,
		registry:  registry,
		queue:     queue,
		state:     state,
		reader:    NewReader(cfg.Input, logger),
		logger:    logger,
		apiLogger: apiLogger,
		now:       time.Now,
	}, nil
}

// Run starts the daemon and blocks until the input ends or a shutdown
// signal is received.
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	if err := d.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// run is the main daemon loop
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().
		Int("services", d.registry.Len()).
		Str("default", d.config.DefaultService).
		Msg("Starting daemon")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Events that were already read are still handled during shutdown.
	handleCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	updates := make(chan EventUpdate, 10)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(updates)
		if err := d.reader.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error().Err(err).Msg("Reader error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		// The input is done; stop the queue processor too.
		defer cancel()
		for update := range updates {
			if update.Err != nil {
				d.logger.Warn().Err(update.Err).Msg("Skipping event")
				continue
			}
			if err := d.handleEvent(handleCtx, *update.Event); err != nil {
				d.logger.Error().Err(err).Str("id", update.Event.ID).Msg("Failed to handle event")
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.processQueue(ctx)
	}()

	wg.Wait()

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// handleEvent sends one event to the service it targets.
func (d *Daemon) handleEvent(ctx context.Context, event Event) error {
	client, err := d.clientFor(event.Service)
	if err != nil {
		return err
	}

	song := event.Song()
	if song.StartTimestamp.IsZero() {
		song.StartTimestamp = d.resolveStart(event.Type, song)
	}

	logger := d.logger.With().
		Str("id", event.ID).
		Str("service", client.Label()).
		Str("type", string(event.Type)).
		Str("track", song.Track).
		Str("artist", song.Artist).
		Logger()

	switch event.Type {
	case EventNowPlaying:
		return d.nowPlaying(ctx, client, song, logger)
	case EventScrobble:
		return d.scrobble(ctx, client, song, event.PlayedDuration(), logger)
	case EventLove, EventUnlove:
		return d.love(ctx, client, song, event.Type == EventLove, logger)
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
}

func (d *Daemon) nowPlaying(ctx context.Context, client *scrobbler.Client, song lastfm.Song, logger zerolog.Logger) error {
	isNew, err := d.state.Begin(song)
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	if isNew {
		logger.Info().Msg("Track changed")
	}

	if current, _ := d.state.Current(); current.NowPlayingSent {
		logger.Debug().Msg("Now playing already sent for this play")
		return nil
	}

	if client.NowPlaying(ctx, song) != lastfm.ResultOK {
		// Left unset so a re-sent event tries again.
		return nil
	}

	if _, err := d.state.Update(song, func(p *PlayState) { p.NowPlayingSent = true }); err != nil {
		return fmt.Errorf("failed to mark now playing: %w", err)
	}
	return nil
}

func (d *Daemon) scrobble(ctx context.Context, client *scrobbler.Client, song lastfm.Song, played time.Duration, logger zerolog.Logger) error {
	if _, err := d.state.Begin(song); err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}

	if current, _ := d.state.Current(); current.Scrobbled {
		logger.Debug().Msg("Play already scrobbled")
		return nil
	}

	if !scrobbler.Eligible(song, played) {
		logger.Info().
			Dur("duration", song.Duration).
			Dur("played", played).
			Msg("Play does not meet the scrobble rules, skipping")
		return nil
	}

	logger.Info().Dur("played", played).Msg("Scrobbling track")

	// Failed scrobbles are queued by the client, so the play counts as
	// handled either way.
	client.Scrobble(ctx, song)

	if _, err := d.state.Update(song, func(p *PlayState) { p.Scrobbled = true }); err != nil {
		return fmt.Errorf("failed to mark scrobbled: %w", err)
	}
	return nil
}

func (d *Daemon) love(ctx context.Context, client *scrobbler.Client, song lastfm.Song, loved bool, logger zerolog.Logger) error {
	if client.Love(ctx, song, loved) != lastfm.ResultOK {
		logger.Warn().Bool("loved", loved).Msg("Love state not updated")
		return nil
	}

	if _, err := d.state.Update(song, func(p *PlayState) { p.Loved = loved }); err != nil {
		return fmt.Errorf("failed to record love: %w", err)
	}
	return nil
}

// resolveStart picks a start time for an event that did not carry one: the
// current play's if it is the same track, now otherwise.
func (d *Daemon) resolveStart(eventType EventType, song lastfm.Song) time.Time {
	current, ok := d.state.Current()
	if !ok || !sameTrack(current.Song, song) {
		return d.now()
	}
	// A now-playing after the play was scrobbled is a replay.
	if eventType == EventNowPlaying && current.Scrobbled {
		start := d.now()
		if start.Unix() <= current.Song.StartTimestamp.Unix() {
			start = current.Song.StartTimestamp.Add(time.Second)
		}
		return start
	}
	return current.Song.StartTimestamp
}

// clientFor resolves label, or the default service when label is empty.
func (d *Daemon) clientFor(label string) (*scrobbler.Client, error) {
	if label == "" {
		label = d.config.DefaultService
	}
	if label == "" {
		return nil, errors.New("event names no service and no default service is set")
	}
	api, ok := d.registry.Get(label)
	if !ok {
		return nil, fmt.Errorf("unknown service %q", label)
	}
	return scrobbler.New(api, d.queue, d.apiLogger), nil
}

// processQueue periodically flushes the scrobble queue of every service.
func (d *Daemon) processQueue(ctx context.Context) {
	ticker := time.NewTicker(d.config.ProcessInterval)
	defer ticker.Stop()

	// Process immediately on start
	d.flushAll(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Processing final scrobbles before shutdown")
			d.flushAll(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			d.flushAll(ctx)
		}
	}
}

// flushAll drains each queue in batches until it is empty or a batch
// fails.
func (d *Daemon) flushAll(ctx context.Context) {
	for _, label := range d.registry.Labels() {
		c, err := d.clientFor(label)
		if err != nil {
			continue
		}
		for {
			stats, err := c.Flush(ctx)
			if err != nil {
				d.logger.Error().Err(err).Str("service", c.Label()).Msg("Failed to flush queue")
				break
			}
			if stats.Result != lastfm.ResultOK || stats.Pending < lastfm.MaxBatchSize {
				break
			}
		}
	}
}

// Shutdown cleans up old queue rows and closes the queue.
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	if d.queue == nil {
		return nil
	}

	ctx := context.Background()

	if n, err := d.queue.Cleanup(ctx, 7*24*time.Hour); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to cleanup queue")
	} else if n > 0 {
		d.logger.Info().Int64("deleted", n).Msg("Removed old scrobbles")
	}

	if n, err := d.queue.CleanupExpired(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to cleanup expired scrobbles")
	} else if n > 0 {
		d.logger.Info().Int64("deleted", n).Msg("Dropped scrobbles the service would reject")
	}

	if err := d.queue.Close(); err != nil {
		return fmt.Errorf("failed to close queue: %w", err)
	}

	return nil
}
