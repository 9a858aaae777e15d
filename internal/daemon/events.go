package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/rs/zerolog"
)

// EventType says what a page reported.
type EventType string

const (
	EventNowPlaying EventType = "nowplaying"
	EventScrobble   EventType = "scrobble"
	EventLove       EventType = "love"
	EventUnlove     EventType = "unlove"
)

// Event is one line of the input stream.
//
// Durations are in seconds and timestamps in unix seconds; zero means
// unknown. Service restricts the event to a single label.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	Service        string    `json:"service,omitempty"`
	Artist         string    `json:"artist"`
	Track          string    `json:"track"`
	Album          string    `json:"album,omitempty"`
	AlbumArtist    string    `json:"albumArtist,omitempty"`
	Duration       int64     `json:"duration,omitempty"`
	StartTimestamp int64     `json:"startTimestamp,omitempty"`
	Played         int64     `json:"played,omitempty"`
}

// Validate checks the fields every event type needs.
func (e Event) Validate() error {
	switch e.Type {
	case EventNowPlaying, EventScrobble, EventLove, EventUnlove:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if strings.TrimSpace(e.Artist) == "" || strings.TrimSpace(e.Track) == "" {
		return errors.New("artist and track are required")
	}
	if e.Duration < 0 || e.Played < 0 {
		return errors.New("duration and played must not be negative")
	}
	return nil
}

// Song converts the event to the song sent to the service.
func (e Event) Song() lastfm.Song {
	song := lastfm.Song{
		Artist:      e.Artist,
		Track:       e.Track,
		Album:       e.Album,
		AlbumArtist: e.AlbumArtist,
		Duration:    time.Duration(e.Duration) * time.Second,
	}
	if e.StartTimestamp > 0 {
		song.StartTimestamp = time.Unix(e.StartTimestamp, 0)
	}
	return song
}

// PlayedDuration returns how long the song has played, zero if unknown.
func (e Event) PlayedDuration() time.Duration {
	return time.Duration(e.Played) * time.Second
}

// EventUpdate is sent by the Reader for every non-empty line.
type EventUpdate struct {
	Event *Event // Decoded event (nil on error)
	Err   error  // Decode or validation error
}

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 64 * 1024

// Reader decodes newline-delimited JSON events.
type Reader struct {
	r      io.Reader
	logger zerolog.Logger
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, logger zerolog.Logger) *Reader {
	return &Reader{
		r:      r,
		logger: logger.With().Str("component", "reader").Logger(),
	}
}

// Run reads events until EOF or until ctx is cancelled and sends them on
// updates. It returns nil on EOF.
//
// If the underlying reader is an io.Closer it is closed when ctx is done so
// that a blocked read returns.
func (r *Reader) Run(ctx context.Context, updates chan<- EventUpdate) error {
	r.logger.Info().Msg("Reading events")

	done := make(chan struct{})
	defer close(done)
	if c, ok := r.r.(io.Closer); ok {
		go func() {
			select {
			case <-ctx.Done():
				_ = c.Close()
			case <-done:
			}
		}()
	}

	scanner := bufio.NewScanner(r.r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		update := r.decode(text)
		if update.Err != nil {
			update.Err = fmt.Errorf("line %d: %w", line, update.Err)
		}

		select {
		case updates <- update:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	r.logger.Info().Int("lines", line).Msg("Event stream closed")
	return nil
}

func (r *Reader) decode(text string) EventUpdate {
	var event Event
	if err := json.Unmarshal([]byte(text), &event); err != nil {
		return EventUpdate{Err: fmt.Errorf("invalid event: %w", err)}
	}
	if err := event.Validate(); err != nil {
		return EventUpdate{Err: fmt.Errorf("invalid event: %w", err)}
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	r.logger.Debug().
		Str("id", event.ID).
		Str("type", string(event.Type)).
		Str("track", event.Track).
		Str("artist", event.Artist).
		Msg("Event received")

	return EventUpdate{Event: &event}
}
