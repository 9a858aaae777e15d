// Package scrobbler sits between the commands and pkg/lastfm: it logs every
// call, keeps failed scrobbles in a durable queue and decides when a play
// counts as a scrobble.
package scrobbler

import (
	"context"
	"errors"
	"fmt"

	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/rs/zerolog"
)

// Client wraps a lastfm.Client for one service label.
type Client struct {
	client *lastfm.Client
	queue  *Queue
	logger zerolog.Logger
}

// New creates a Client. queue may be nil, in which case failed scrobbles
// are only logged.
func New(client *lastfm.Client, queue *Queue, logger zerolog.Logger) *Client {
	return &Client{
		client: client,
		queue:  queue,
		logger: logger.With().
			Str("component", "scrobbler").
			Str("service", client.Label()).
			Logger(),
	}
}

// Label returns the service label.
func (c *Client) Label() string {
	return c.client.Label()
}

// API returns the underlying lastfm client.
func (c *Client) API() *lastfm.Client {
	return c.client
}

// NowPlaying sends a now-playing update.
func (c *Client) NowPlaying(ctx context.Context, song lastfm.Song) lastfm.Result {
	err := c.client.Track().UpdateNowPlaying(ctx, song)
	result := lastfm.ResultOf(err)
	c.logResult(song, "nowplaying", result, err)
	return result
}

// Scrobble submits song. Anything but ResultOK puts the song in the queue
// for a later Flush.
func (c *Client) Scrobble(ctx context.Context, song lastfm.Song) lastfm.Result {
	err := c.client.Track().Scrobble(ctx, song)
	result := lastfm.ResultOf(err)
	c.logResult(song, "scrobble", result, err)

	if result != lastfm.ResultOK && c.queue != nil {
		id, qerr := c.queue.Add(ctx, c.Label(), song)
		if qerr != nil {
			c.logger.Error().Err(qerr).Msg("Failed to queue scrobble")
		} else {
			c.logger.Info().
				Int64("id", id).
				Str("track", song.Track).
				Str("artist", song.Artist).
				Msg("Queued scrobble for retry")
		}
	}

	return result
}

// Love marks or unmarks song as loved.
func (c *Client) Love(ctx context.Context, song lastfm.Song, loved bool) lastfm.Result {
	err := c.client.Track().ToggleLove(ctx, song, loved)
	result := lastfm.ResultOf(err)

	op := "unlove"
	if loved {
		op = "love"
	}
	c.logResult(song, op, result, err)
	return result
}

func (c *Client) logResult(song lastfm.Song, op string, result lastfm.Result, err error) {
	var event *zerolog.Event
	switch result {
	case lastfm.ResultOK:
		event = c.logger.Info()
	case lastfm.ResultAuthError:
		event = c.logger.Warn().Err(err)
	default:
		event = c.logger.Warn().Err(err)
		var apiErr *lastfm.Error
		if errors.As(err, &apiErr) {
			event = event.Int("code", apiErr.Code).Bool("temporary", apiErr.Temporary())
		}
	}

	event.
		Str("op", op).
		Str("track", song.Track).
		Str("artist", song.Artist).
		Str("result", result.String()).
		Msg("Service call finished")
}

// FlushStats summarizes one Flush.
type FlushStats struct {
	Pending  int           // Entries taken from the queue
	Accepted int           // Entries the service accepted
	Ignored  int           // Entries the service ignored
	Result   lastfm.Result // Outcome of the batch call
}

// Flush submits up to lastfm.MaxBatchSize queued scrobbles in one batch.
//
// On ResultOK the entries are marked as scrobbled. On ResultOtherError the
// error is recorded and the attempt counter bumped. On ResultAuthError the
// entries are left alone; they are retried once the user authorizes again.
func (c *Client) Flush(ctx context.Context) (FlushStats, error) {
	if c.queue == nil {
		return FlushStats{}, nil
	}

	pending, err := c.queue.GetPending(ctx, c.Label(), lastfm.MaxBatchSize)
	if err != nil {
		return FlushStats{}, fmt.Errorf("failed to get pending scrobbles: %w", err)
	}

	stats := FlushStats{Pending: len(pending)}
	if len(pending) == 0 {
		return stats, nil
	}

	c.logger.Info().Int("count", len(pending)).Msg("Processing pending scrobbles")

	songs := make([]lastfm.Song, len(pending))
	ids := make([]int64, len(pending))
	for i, qs := range pending {
		songs[i] = qs.Song
		ids[i] = qs.ID
	}

	resp, err := c.client.Track().ScrobbleBatch(ctx, songs)
	stats.Result = lastfm.ResultOf(err)

	switch stats.Result {
	case lastfm.ResultOK:
		stats.Accepted = resp.Accepted
		stats.Ignored = resp.Ignored
		c.logger.Info().
			Int("accepted", resp.Accepted).
			Int("ignored", resp.Ignored).
			Msg("Batch scrobbled successfully")
		if err := c.queue.MarkScrobbledBatch(ctx, ids); err != nil {
			return stats, fmt.Errorf("failed to mark batch as scrobbled: %w", err)
		}
	case lastfm.ResultAuthError:
		c.logger.Warn().Err(err).Msg("Not authorized, keeping queued scrobbles")
	default:
		c.logger.Warn().Err(err).Int("count", len(pending)).Msg("Batch scrobble failed")
		if markErr := c.queue.MarkErrorBatch(ctx, ids, err.Error()); markErr != nil {
			return stats, fmt.Errorf("failed to mark batch error: %w", markErr)
		}
	}

	return stats, nil
}

// Pending returns the number of queued scrobbles for this label.
func (c *Client) Pending(ctx context.Context) (int, error) {
	if c.queue == nil {
		return 0, nil
	}
	return c.queue.Count(ctx, c.Label(), false)
}
