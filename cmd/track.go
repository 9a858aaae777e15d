package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jfmyers9/webscrobbler/internal/scrobbler"
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/spf13/cobra"
)

// songFlags are the flags shared by the track commands.
type songFlags struct {
	artist      string
	track       string
	album       string
	albumArtist string
	duration    int   // Seconds
	timestamp   int64 // Unix seconds
}

func (f *songFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.artist, "artist", "", "Artist name (required)")
	cmd.Flags().StringVar(&f.track, "track", "", "Track name (required)")
	cmd.Flags().StringVar(&f.album, "album", "", "Album name")
	cmd.Flags().StringVar(&f.albumArtist, "album-artist", "", "Album artist, if different from the artist")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "Track length in seconds")
	cmd.Flags().Int64Var(&f.timestamp, "timestamp", 0, "Unix time playback started (default: now)")
	_ = cmd.MarkFlagRequired("artist")
	_ = cmd.MarkFlagRequired("track")
}

// song builds the song described by the flags.
func (f *songFlags) song(now time.Time) (lastfm.Song, error) {
	if f.artist == "" || f.track == "" {
		return lastfm.Song{}, errors.New("--artist and --track are required")
	}
	if f.duration < 0 {
		return lastfm.Song{}, fmt.Errorf("invalid duration %d", f.duration)
	}

	start := now
	if f.timestamp > 0 {
		start = time.Unix(f.timestamp, 0)
	}

	return lastfm.Song{
		Artist:         f.artist,
		Track:          f.track,
		Album:          f.album,
		AlbumArtist:    f.albumArtist,
		Duration:       time.Duration(f.duration) * time.Second,
		StartTimestamp: start,
	}, nil
}

// trackOp runs one track operation against the selected service.
type trackOp func(ctx context.Context, c *scrobbler.Client, song lastfm.Song) lastfm.Result

func newTrackCmd(use, short string, op trackOp) *cobra.Command {
	flags := &songFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			song, err := flags.song(time.Now())
			if err != nil {
				return err
			}

			a, err := openApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.client()
			if err != nil {
				return err
			}

			result := op(cmd.Context(), c, song)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.Label(), result)
			return resultError(result)
		},
	}
	flags.register(cmd)
	return cmd
}

// resultError turns a non-OK result into the command's error, giving a
// non-zero exit status.
func resultError(result lastfm.Result) error {
	switch result {
	case lastfm.ResultOK:
		return nil
	case lastfm.ResultAuthError:
		return errors.New("not authorized, run 'webscrobbler auth'")
	default:
		return errors.New("request failed")
	}
}

func init() {
	rootCmd.AddCommand(
		newTrackCmd("nowplaying", "Send a now-playing update", func(ctx context.Context, c *scrobbler.Client, song lastfm.Song) lastfm.Result {
			return c.NowPlaying(ctx, song)
		}),
		newTrackCmd("scrobble", "Scrobble a song, queueing it if the service is unavailable", func(ctx context.Context, c *scrobbler.Client, song lastfm.Song) lastfm.Result {
			return c.Scrobble(ctx, song)
		}),
		newTrackCmd("love", "Mark a song as loved", func(ctx context.Context, c *scrobbler.Client, song lastfm.Song) lastfm.Result {
			return c.Love(ctx, song, true)
		}),
		newTrackCmd("unlove", "Remove the loved mark from a song", func(ctx context.Context, c *scrobbler.Client, song lastfm.Song) lastfm.Result {
			return c.Love(ctx, song, false)
		}),
	)
}
