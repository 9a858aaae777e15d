package lastfm

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
)

// TrackService provides the session-signed track operations.
type TrackService struct {
	client *Client
}

const (
	// MaxBatchSize is the maximum number of scrobbles allowed in a single batch.
	MaxBatchSize = 50
)

// UpdateNowPlaying tells the service which song is playing right now.
//
// It does not count as a scrobble and leaves no permanent record. Album,
// album artist and duration are sent only when set on the song.
//
// Errors from Session are returned unchanged; everything else wraps ErrOther.
func (t *TrackService) UpdateNowPlaying(ctx context.Context, song Song) error {
	session, err := t.client.Auth().Session(ctx)
	if err != nil {
		return err
	}

	params := Params{
		{Key: "method", Value: "track.updatenowplaying"},
		{Key: "track", Value: song.Track},
		{Key: "artist", Value: song.Artist},
	}
	if song.Album != "" {
		params.Set("album", song.Album)
	}
	if song.AlbumArtist != "" {
		params.Set("albumArtist", song.AlbumArtist)
	}
	if secs := int(song.Duration.Seconds()); secs > 0 {
		params.Set("duration", strconv.Itoa(secs))
	}
	params.Set("sk", session.ID)

	_, err = t.client.execute(ctx, http.MethodPost, params, true)
	return err
}

// Scrobble submits a single completed play.
//
// The request uses the indexed batch shape (track[0], artist[0], ...) even
// for one song.
//
// Example:
//
//	song := lastfm.Song{
//	    Artist:         "The Beatles",
//	    Track:          "Yesterday",
//	    StartTimestamp: time.Now().Add(-2 * time.Minute),
//	}
//	if err := client.Track().Scrobble(ctx, song); err != nil {
//	    log.Printf("Failed to scrobble: %v", err)
//	}
func (t *TrackService) Scrobble(ctx context.Context, song Song) error {
	_, err := t.ScrobbleBatch(ctx, []Song{song})
	return err
}

// ScrobbleBatch submits up to MaxBatchSize completed plays in one request.
//
// An empty batch is a no-op and does not touch the session. Batches larger
// than MaxBatchSize are rejected with ErrOther before any network call.
func (t *TrackService) ScrobbleBatch(ctx context.Context, songs []Song) (*ScrobbleResponse, error) {
	if len(songs) == 0 {
		return &ScrobbleResponse{}, nil
	}
	if len(songs) > MaxBatchSize {
		return nil, otherError(fmt.Errorf("cannot scrobble more than %d tracks at once (got %d)", MaxBatchSize, len(songs)))
	}

	session, err := t.client.Auth().Session(ctx)
	if err != nil {
		return nil, err
	}

	params := Params{{Key: "method", Value: "track.scrobble"}}
	for i, song := range songs {
		idx := "[" + strconv.Itoa(i) + "]"
		params.Set("track"+idx, song.Track)
		params.Set("artist"+idx, song.Artist)
		params.Set("timestamp"+idx, strconv.FormatInt(song.StartTimestamp.Unix(), 10))
		if song.Album != "" {
			params.Set("album"+idx, song.Album)
		}
		if song.AlbumArtist != "" {
			params.Set("albumArtist"+idx, song.AlbumArtist)
		}
		if secs := int(song.Duration.Seconds()); secs > 0 {
			params.Set("duration"+idx, strconv.Itoa(secs))
		}
	}
	params.Set("sk", session.ID)

	env, err := t.client.execute(ctx, http.MethodPost, params, true)
	if err != nil {
		return nil, err
	}

	resp, err := unmarshalScrobbles(env)
	if err != nil {
		// The service accepted the call; a payload we cannot read does not
		// change that.
		t.client.logDebugf("lastfm: failed to parse scrobble response: %v", err)
		return &ScrobbleResponse{Accepted: len(songs)}, nil
	}
	return resp, nil
}

// ToggleLove marks the song as loved (track.love) or removes the mark
// (track.unlove).
func (t *TrackService) ToggleLove(ctx context.Context, song Song, loved bool) error {
	session, err := t.client.Auth().Session(ctx)
	if err != nil {
		return err
	}

	method := "track.unlove"
	if loved {
		method = "track.love"
	}

	params := Params{
		{Key: "method", Value: method},
		{Key: "track", Value: song.Track},
		{Key: "artist", Value: song.Artist},
		{Key: "sk", Value: session.ID},
	}

	_, err = t.client.execute(ctx, http.MethodPost, params, true)
	return err
}

// scrobbleResponse represents the XML response from track.scrobble.
type scrobbleResponse struct {
	XMLName   xml.Name `xml:"lfm"`
	Scrobbles struct {
		Accepted  int `xml:"accepted,attr"`
		Ignored   int `xml:"ignored,attr"`
		Scrobbles []struct {
			Artist         string `xml:"artist"`
			Track          string `xml:"track"`
			Timestamp      int64  `xml:"timestamp"`
			IgnoredMessage struct {
				Code int    `xml:"code,attr"`
				Text string `xml:",chardata"`
			} `xml:"ignoredMessage"`
		} `xml:"scrobble"`
	} `xml:"scrobbles"`
}

func unmarshalScrobbles(env *envelope) (*ScrobbleResponse, error) {
	var raw scrobbleResponse
	if err := env.decode(&raw); err != nil {
		return nil, err
	}

	resp := &ScrobbleResponse{
		Accepted:  raw.Scrobbles.Accepted,
		Ignored:   raw.Scrobbles.Ignored,
		Scrobbles: make([]ScrobbleResult, 0, len(raw.Scrobbles.Scrobbles)),
	}
	for _, s := range raw.Scrobbles.Scrobbles {
		resp.Scrobbles = append(resp.Scrobbles, ScrobbleResult{
			Artist:        s.Artist,
			Track:         s.Track,
			Timestamp:     s.Timestamp,
			IgnoredCode:   s.IgnoredMessage.Code,
			IgnoredReason: s.IgnoredMessage.Text,
		})
	}
	return resp, nil
}
