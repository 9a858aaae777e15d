package lastfm

import (
	"time"
)

// Song describes a track as reported by the page it was detected on.
type Song struct {
	Artist         string        // Required: Artist name
	Track          string        // Required: Track name
	Album          string        // Optional: Album name
	AlbumArtist    string        // Optional: Album artist (if different from track artist)
	Duration       time.Duration // Optional: Track length, zero when unknown
	StartTimestamp time.Time     // When playback started
}

// ScrobbleResponse represents the response from track.scrobble.
type ScrobbleResponse struct {
	Accepted  int // Number of scrobbles accepted
	Ignored   int // Number of scrobbles ignored
	Scrobbles []ScrobbleResult
}

// ScrobbleResult is the per-entry outcome of a batch.
type ScrobbleResult struct {
	Artist        string
	Track         string
	Timestamp     int64
	IgnoredCode   int    // Non-zero when the service ignored this entry
	IgnoredReason string // Human-readable reason from the service
}
