package scrobbler

import (
	"time"

	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
)

// Scrobbling rules shared by Last.fm and Libre.fm.
const (
	// MinimumTrackDuration is the shortest track that may be scrobbled.
	MinimumTrackDuration = 30 * time.Second

	// ScrobblePercentage is the share of a track that must be played.
	ScrobblePercentage = 0.5

	// MaxScrobbleThreshold caps the required play time for long tracks.
	MaxScrobbleThreshold = 4 * time.Minute
)

// ShouldScrobble reports whether a track of trackDuration that has played
// for playedDuration may be scrobbled: the track must be at least 30s long
// and must have played for half its length or 4 minutes, whichever is
// shorter.
func ShouldScrobble(trackDuration, playedDuration time.Duration) bool {
	threshold := ScrobbleThreshold(trackDuration)
	if threshold < 0 {
		return false
	}
	return playedDuration >= threshold
}

// ScrobbleThreshold returns the play time after which a track of the given
// length becomes scrobblable, or -1 if it never does.
func ScrobbleThreshold(trackDuration time.Duration) time.Duration {
	if trackDuration < MinimumTrackDuration {
		return -1
	}

	threshold := time.Duration(float64(trackDuration) * ScrobblePercentage)
	if threshold > MaxScrobbleThreshold {
		threshold = MaxScrobbleThreshold
	}
	return threshold
}

// IsEligible reports whether a track is long enough to ever be scrobbled.
func IsEligible(trackDuration time.Duration) bool {
	return trackDuration >= MinimumTrackDuration
}

// Eligible applies the rules to song after it played for played.
//
// Pages often cannot tell how long a track is or how long it ran; a zero
// value for either skips the check and lets the song through.
func Eligible(song lastfm.Song, played time.Duration) bool {
	if song.Duration <= 0 || played <= 0 {
		return true
	}
	return ShouldScrobble(song.Duration, played)
}
