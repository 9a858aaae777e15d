package scrobbler

import (
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/rs/zerolog"
)

type zerologAdapter struct {
	logger zerolog.Logger
}

// NewLogger adapts a zerolog logger to lastfm.Logger. Messages are logged
// at debug level.
func NewLogger(logger zerolog.Logger) lastfm.Logger {
	return zerologAdapter{logger: logger.With().Str("component", "lastfm").Logger()}
}

func (a zerologAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug().Msgf(format, args...)
}
