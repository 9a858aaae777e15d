package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
)

// PlayState is the play the daemon is tracking.
type PlayState struct {
	Song           lastfm.Song
	NowPlayingSent bool      // A now-playing update went out for this play
	Scrobbled      bool      // The play was scrobbled or queued
	Loved          bool      // Last love/unlove sent for this play
	UpdatedAt      time.Time // Last change
}

// State holds the current play with thread-safe access and persistence.
type State struct {
	mu       sync.RWMutex
	current  *PlayState
	filePath string
	now      func() time.Time
}

// persistedState is the on-disk form, shared with the now and tui
// commands.
type persistedState struct {
	Artist         string    `json:"artist"`
	Track          string    `json:"track"`
	Album          string    `json:"album,omitempty"`
	AlbumArtist    string    `json:"album_artist,omitempty"`
	Duration       int64     `json:"duration,omitempty"`
	StartTimestamp int64     `json:"start_timestamp"`
	NowPlayingSent bool      `json:"now_playing_sent"`
	Scrobbled      bool      `json:"scrobbled"`
	Loved          bool      `json:"loved"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p persistedState) playState() PlayState {
	ps := PlayState{
		Song: lastfm.Song{
			Artist:      p.Artist,
			Track:       p.Track,
			Album:       p.Album,
			AlbumArtist: p.AlbumArtist,
			Duration:    time.Duration(p.Duration) * time.Second,
		},
		NowPlayingSent: p.NowPlayingSent,
		Scrobbled:      p.Scrobbled,
		Loved:          p.Loved,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.StartTimestamp > 0 {
		ps.Song.StartTimestamp = time.Unix(p.StartTimestamp, 0)
	}
	return ps
}

func newPersistedState(ps PlayState) persistedState {
	return persistedState{
		Artist:         ps.Song.Artist,
		Track:          ps.Song.Track,
		Album:          ps.Song.Album,
		AlbumArtist:    ps.Song.AlbumArtist,
		Duration:       int64(ps.Song.Duration.Seconds()),
		StartTimestamp: ps.Song.StartTimestamp.Unix(),
		NowPlayingSent: ps.NowPlayingSent,
		Scrobbled:      ps.Scrobbled,
		Loved:          ps.Loved,
		UpdatedAt:      ps.UpdatedAt,
	}
}

// NewState creates a State. If filePath is set, the previous play is
// restored from it; a restore error is returned along with a usable empty
// State.
func NewState(filePath string) (*State, error) {
	s := &State{
		filePath: filePath,
		now:      time.Now,
	}

	if filePath != "" {
		ps, err := LoadState(filePath)
		if err != nil {
			return s, err
		}
		s.current = ps
	}

	return s, nil
}

// Current returns a copy of the current play.
func (s *State) Current() (PlayState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return PlayState{}, false
	}
	return *s.current, true
}

// Begin makes song the current play. It reports false, and changes
// nothing, when song is already the current play.
func (s *State) Begin(song lastfm.Song) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && samePlay(s.current.Song, song) {
		return false, nil
	}

	s.current = &PlayState{Song: song, UpdatedAt: s.now()}
	return true, s.persist()
}

// Update applies fn to the current play if song is that play. It reports
// whether fn ran.
func (s *State) Update(song lastfm.Song, fn func(*PlayState)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !samePlay(s.current.Song, song) {
		return false, nil
	}

	fn(s.current)
	s.current.UpdatedAt = s.now()
	return true, s.persist()
}

// persist saves the current play to disk. Must be called with lock held.
func (s *State) persist() error {
	if s.filePath == "" || s.current == nil {
		return nil
	}

	data, err := json.MarshalIndent(newPersistedState(*s.current), "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.filePath)
}

// LoadState reads a state file written by the daemon. A missing file
// returns nil, nil.
func LoadState(filePath string) (*PlayState, error) {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var p persistedState
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}

	ps := p.playState()
	return &ps, nil
}

// sameTrack compares the metadata of two songs.
func sameTrack(a, b lastfm.Song) bool {
	return strings.EqualFold(a.Artist, b.Artist) &&
		strings.EqualFold(a.Track, b.Track) &&
		strings.EqualFold(a.Album, b.Album)
}

// samePlay also requires the same start time, so a replay of the same
// track is a new play.
func samePlay(a, b lastfm.Song) bool {
	return sameTrack(a, b) && a.StartTimestamp.Unix() == b.StartTimestamp.Unix()
}
