package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
)

func newTestState(t *testing.T) *State {
	t.Helper()

	s, err := NewState(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return s
}

func testPlay(track string, start int64) lastfm.Song {
	return lastfm.Song{
		Artist:         "Artist",
		Track:          track,
		Album:          "Album",
		Duration:       3 * time.Minute,
		StartTimestamp: time.Unix(start, 0),
	}
}

func TestState_Begin(t *testing.T) {
	s := newTestState(t)

	if _, ok := s.Current(); ok {
		t.Fatal("expected no current play")
	}

	isNew, err := s.Begin(testPlay("A", 1000))
	if err != nil || !isNew {
		t.Fatalf("expected new play, got %v, %v", isNew, err)
	}

	// Same play, different case.
	again := testPlay("A", 1000)
	again.Artist = "ARTIST"
	if isNew, _ := s.Begin(again); isNew {
		t.Error("expected same play to be recognized")
	}

	// Same track, new start: a replay.
	if isNew, _ := s.Begin(testPlay("A", 2000)); !isNew {
		t.Error("expected replay to be a new play")
	}

	if isNew, _ := s.Begin(testPlay("B", 2000)); !isNew {
		t.Error("expected different track to be a new play")
	}
}

func TestState_UpdateOnlyCurrentPlay(t *testing.T) {
	s := newTestState(t)

	if _, err := s.Begin(testPlay("A", 1000)); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	ran, err := s.Update(testPlay("B", 1000), func(p *PlayState) { p.Scrobbled = true })
	if err != nil || ran {
		t.Errorf("expected update of another play to be skipped, got %v, %v", ran, err)
	}

	ran, err = s.Update(testPlay("A", 1000), func(p *PlayState) { p.Scrobbled = true })
	if err != nil || !ran {
		t.Fatalf("expected update to run, got %v, %v", ran, err)
	}

	current, _ := s.Current()
	if !current.Scrobbled {
		t.Error("expected play to be marked scrobbled")
	}

	// Begin on the same play keeps flags.
	if _, err := s.Begin(testPlay("A", 1000)); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if current, _ := s.Current(); !current.Scrobbled {
		t.Error("expected flags to survive a repeated Begin")
	}
}

func TestState_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := NewState(path)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if _, err := s.Begin(testPlay("A", 1000)); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := s.Update(testPlay("A", 1000), func(p *PlayState) {
		p.NowPlayingSent = true
		p.Loved = true
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	restored, err := NewState(path)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	current, ok := restored.Current()
	if !ok {
		t.Fatal("expected play to be restored")
	}
	if current.Song.Track != "A" || current.Song.StartTimestamp.Unix() != 1000 || current.Song.Duration != 3*time.Minute {
		t.Errorf("unexpected restored song %+v", current.Song)
	}
	if !current.NowPlayingSent || !current.Loved || current.Scrobbled {
		t.Errorf("unexpected restored flags %+v", current)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected temp file to be renamed away")
	}

	ps, err := LoadState(path)
	if err != nil || ps == nil || ps.Song.Track != "A" {
		t.Errorf("expected LoadState to read the persisted play, got %+v, %v", ps, err)
	}
}

func TestLoadState_Errors(t *testing.T) {
	dir := t.TempDir()

	ps, err := LoadState(filepath.Join(dir, "missing.json"))
	if err != nil || ps != nil {
		t.Errorf("expected nil, nil for a missing file, got %+v, %v", ps, err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadState(corrupt); err == nil {
		t.Error("expected error for a corrupt file")
	}

	s, err := NewState(corrupt)
	if err == nil {
		t.Error("expected NewState to report the corrupt file")
	}
	if s == nil {
		t.Fatal("expected a usable state anyway")
	}
	if _, ok := s.Current(); ok {
		t.Error("expected empty state")
	}
}
