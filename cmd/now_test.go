package cmd

import (
	"testing"
	"time"

	"github.com/jfmyers9/webscrobbler/internal/daemon"
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/mattn/go-runewidth"
)

func TestPadToWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{
			name:     "no padding when width is 0",
			input:    "Hello",
			width:    0,
			expected: "Hello",
		},
		{
			name:     "no padding when width is negative",
			input:    "Hello",
			width:    -1,
			expected: "Hello",
		},
		{
			name:     "pad short text with spaces",
			input:    "Hi",
			width:    10,
			expected: "Hi        ",
		},
		{
			name:     "exact width unchanged",
			input:    "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "truncate long text with ellipsis",
			input:    "This is a very long string that needs truncation",
			width:    20,
			expected: "This is a very lo...",
		},
		{
			name:     "handle unicode characters",
			input:    "日本語",
			width:    10,
			expected: "日本語    ",
		},
		{
			name:     "truncate wide text",
			input:    "日本語とても長いテキスト",
			width:    10,
			expected: "日本語... ", // wide runes leave one column to pad
		},
		{
			name:     "accented text is one column per rune",
			input:    "Sigur Rós",
			width:    12,
			expected: "Sigur Rós   ",
		},
		{
			name:     "empty string padding",
			input:    "",
			width:    5,
			expected: "     ",
		},
		{
			name:     "minimum width for truncation",
			input:    "Hello",
			width:    3,
			expected: "...",
		},
		{
			name:     "width below ellipsis",
			input:    "Hello",
			width:    2,
			expected: "..",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := padToWidth(tt.input, tt.width)
			if result != tt.expected {
				t.Errorf("padToWidth(%q, %d) = %q, expected %q",
					tt.input, tt.width, result, tt.expected)
			}

			if tt.width > 0 {
				if w := runewidth.StringWidth(result); w != tt.width {
					t.Errorf("padToWidth(%q, %d) produced width %d, expected %d",
						tt.input, tt.width, w, tt.width)
				}
			}
		})
	}
}

func TestMarqueeText(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		width     int
		speed     int
		separator string
		now       int64
		expected  string
	}{
		{
			name:     "short text is padded",
			text:     "Hi",
			width:    5,
			speed:    1,
			now:      42,
			expected: "Hi   ",
		},
		{
			name:      "starts at the beginning",
			text:      "abcdefgh",
			width:     4,
			speed:     1,
			separator: " | ",
			now:       0,
			expected:  "abcd",
		},
		{
			name:      "advances with time",
			text:      "abcdefgh",
			width:     4,
			speed:     1,
			separator: " | ",
			now:       3,
			expected:  "defg",
		},
		{
			name:      "speed multiplies the offset",
			text:      "abcdefgh",
			width:     4,
			speed:     2,
			separator: " | ",
			now:       3,
			expected:  "gh |",
		},
		{
			name:      "wraps into the separator and the repeat",
			text:      "abcdefgh",
			width:     6,
			speed:     1,
			separator: " | ",
			now:       7,
			expected:  "h | ab",
		},
		{
			name:      "position loops around",
			text:      "abcdefgh",
			width:     4,
			speed:     1,
			separator: " | ",
			now:       19, // 19 % 19 runes
			expected:  "abcd",
		},
		{
			name:      "wide rune that does not fit is padded",
			text:      "a日本語b",
			width:     4,
			speed:     1,
			separator: "",
			now:       0,
			expected:  "a日 ",
		},
		{
			name:     "zero width is unchanged",
			text:     "abcdefgh",
			width:    0,
			speed:    1,
			now:      5,
			expected: "abcdefgh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := marqueeText(tt.text, tt.width, tt.speed, tt.separator, tt.now)
			if result != tt.expected {
				t.Errorf("marqueeText(%q, %d, %d, %q, %d) = %q, expected %q",
					tt.text, tt.width, tt.speed, tt.separator, tt.now, result, tt.expected)
			}
			if tt.width > 0 {
				if w := runewidth.StringWidth(result); w != tt.width {
					t.Errorf("expected width %d, got %d", tt.width, w)
				}
			}
		})
	}
}

func TestCurrentPlay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		state   *daemon.PlayState
		playing bool
		elapsed time.Duration
	}{
		{
			name:    "no state",
			state:   nil,
			playing: false,
		},
		{
			name: "within duration",
			state: &daemon.PlayState{
				Song: lastfm.Song{
					Artist:         "A",
					Track:          "T",
					Duration:       4 * time.Minute,
					StartTimestamp: now.Add(-90 * time.Second),
				},
				UpdatedAt: now.Add(-90 * time.Second),
			},
			playing: true,
			elapsed: 90 * time.Second,
		},
		{
			name: "past duration",
			state: &daemon.PlayState{
				Song: lastfm.Song{
					Artist:         "A",
					Track:          "T",
					Duration:       time.Minute,
					StartTimestamp: now.Add(-2 * time.Minute),
				},
				UpdatedAt: now.Add(-time.Second),
			},
			playing: false,
		},
		{
			name: "unknown duration recently updated",
			state: &daemon.PlayState{
				Song:      lastfm.Song{Artist: "A", Track: "T"},
				UpdatedAt: now.Add(-time.Minute),
			},
			playing: true,
		},
		{
			name: "unknown duration gone idle",
			state: &daemon.PlayState{
				Song:      lastfm.Song{Artist: "A", Track: "T"},
				UpdatedAt: now.Add(-time.Hour),
			},
			playing: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			np, ok := currentPlay(tt.state, now)
			if ok != tt.playing {
				t.Fatalf("expected playing=%v, got %v", tt.playing, ok)
			}
			if ok && np.Elapsed != tt.elapsed {
				t.Errorf("expected elapsed %v, got %v", tt.elapsed, np.Elapsed)
			}
		})
	}
}

func TestFormatPlay(t *testing.T) {
	np := nowPlaying{Artist: "Sigur Rós", Track: "Hoppípolla", Album: "Takk...", Loved: true}

	tests := []struct {
		name     string
		format   string
		expected string
		wantErr  bool
	}{
		{
			name:     "default format",
			format:   "{{.Artist}} - {{.Track}}",
			expected: "Sigur Rós - Hoppípolla",
		},
		{
			name:     "conditional",
			format:   "{{if .Loved}}♥ {{end}}{{.Track}} ({{.Album}})",
			expected: "♥ Hoppípolla (Takk...)",
		},
		{
			name:    "invalid template",
			format:  "{{.Artist",
			wantErr: true,
		},
		{
			name:    "unknown field",
			format:  "{{.Name}}",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatPlay(np, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
