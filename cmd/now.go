package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/jfmyers9/webscrobbler/internal/daemon"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

// idleTimeout is how long a play of unknown length counts as current after
// the daemon last touched it.
const idleTimeout = 10 * time.Minute

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the song the daemon is tracking",
	Long: `Display the song the daemon is currently tracking.

The output format can be customized in ~/.config/webscrobbler/config.yaml
using a Go template. Available fields: .Artist, .Track, .Album,
.AlbumArtist, .Duration, .Elapsed, .Loved, .Scrobbled

Useful for tmux status lines or other status bars.

Exit codes:
  0 - A song is playing
  1 - Nothing is playing or the daemon has no state`,
	Args: cobra.NoArgs,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
	nowCmd.Flags().String("data-dir", "", "Data directory holding the daemon state (default: from config)")
}

// nowPlaying is the template data of the now command.
type nowPlaying struct {
	Artist      string
	Track       string
	Album       string
	AlbumArtist string
	Duration    time.Duration
	Elapsed     time.Duration
	Loved       bool
	Scrobbled   bool
}

func runNow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if formatFlag, _ := cmd.Flags().GetString("format"); formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	ps, err := daemon.LoadState(filepath.Join(cfg.DataDir, "state.json"))
	if err != nil {
		return fmt.Errorf("failed to read daemon state: %w", err)
	}

	np, ok := currentPlay(ps, time.Now())
	if !ok {
		os.Exit(1)
		return nil
	}

	output, err := formatPlay(np, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	marquee, _ := cmd.Flags().GetBool("marquee")
	if !cmd.Flags().Changed("marquee") {
		marquee = cfg.MarqueeEnabled
	}

	if width > 0 {
		if marquee {
			output = marqueeText(output, width, cfg.MarqueeSpeed, cfg.MarqueeSeparator, time.Now().Unix())
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// currentPlay reports the play in ps if it is still going at now. A play
// of known length ends at its start plus its duration; one of unknown
// length ends idleTimeout after the last event.
func currentPlay(ps *daemon.PlayState, now time.Time) (nowPlaying, bool) {
	if ps == nil || ps.Song.Track == "" {
		return nowPlaying{}, false
	}

	song := ps.Song
	if song.Duration > 0 && !song.StartTimestamp.IsZero() {
		if now.After(song.StartTimestamp.Add(song.Duration)) {
			return nowPlaying{}, false
		}
	} else if now.Sub(ps.UpdatedAt) > idleTimeout {
		return nowPlaying{}, false
	}

	np := nowPlaying{
		Artist:      song.Artist,
		Track:       song.Track,
		Album:       song.Album,
		AlbumArtist: song.AlbumArtist,
		Duration:    song.Duration,
		Loved:       ps.Loved,
		Scrobbled:   ps.Scrobbled,
	}
	if !song.StartTimestamp.IsZero() {
		np.Elapsed = now.Sub(song.StartTimestamp).Truncate(time.Second)
		if np.Elapsed < 0 {
			np.Elapsed = 0
		}
	}
	return np, true
}

// formatPlay applies the template to the play
func formatPlay(np nowPlaying, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, np); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to a fixed display width.
// Width is measured in display columns, accounting for Unicode characters.
// If width <= 0, returns text unchanged.
// If text is longer than width, truncates with "..." suffix.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)

	switch {
	case currentWidth > width:
		const ellipsis = "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)
		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}

		// Wide runes can leave the truncation one column short.
		result := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
		return fillRight(result, width)
	case currentWidth < width:
		return fillRight(text, width)
	}

	return text
}

// fillRight pads text with spaces up to width display columns.
func fillRight(text string, width int) string {
	if w := runewidth.StringWidth(text); w < width {
		return text + strings.Repeat(" ", width-w)
	}
	return text
}

// marqueeText returns a window of width display columns over
// "text{separator}text", scrolled speed runes per second from the unix time
// now. Text that fits is padded instead. The output only depends on now,
// so repeated calls from a status bar step through the text.
func marqueeText(text string, width int, speed int, separator string, now int64) string {
	if width <= 0 {
		return text
	}

	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}

	if speed <= 0 {
		speed = 1
	}

	extended := []rune(text + separator + text)
	total := len(extended)
	position := int(now * int64(speed) % int64(total))
	if position < 0 {
		position += total
	}

	var result []rune
	resultWidth := 0
	for i := 0; i < total; i++ {
		r := extended[(position+i)%total]
		rw := runewidth.RuneWidth(r)
		if resultWidth+rw > width {
			break
		}
		result = append(result, r)
		resultWidth += rw
	}

	return fillRight(string(result), width)
}
