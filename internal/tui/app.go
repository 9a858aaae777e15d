// Package tui is a terminal dashboard over the daemon state and the
// configured services.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jfmyers9/webscrobbler/internal/daemon"
	"github.com/jfmyers9/webscrobbler/internal/scrobbler"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"
)

const maxRecentTracks = 5

// Config holds TUI configuration options
type Config struct {
	RefreshRate time.Duration // How often to poll the source and redraw
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: time.Second,
	}
}

// ServiceStatus is the dashboard view of one service.
type ServiceStatus struct {
	Label   string
	User    string // Session name, empty when signed out
	Pending int    // Queued scrobbles
	Err     error
}

// Snapshot is everything the dashboard shows at one point in time.
type Snapshot struct {
	Play     *daemon.PlayState // nil when the daemon has no state
	Services []ServiceStatus
	Err      error // Failure reading the play state
}

// Source produces snapshots. It is called from a single goroutine.
type Source func(ctx context.Context) Snapshot

// RecentTrack stores info about a recently played track
type RecentTrack struct {
	Track     string
	Artist    string
	Scrobbled bool
	Loved     bool
}

// App is the dashboard application
type App struct {
	app        *tview.Application
	nowPlaying *tview.TextView
	progress   *tview.TextView
	services   *tview.TextView
	recent     *tview.TextView
	status     *tview.TextView

	config Config
	source Source
	now    func() time.Time

	// Guards everything below. Written by the poll loop, read when drawing.
	mu       sync.Mutex
	snapshot Snapshot

	// Ring buffer of plays seen before the current one
	recentBuf   [maxRecentTracks]RecentTrack
	recentCount int
	lastPlay    *daemon.PlayState

	// Last-rendered content for change detection
	lastNowPlaying string
	lastProgress   string
	lastServices   string
	lastRecent     string

	// Updated only when GetInnerRect returns a positive value.
	lastBarWidth int

	refreshNow chan struct{}
	cancelFunc context.CancelFunc
}

// New creates a dashboard that polls source.
func New(cfg Config, source Source) *App {
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = DefaultConfig().RefreshRate
	}
	a := &App{
		app:        tview.NewApplication(),
		config:     cfg,
		source:     source,
		now:        time.Now,
		refreshNow: make(chan struct{}, 1),
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	a.services = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.services.SetBorder(true).
		SetTitle(" Services ").
		SetTitleAlign(tview.AlignLeft)

	a.recent = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.recent.SetBorder(true).
		SetTitle(" Recent ").
		SetTitleAlign(tview.AlignLeft)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]q:quit  r:refresh[-]")

	// Top: now playing, then progress, then services | recent, then footer.
	bottomRow := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.services, 0, 1, false).
		AddItem(a.recent, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.nowPlaying, 0, 3, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(bottomRow, 8, 1, false).
		AddItem(a.status, 1, 1, false)

	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true)
}

// handleKeyEvent processes keyboard input
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	switch event.Rune() {
	case 'q', 'Q':
		a.Stop()
		return nil
	case 'r', 'R':
		select {
		case a.refreshNow <- struct{}{}:
		default:
		}
		return nil
	}
	return event
}

// Run starts the dashboard and blocks until it is stopped or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancelFunc = context.WithCancel(ctx)
	defer a.cancelFunc()

	go a.poll(ctx)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// poll is the only caller of the source and the only source of redraws.
func (a *App) poll(ctx context.Context) {
	ticker := time.NewTicker(a.config.RefreshRate)
	defer ticker.Stop()

	a.update(a.source(ctx))

	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
		case <-a.refreshNow:
		}
		a.update(a.source(ctx))
	}
}

func (a *App) update(snap Snapshot) {
	a.mu.Lock()
	a.apply(snap)
	a.mu.Unlock()

	a.app.QueueUpdateDraw(a.draw)
}

// apply stores snap and moves a finished play into the recent list.
// Must be called with a.mu held.
func (a *App) apply(snap Snapshot) {
	if snap.Play != nil {
		if a.lastPlay != nil && !samePlay(*a.lastPlay, *snap.Play) {
			a.addRecent(*a.lastPlay)
		}
		p := *snap.Play
		a.lastPlay = &p
	}
	a.snapshot = snap
}

func samePlay(a, b daemon.PlayState) bool {
	return strings.EqualFold(a.Song.Artist, b.Song.Artist) &&
		strings.EqualFold(a.Song.Track, b.Song.Track) &&
		a.Song.StartTimestamp.Equal(b.Song.StartTimestamp)
}

// addRecent writes a play into the ring buffer. Must be called with a.mu
// held.
func (a *App) addRecent(ps daemon.PlayState) {
	idx := a.recentCount % maxRecentTracks
	a.recentBuf[idx] = RecentTrack{
		Track:     ps.Song.Track,
		Artist:    ps.Song.Artist,
		Scrobbled: ps.Scrobbled,
		Loved:     ps.Loved,
	}
	a.recentCount++
}

// recentTracks returns recent tracks in most-recent-first order.
// Must be called with a.mu held.
func (a *App) recentTracks() []RecentTrack {
	n := a.recentCount
	if n > maxRecentTracks {
		n = maxRecentTracks
	}
	result := make([]RecentTrack, n)
	for i := 0; i < n; i++ {
		idx := (a.recentCount - 1 - i) % maxRecentTracks
		result[i] = a.recentBuf[idx]
	}
	return result
}

// draw runs on the tview event loop.
func (a *App) draw() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	setIfChanged(a.nowPlaying, &a.lastNowPlaying, renderNowPlaying(a.snapshot, now))

	_, _, width, _ := a.progress.GetInnerRect()
	if barWidth := width - 14; barWidth > 0 {
		a.lastBarWidth = barWidth
	}
	if a.lastBarWidth < 10 {
		a.lastBarWidth = 10
	}
	setIfChanged(a.progress, &a.lastProgress, renderProgress(a.snapshot.Play, now, a.lastBarWidth))

	setIfChanged(a.services, &a.lastServices, renderServices(a.snapshot.Services))
	setIfChanged(a.recent, &a.lastRecent, renderRecent(a.recentTracks()))
}

func setIfChanged(view *tview.TextView, last *string, text string) {
	if text != *last {
		*last = text
		view.SetText(text)
	}
}

// Stop stops the dashboard
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// playing reports whether ps is still going at now.
func playing(ps *daemon.PlayState, now time.Time) bool {
	if ps == nil || ps.Song.Track == "" {
		return false
	}
	if ps.Song.Duration > 0 && !ps.Song.StartTimestamp.IsZero() {
		return !now.After(ps.Song.StartTimestamp.Add(ps.Song.Duration))
	}
	return now.Sub(ps.UpdatedAt) <= 10*time.Minute
}

func renderNowPlaying(snap Snapshot, now time.Time) string {
	if snap.Err != nil {
		return fmt.Sprintf("\n\n[red]%s[-]", tview.Escape(snap.Err.Error()))
	}

	ps := snap.Play
	if !playing(ps, now) {
		return "\n\n[gray]No track playing[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(ps.Song.Track)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(ps.Song.Artist)))
	sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(ps.Song.Album)))

	sb.WriteString("\n\n")
	if ps.Scrobbled {
		sb.WriteString("[green]✓ Scrobbled[-]")
	} else {
		sb.WriteString(scrobbleProgress(ps, now))
	}
	if ps.Loved {
		sb.WriteString("  [red]♥[-]")
	}
	return sb.String()
}

// scrobbleProgress shows how far the play is towards the scrobble
// threshold.
func scrobbleProgress(ps *daemon.PlayState, now time.Time) string {
	if ps.Song.Duration <= 0 || ps.Song.StartTimestamp.IsZero() {
		return "[gray]Waiting...[-]"
	}

	if !scrobbler.IsEligible(ps.Song.Duration) {
		return "[gray]Too short to scrobble[-]"
	}
	threshold := scrobbler.ScrobbleThreshold(ps.Song.Duration)

	played := now.Sub(ps.Song.StartTimestamp)
	progress := float64(played) / float64(threshold) * 100
	if progress > 100 {
		progress = 100
	}
	if progress < 0 {
		progress = 0
	}

	const barWidth = 10
	filled := int(progress / 100 * barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return fmt.Sprintf("[yellow]%s %.0f%%[-]", bar, progress)
}

func renderProgress(ps *daemon.PlayState, now time.Time, width int) string {
	if !playing(ps, now) || ps.Song.StartTimestamp.IsZero() {
		return ""
	}

	position := now.Sub(ps.Song.StartTimestamp)
	return fmt.Sprintf("%s %s %s",
		formatDuration(position),
		buildProgressBar(position, ps.Song.Duration, width),
		formatDuration(ps.Song.Duration))
}

func renderServices(services []ServiceStatus) string {
	if len(services) == 0 {
		return "[gray]No services configured[-]"
	}

	var sb strings.Builder
	for i, s := range services {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch {
		case s.Err != nil:
			sb.WriteString(fmt.Sprintf("[red]✗[-] %s [red]%s[-]", tview.Escape(s.Label), tview.Escape(s.Err.Error())))
		case s.User != "":
			sb.WriteString(fmt.Sprintf("[green]✓[-] %s [gray](%s)[-]", tview.Escape(s.Label), tview.Escape(s.User)))
		default:
			sb.WriteString(fmt.Sprintf("[yellow]![-] %s [gray](not signed in)[-]", tview.Escape(s.Label)))
		}
		if s.Pending > 0 {
			sb.WriteString(fmt.Sprintf(" [yellow]%d queued[-]", s.Pending))
		}
	}
	return sb.String()
}

func renderRecent(tracks []RecentTrack) string {
	if len(tracks) == 0 {
		return "[gray]No recent tracks[-]"
	}

	var sb strings.Builder
	for i, track := range tracks {
		if i > 0 {
			sb.WriteString("\n")
		}

		if track.Scrobbled {
			sb.WriteString("[green]✓[-] ")
		} else {
			sb.WriteString("[red]✗[-] ")
		}

		name := runewidth.Truncate(track.Track, 20, "...")
		sb.WriteString(fmt.Sprintf("[white]%s[-]", tview.Escape(name)))
		if track.Loved {
			sb.WriteString(" [red]♥[-]")
		}
	}
	return sb.String()
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration time.Duration, width int) string {
	if duration <= 0 || width <= 0 {
		return strings.Repeat("-", max(width, 0))
	}

	progress := float64(position) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	filled := int(progress * float64(width))
	empty := width - filled

	return "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"
}

// formatDuration formats a duration as MM:SS or HH:MM:SS for longer durations
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
