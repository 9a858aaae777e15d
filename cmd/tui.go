package cmd

import (
	"context"
	"path/filepath"

	"github.com/jfmyers9/webscrobbler/internal/daemon"
	"github.com/jfmyers9/webscrobbler/internal/tui"
	"github.com/spf13/cobra"
)

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Display a terminal dashboard",
	Long: `Display a terminal dashboard with the song the daemon is tracking, its
progress towards the scrobble threshold, the sign-in state and queue of
every service, and the last few plays.

The dashboard only reads; run 'webscrobbler daemon' to scrobble.

Press 'r' to refresh and 'q' to quit.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	// Logs would draw over the dashboard.
	a, err := openApp(appOptions{logFile: filepath.Join(dataDirOrDefault(), "tui.log")})
	if err != nil {
		return err
	}
	defer a.Close()

	statePath := filepath.Join(a.cfg.DataDir, "state.json")

	source := func(ctx context.Context) tui.Snapshot {
		var snap tui.Snapshot
		snap.Play, snap.Err = daemon.LoadState(statePath)

		for _, c := range a.clients() {
			st, err := collectStatus(ctx, c)
			snap.Services = append(snap.Services, tui.ServiceStatus{
				Label:   c.Label(),
				User:    st.User,
				Pending: st.Pending,
				Err:     err,
			})
		}
		return snap
	}

	return tui.New(tui.DefaultConfig(), source).Run(cmd.Context())
}

// dataDirOrDefault returns the configured data directory without opening
// anything in it.
func dataDirOrDefault() string {
	cfg, err := loadConfig()
	if err != nil {
		return "."
	}
	return cfg.DataDir
}
