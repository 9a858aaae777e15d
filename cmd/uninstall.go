package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jfmyers9/webscrobbler/internal/daemon"
	"github.com/spf13/cobra"
)

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the webscrobbler daemon from launchd",
	Long: `Uninstall the webscrobbler daemon from launchd and stop it from running automatically.

This command will:
  - Stop the running daemon (if any)
  - Unload the daemon from launchd
  - Remove ~/Library/LaunchAgents/` + daemon.AgentLabel + `.plist

The data directory is left alone: the events FIFO (events.fifo), the
queue (queue.db) and the credentials (documents.db) stay where install
created them. The exact paths are printed at the end.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plistPath, err := daemon.GetPlistPath()
		if err != nil {
			return fmt.Errorf("failed to get plist path: %w", err)
		}

		out := cmd.OutOrStdout()

		if _, err := os.Stat(plistPath); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(out, "Daemon is not installed (plist not found)")
			return nil
		}

		fmt.Fprintln(out, "Stopping daemon...")
		if err := unloadDaemon(); err != nil {
			fmt.Fprintf(out, "Warning: failed to unload daemon: %v\n", err)
			fmt.Fprintln(out, "Continuing with plist removal...")
		} else {
			fmt.Fprintln(out, "✓ Daemon stopped")
		}

		if err := os.Remove(plistPath); err != nil {
			return fmt.Errorf("failed to remove plist file: %w", err)
		}

		fmt.Fprintf(out, "✓ Removed plist %s\n", plistPath)
		fmt.Fprintln(out, "\nThe webscrobbler daemon has been uninstalled.")

		if cfg, err := loadConfig(); err == nil {
			printKept(out, cfg.DataDir)
		}
		fmt.Fprintln(out, "\nTo reinstall, run:")
		fmt.Fprintln(out, "  webscrobbler install")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

// printKept lists the files install created that uninstall leaves behind.
func printKept(w io.Writer, dataDir string) {
	fmt.Fprintln(w, "\nKept in place:")
	fmt.Fprintf(w, "  Events FIFO: %s\n", daemon.GetDefaultEventsPath(dataDir))
	fmt.Fprintf(w, "  Queue:       %s\n", filepath.Join(dataDir, "queue.db"))
	fmt.Fprintf(w, "  Credentials: %s\n", filepath.Join(dataDir, "documents.db"))
}
