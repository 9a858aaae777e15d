package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jfmyers9/webscrobbler/internal/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the webscrobbler daemon as a launchd agent",
	Long: `Install the webscrobbler daemon as a launchd agent that runs automatically on login.

This command will:
  - Create the events pipe the browser connector writes to
  - Generate a launchd plist file for the webscrobbler daemon
  - Install it to ~/Library/LaunchAgents/
  - Load the agent with launchctl

launchd connects the events pipe to the daemon's standard input and
restarts the daemon whenever the connector closes the pipe.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	binaryPath, err = filepath.EvalSymlinks(binaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	logPath := daemon.GetDefaultLogPath(cfg.DataDir)
	if err := os.MkdirAll(logPath, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	eventsPath := daemon.GetDefaultEventsPath(cfg.DataDir)
	if err := ensureFIFO(eventsPath); err != nil {
		return err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	plistContent, err := daemon.GeneratePlist(daemon.PlistConfig{
		BinaryPath:       binaryPath,
		LogPath:          logPath,
		EventsPath:       eventsPath,
		WorkingDirectory: home,
	})
	if err != nil {
		return fmt.Errorf("failed to generate plist: %w", err)
	}

	plistPath, err := daemon.GetPlistPath()
	if err != nil {
		return fmt.Errorf("failed to get plist path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0755); err != nil {
		return fmt.Errorf("failed to create LaunchAgents directory: %w", err)
	}

	out := cmd.OutOrStdout()

	if _, err := os.Stat(plistPath); err == nil {
		fmt.Fprintln(out, "Daemon is already installed. Reinstalling...")
		if err := unloadDaemon(); err != nil {
			fmt.Fprintf(out, "Warning: failed to unload existing daemon: %v\n", err)
		}
	}

	if err := os.WriteFile(plistPath, []byte(plistContent), 0644); err != nil {
		return fmt.Errorf("failed to write plist file: %w", err)
	}
	fmt.Fprintf(out, "✓ Installed plist to %s\n", plistPath)

	if err := loadDaemon(plistPath); err != nil {
		return fmt.Errorf("failed to load daemon: %w", err)
	}

	fmt.Fprintln(out, "✓ Daemon loaded successfully")
	fmt.Fprintf(out, "✓ Events pipe: %s\n", eventsPath)
	fmt.Fprintf(out, "✓ Logs will be written to %s\n", logPath)
	fmt.Fprintln(out, "\nYou can check the daemon status with:")
	fmt.Fprintf(out, "  launchctl list | grep %s\n", daemon.AgentLabel)
	fmt.Fprintln(out, "\nTo uninstall, run:")
	fmt.Fprintln(out, "  webscrobbler uninstall")

	return nil
}

// ensureFIFO creates a named pipe at path unless one is already there.
func ensureFIFO(path string) error {
	info, err := os.Lstat(path)
	switch {
	case err == nil:
		if info.Mode()&fs.ModeNamedPipe != 0 {
			return nil
		}
		return fmt.Errorf("%s exists and is not a named pipe", path)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to stat events pipe: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := unix.Mkfifo(path, 0600); err != nil {
		return fmt.Errorf("failed to create events pipe: %w", err)
	}
	return nil
}

// launchdDomain is the per-user launchd domain, e.g. gui/501.
func launchdDomain() string {
	return fmt.Sprintf("gui/%d", unix.Getuid())
}

// loadDaemon loads the daemon using launchctl
func loadDaemon(plistPath string) error {
	output, err := exec.Command("launchctl", "bootstrap", launchdDomain(), plistPath).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return fmt.Errorf("launchctl bootstrap failed: %s", msg)
		}
		return fmt.Errorf("failed to run launchctl bootstrap: %w", err)
	}
	return nil
}

// unloadDaemon unloads the daemon using launchctl. An agent that is not
// loaded is not an error.
func unloadDaemon() error {
	service := launchdDomain() + "/" + daemon.AgentLabel
	output, err := exec.Command("launchctl", "bootout", service).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if strings.Contains(msg, "Could not find service") || strings.Contains(msg, "No such process") {
			return nil
		}
		if msg != "" {
			return fmt.Errorf("launchctl bootout failed: %s", msg)
		}
		return fmt.Errorf("failed to run launchctl bootout: %w", err)
	}
	return nil
}
