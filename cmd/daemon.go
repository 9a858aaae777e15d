package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jfmyers9/webscrobbler/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	daemonLogFile string
	daemonDataDir string
	daemonEvents  string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scrobbling daemon",
	Long: `Run the scrobbling daemon that reads song events and scrobbles them to
the default service (--service, or service in the config file).

Events are JSON objects, one per line:

  {"type":"nowplaying","artist":"A","track":"T","duration":240,"startTimestamp":1700000000}
  {"type":"scrobble","artist":"A","track":"T","duration":240,"startTimestamp":1700000000,"played":200}
  {"type":"love","artist":"A","track":"T"}

An optional "service" field sends the event to another enabled service,
by label (e.g. "Libre.fm").

The daemon will:
- Send now-playing updates and skip repeats of the same play
- Scrobble plays that meet the scrobbling threshold (50% or 4 minutes)
- Queue failed scrobbles and retry them periodically
- Handle graceful shutdown on SIGINT/SIGTERM or at the end of the input

The daemon runs in the foreground and logs to stderr by default.
Use the --log-file flag to log to a file (useful for launchd).`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path (default: stderr)")
	daemonCmd.Flags().StringVar(&daemonDataDir, "data-dir", "", "Data directory for state and queue (default: ~/.local/share/webscrobbler)")
	daemonCmd.Flags().StringVar(&daemonEvents, "events", "-", "Event input: a file or FIFO path, or - for stdin")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{dataDir: daemonDataDir, logFile: daemonLogFile})
	if err != nil {
		return err
	}
	defer a.store.Close()

	logger := a.logger
	logger.Info().
		Str("version", version).
		Str("data_dir", a.cfg.DataDir).
		Strs("services", a.registry.Labels()).
		Msg("Starting webscrobbler daemon")

	input, err := openEvents(daemonEvents)
	if err != nil {
		a.queue.Close()
		return err
	}
	defer input.Close()

	defaultLabel, err := a.serviceLabel()
	if err != nil {
		if serviceArg != "" {
			a.queue.Close()
			return err
		}
		logger.Warn().Err(err).Msg("Default service unavailable, events must name a service")
		defaultLabel = ""
	}

	d, err := daemon.New(daemon.Config{
		StateFile:       filepath.Join(a.cfg.DataDir, "state.json"),
		ProcessInterval: a.cfg.ProcessInterval,
		Input:           input,
		DefaultService:  defaultLabel,
	}, a.registry, a.queue, logger)
	if err != nil {
		a.queue.Close()
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Run daemon (blocks until the input ends or a shutdown signal)
	runErr := d.Run()

	if err := d.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		return fmt.Errorf("daemon error: %w", runErr)
	}
	return nil
}

// openEvents opens the event input. A FIFO blocks here until a writer
// connects. The daemon closes the input on shutdown to unblock the reader,
// so stdin is returned as is.
func openEvents(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events: %w", err)
	}
	return f, nil
}
