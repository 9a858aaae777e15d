package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/jfmyers9/webscrobbler/internal/scrobbler"
	"github.com/jfmyers9/webscrobbler/internal/storage"
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authorization state and queued scrobbles per service",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Send queued scrobbles now",
	Long: `Send queued scrobbles to their services in batches of up to 50.

Flushing a service stops at the first batch that fails; the remaining
scrobbles stay queued for the daemon or the next flush.`,
	Args: cobra.NoArgs,
	RunE: runFlush,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(flushCmd)
}

// serviceStatus is what status reports for one service.
type serviceStatus struct {
	Label     string
	User      string
	Profile   string
	Pending   int
	Authorize bool // A token is waiting to be traded
}

func collectStatus(ctx context.Context, c *scrobbler.Client) (serviceStatus, error) {
	st := serviceStatus{Label: c.Label()}

	creds, err := c.API().Auth().Credentials(ctx)
	if err != nil {
		return st, err
	}
	st.User = creds.SessionName
	st.Authorize = creds.SessionID == "" && creds.Token != ""

	if st.Profile, err = c.API().StatusURL(ctx); err != nil {
		return st, err
	}
	if st.Pending, err = c.Pending(ctx); err != nil {
		return st, err
	}
	return st, nil
}

func printStatus(w io.Writer, st serviceStatus) {
	fmt.Fprintf(w, "%s\n", st.Label)
	switch {
	case st.User != "":
		fmt.Fprintf(w, "  Signed in as: %s\n", st.User)
		if st.Profile != "" {
			fmt.Fprintf(w, "  Profile:      %s\n", st.Profile)
		}
	case st.Authorize:
		fmt.Fprintln(w, "  Signed in as: (authorization pending, run 'webscrobbler auth')")
	default:
		fmt.Fprintln(w, "  Signed in as: (not signed in)")
	}
	fmt.Fprintf(w, "  Queued:       %d\n", st.Pending)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	for i, c := range a.clients() {
		st, err := collectStatus(ctx, c)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Label(), err)
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		printStatus(out, st)
	}

	orphans, err := orphanedNamespaces(ctx, a.store, a.registry)
	if err != nil {
		return err
	}
	printOrphans(out, orphans)
	return nil
}

func runFlush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	clients := a.clients()
	if serviceArg != "" {
		c, err := a.client()
		if err != nil {
			return err
		}
		clients = []*scrobbler.Client{c}
	}

	var failed bool
	out := cmd.OutOrStdout()
	for _, c := range clients {
		var sent, ignored int
		result := lastfm.ResultOK
		for {
			stats, err := c.Flush(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Label(), err)
			}
			sent += stats.Accepted
			ignored += stats.Ignored
			result = stats.Result
			if result != lastfm.ResultOK || stats.Pending < lastfm.MaxBatchSize {
				break
			}
		}

		remaining, err := c.Pending(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Label(), err)
		}

		fmt.Fprintf(out, "%s: %s, %d accepted, %d ignored, %d still queued\n",
			c.Label(), result, sent, ignored, remaining)
		if result != lastfm.ResultOK {
			failed = true
		}
	}

	if failed {
		return fmt.Errorf("some scrobbles could not be sent")
	}
	return nil
}

// orphanedNamespaces lists stored credential documents that belong to no
// enabled service, e.g. after a service was removed from the config.
func orphanedNamespaces(ctx context.Context, store *storage.DB, registry *lastfm.Registry) ([]string, error) {
	names, err := store.Namespaces(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, name := range names {
		if _, ok := registry.Get(name); !ok {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}

func printOrphans(w io.Writer, orphans []string) {
	if len(orphans) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Stored credentials for services that are not enabled:")
	for _, name := range orphans {
		fmt.Fprintf(w, "  %s\n", name)
	}
}
