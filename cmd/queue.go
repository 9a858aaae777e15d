package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jfmyers9/webscrobbler/internal/scrobbler"
	"github.com/spf13/cobra"
)

var queueAll bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List queued scrobbles",
	Long: `List scrobbles waiting to be sent, oldest first.

With --all, submitted scrobbles that have not been cleaned up yet are
listed too, newest first.`,
	Args: cobra.NoArgs,
	RunE: runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.Flags().BoolVarP(&queueAll, "all", "a", false, "Include submitted scrobbles")
}

func runQueue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	label := ""
	if serviceArg != "" {
		c, err := a.client()
		if err != nil {
			return err
		}
		label = c.Label()
	}

	var rows []scrobbler.QueuedScrobble
	if queueAll {
		rows, err = a.queue.GetAll(ctx)
	} else {
		rows, err = a.queue.GetPending(ctx, label, 0)
	}
	if err != nil {
		return err
	}

	printQueue(cmd.OutOrStdout(), rows, label)
	return nil
}

// printQueue writes one line per row, skipping rows of other labels when
// label is set.
func printQueue(w io.Writer, rows []scrobbler.QueuedScrobble, label string) {
	n := 0
	for _, qs := range rows {
		if label != "" && qs.Label != label {
			continue
		}
		n++

		state := "pending"
		if qs.Scrobbled {
			state = "sent"
		}
		fmt.Fprintf(w, "%s  %-8s %-7s %s - %s",
			qs.Song.StartTimestamp.Local().Format(time.DateTime), qs.Label, state, qs.Song.Artist, qs.Song.Track)
		if qs.Attempts > 0 {
			fmt.Fprintf(w, "  (%d attempts: %s)", qs.Attempts, qs.Error)
		}
		fmt.Fprintln(w)
	}

	if n == 0 {
		fmt.Fprintln(w, "Queue is empty")
	}
}
