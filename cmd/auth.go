package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jfmyers9/webscrobbler/internal/config"
	"github.com/jfmyers9/webscrobbler/internal/scrobbler"
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/spf13/cobra"
)

var (
	authSetDefault bool
	logoutForget   string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize webscrobbler with a service",
	Long: `Authorize webscrobbler to scrobble to a service.

This command will guide you through the authorization process:
1. A request token is fetched and an authorization URL is printed
2. Open the URL in a browser and allow access
3. Press Enter; the token is traded for a session that is stored in the
   data directory

API credentials go into the config file under services.<name>.api_key and
services.<name>.api_secret. For Last.fm you can get them from:
https://www.last.fm/api/account/create

With --default the service also becomes the default in the config file.`,
	RunE: runAuth,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session of a service",
	Long: `Sign out of a service and remove its stored credentials.

--forget removes the credentials stored under a label that is no longer
enabled, as listed by 'webscrobbler status'.`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(logoutCmd)

	authCmd.Flags().BoolVar(&authSetDefault, "default", false, "Make this service the default in the config file")
	logoutCmd.Flags().StringVar(&logoutForget, "forget", "", "Remove stored credentials of a service that is not enabled")
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.client()
	if err != nil {
		return err
	}
	auth := c.API().Auth()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Authorization\n", c.Label())
	fmt.Fprintln(out, "======================")
	fmt.Fprintln(out)

	creds, err := auth.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	if creds.SessionID != "" {
		fmt.Fprintf(out, "Already signed in as %s.\n", creds.SessionName)
		fmt.Fprintf(out, "Run 'webscrobbler logout --service %q' to sign in as someone else.\n", c.Label())
		return nil
	}

	fmt.Fprintln(out, "Requesting authorization token...")
	authURL, err := auth.URL(ctx)
	if err != nil {
		return fmt.Errorf("failed to get authorization URL: %w", err)
	}

	fmt.Fprintln(out, "\nPlease visit this URL to authorize webscrobbler:")
	fmt.Fprintf(out, "\n  %s\n\n", authURL)
	fmt.Fprintln(out, "After authorizing, press Enter to continue...")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')

	session, err := auth.Session(ctx)
	if err != nil {
		if errors.Is(err, lastfm.ErrAuth) {
			return fmt.Errorf("authorization was not completed, run 'webscrobbler auth' again: %w", err)
		}
		return fmt.Errorf("failed to get session: %w", err)
	}

	fmt.Fprintf(out, "\n✓ Signed in to %s as %s\n", c.Label(), session.Name)
	if profile, err := c.API().StatusURL(ctx); err == nil && profile != "" {
		fmt.Fprintf(out, "✓ Profile: %s\n", profile)
	}
	if authSetDefault {
		path, err := setDefaultService(c.Label())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Default service set to %s in %s\n", c.Label(), path)
	}
	fmt.Fprintln(out, "\nYou can now use 'webscrobbler daemon' to start scrobbling.")

	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if logoutForget != "" {
		if err := forgetCredentials(ctx, a, logoutForget); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed stored credentials of %s\n", logoutForget)
		return nil
	}

	c, err := a.client()
	if err != nil {
		return err
	}
	if err := signOut(ctx, a, c); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed out of %s\n", c.Label())
	return nil
}

// signOut drops the session of c and removes its credential namespace.
func signOut(ctx context.Context, a *app, c *scrobbler.Client) error {
	if err := c.API().Auth().SignOut(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return a.store.Delete(ctx, c.Label())
}

// forgetCredentials removes the namespace of a service that is not enabled.
func forgetCredentials(ctx context.Context, a *app, label string) error {
	if _, ok := a.registry.Get(label); ok {
		return fmt.Errorf("service %s is enabled, use 'webscrobbler logout --service %q'", label, label)
	}
	return a.store.Delete(ctx, label)
}

// setDefaultService rewrites the config file with label's service as the
// default and returns the file written. The file is reloaded so that
// command-line overrides are not persisted.
func setDefaultService(label string) (string, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	svc, ok := cfg.FindService(label)
	if !ok {
		return "", fmt.Errorf("unknown service %q", label)
	}

	cfg.Service = svc.Name
	if err := cfg.Save(); err != nil {
		return "", err
	}
	return cfg.Path(), nil
}
