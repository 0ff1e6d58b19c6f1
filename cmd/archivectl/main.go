package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/wpparchive/internal/api"
	"github.com/matheus3301/wpparchive/internal/lock"
	"github.com/matheus3301/wpparchive/internal/session"
	"github.com/spf13/cobra"
)

const callTimeout = 30 * time.Second

type cli struct {
	sessionFlag string
	jsonOut     bool

	sessionName string
	client      *api.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "archivectl",
		Short:         "Control a running archived session daemon",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.sessionName = session.Resolve(c.sessionFlag)
			if err := session.ValidateName(c.sessionName); err != nil {
				return err
			}
			client, err := api.Dial(session.SocketPath(c.sessionName))
			if err != nil {
				return fmt.Errorf("cannot connect to daemon for session %q: %w", c.sessionName, err)
			}
			c.client = client
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.client != nil {
				return c.client.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.sessionFlag, "session", "", "session name (overrides config default)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "output in JSON format")

	root.AddCommand(
		c.statusCmd(),
		c.watchCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.linkCmd(),
		c.qrCmd(),
		c.dismissQRCmd(),
		c.linkStatusCmd(),
		c.fetchCmd(),
		c.chatsCmd(),
		c.openCmd(),
		c.searchCmd(),
		c.exportCmd(),
		c.deleteAllCmd(),
		c.disconnectCmd(),
		c.notificationsCmd(),
		c.focusCmd(),
		c.visibilityCmd(),
	)
	return root
}

func (c *cli) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

// daemonHint explains a failed call when no daemon holds the session lock.
func (c *cli) daemonHint(err error) error {
	h, held, lockErr := lock.Inspect(session.Dir(c.sessionName))
	switch {
	case lockErr != nil:
		return err
	case !held:
		return fmt.Errorf("daemon for session %q is not running (start it with: archived --session %s): %w", c.sessionName, c.sessionName, err)
	default:
		return fmt.Errorf("daemon PID %d is running but did not answer: %w", h.PID, err)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
