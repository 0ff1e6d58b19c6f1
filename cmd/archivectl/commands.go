package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/matheus3301/wpparchive/internal/api"
	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/view"
	"github.com/spf13/cobra"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show link, channel and archive status",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			info, err := c.client.GetViewInfo(ctx)
			if err != nil {
				return c.daemonHint(err)
			}
			if c.jsonOut {
				outputJSON(info)
				return nil
			}
			st := info.State
			fmt.Printf("Session:  %s\n", c.sessionName)
			fmt.Printf("View:     %s\n", st.View)
			fmt.Printf("Channel:  %s\n", onOff(st.ChannelConnected, "connected", "disconnected"))
			link := "not linked"
			if st.Link.Connected {
				link = "linked as " + st.Link.AccountID
			}
			fmt.Printf("Link:     %s (%s)\n", link, st.Pairing)
			if st.Unconfirmed {
				fmt.Println("          showing archived data, link not confirmed")
			}
			if st.Stats != nil {
				fmt.Printf("Archive:  %d chats, %d messages\n", st.Stats.TotalChats, st.Stats.TotalMessages)
			}
			fmt.Printf("Fetch:    %s\n", st.Job.Status)
			if info.Mirror != nil && !info.Mirror.LastFullReload.IsZero() {
				fmt.Printf("Mirror:   reloaded %s\n", info.Mirror.LastFullReload.Format(time.RFC3339))
			}
			printAlerts(st.Alerts)
			return nil
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream view changes and system alerts until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			seen := map[string]bool{}
			err := c.client.Watch(ctx, func(evt api.WatchEvent) error {
				if c.jsonOut {
					outputJSON(evt)
					return nil
				}
				switch evt.Kind {
				case api.WatchView:
					if evt.View == nil {
						return nil
					}
					for _, a := range evt.View.Alerts {
						if !seen[a.ID] {
							seen[a.ID] = true
							fmt.Printf("[%s] %s\n", a.Level, a.Text)
						}
					}
				case api.WatchSystemAlert:
					if evt.Alert == nil {
						return nil
					}
					fmt.Printf("🔔 %s: %s\n", evt.Alert.Title, evt.Alert.Body)
				}
				return nil
			})
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func (c *cli) loginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the archive credential and open the event channel",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if token == "" {
				fmt.Fprint(os.Stderr, "Token: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return errors.New("a token is required")
			}
			ctx, cancel := c.ctx()
			defer cancel()
			if err := c.client.SetCredential(ctx, token); err != nil {
				return c.daemonHint(err)
			}
			fmt.Println("Credential stored.")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token (read from stdin when empty)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the archive credential and close the event channel",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			if err := c.client.SetCredential(ctx, ""); err != nil {
				return c.daemonHint(err)
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func (c *cli) linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Start pairing the external account",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			if err := c.client.InitializeLink(ctx); err != nil {
				return c.daemonHint(err)
			}
			fmt.Println("Initialization started. Run `archivectl qr` to scan the code.")
			return nil
		},
	}
}

func (c *cli) qrCmd() *cobra.Command {
	var out string
	var size int
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Show the pending pairing code",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			format := api.QRTerminal
			if out != "" {
				format = api.QRPNG
			}
			ctx, cancel := c.ctx()
			defer cancel()
			resp, err := c.client.QR(ctx, format, size)
			if err != nil {
				return c.daemonHint(err)
			}
			if c.jsonOut {
				outputJSON(resp)
				return nil
			}
			switch {
			case resp.DataURL != "":
				fmt.Println(resp.DataURL)
			case out != "":
				if err := os.WriteFile(out, resp.PNG, 0600); err != nil {
					return err
				}
				fmt.Printf("QR code written to %s\n", out)
			default:
				fmt.Print(resp.Terminal)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write a PNG to this file instead of drawing in the terminal")
	cmd.Flags().IntVar(&size, "size", 256, "PNG size in pixels")
	return cmd
}

func (c *cli) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every message from the linked account into the archive",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			if err := c.client.FetchAll(ctx); err != nil {
				return c.daemonHint(err)
			}
			st, err := c.client.GetView(ctx)
			if err != nil {
				return err
			}
			if st.Busy {
				fmt.Println("Message fetching started. Use `archivectl watch` to follow it.")
			} else {
				fmt.Println("Messages fetched.")
			}
			return nil
		},
	}
}

func (c *cli) chatsCmd() *cobra.Command {
	var local bool
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			var chats []model.ChatSummary
			if local {
				resp, err := c.client.LocalChats(ctx, limit, offset)
				if err != nil {
					return c.daemonHint(err)
				}
				chats = resp.Chats
			} else {
				st, err := c.client.GetView(ctx)
				if err != nil {
					return c.daemonHint(err)
				}
				chats = st.Chats
			}
			if c.jsonOut {
				outputJSON(chats)
				return nil
			}
			if len(chats) == 0 {
				fmt.Println("No chats.")
				return nil
			}
			for _, ch := range chats {
				kind := " "
				if ch.IsGroup {
					kind = "G"
				}
				fmt.Printf("%-6s %s %-30s %6d msgs  %s\n", ch.ID, kind, ch.Name, ch.MessageCount, formatTime(ch.LastMessageTime))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "read from the local mirror")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum chats with --local")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many chats with --local")
	return cmd
}

func (c *cli) openCmd() *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "open <chat-id>",
		Short: "Select a chat and print its newest messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			if _, err := c.client.SelectChat(ctx, args[0]); err != nil {
				return c.daemonHint(err)
			}
			for i := 1; i < pages; i++ {
				st, err := waitLoaded(ctx, c.client)
				if err != nil {
					return err
				}
				if !st.HasMore {
					break
				}
				if err := c.client.LoadMore(ctx); err != nil {
					return err
				}
			}
			st, err := waitLoaded(ctx, c.client)
			if err != nil {
				return err
			}
			if c.jsonOut {
				outputJSON(st.Messages)
				return nil
			}
			for i := len(st.Messages) - 1; i >= 0; i-- {
				m := st.Messages[i]
				who := m.SenderName
				if m.FromMe {
					who = "me"
				}
				fmt.Printf("%s  %-16s %s\n", formatTime(time.UnixMilli(m.Timestamp)), who, m.Body)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	return cmd
}

// waitLoaded polls until the selected chat's current page has arrived.
func waitLoaded(ctx context.Context, client *api.Client) (view.State, error) {
	last := -1
	for {
		st, err := client.GetView(ctx)
		if err != nil {
			return st, err
		}
		if len(st.Messages) > 0 && len(st.Messages) == last {
			return st, nil
		}
		last = len(st.Messages)
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var local bool
	var chatID string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			ctx, cancel := c.ctx()
			defer cancel()
			var (
				results []model.SearchResult
				err     error
			)
			if local {
				results, err = c.client.LocalSearch(ctx, query, chatID, limit)
			} else {
				results, err = c.client.Search(ctx, query, limit)
			}
			if err != nil {
				return c.daemonHint(err)
			}
			if c.jsonOut {
				outputJSON(results)
				return nil
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, r := range results {
				text := r.Snippet
				if text == "" {
					text = r.Message.Body
				}
				fmt.Printf("%s  %-20s %s\n", formatTime(time.UnixMilli(r.Message.Timestamp)), r.ChatName, text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "search the local mirror")
	cmd.Flags().StringVar(&chatID, "chat", "", "restrict a --local search to one chat")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the archive",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			data, err := c.client.Export(ctx, format)
			if err != nil {
				return c.daemonHint(err)
			}
			if out == "" {
				out = fmt.Sprintf("whatsapp-archive-%s.%s", time.Now().Format("2006-01-02"), format)
			}
			if out == "-" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0600); err != nil {
				return err
			}
			fmt.Printf("Exported %d bytes to %s\n", len(data), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file, - for stdout")
	cmd.Flags().StringVar(&format, "format", "json", "export format")
	return cmd
}

func (c *cli) deleteAllCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every archived chat and message",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			ctx, cancel := c.ctx()
			defer cancel()
			if err := c.client.DeleteAll(ctx); err != nil {
				return c.daemonHint(err)
			}
			fmt.Println("All data deleted.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func (c *cli) disconnectCmd() *cobra.Command {
	var forget bool
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Unlink the external account",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			call := c.client.DisconnectLink
			if forget {
				call = c.client.DeleteSession
			}
			if err := call(ctx); err != nil {
				return c.daemonHint(err)
			}
			fmt.Println("Disconnected.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&forget, "forget", false, "also delete the server-side session")
	return cmd
}

func (c *cli) notificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "notifications <enable|decline|later>",
		Short:     "Answer the notification permission prompt",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(view.NotificationsEnable), string(view.NotificationsDecline), string(view.NotificationsLater)},
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			if err := c.client.Notifications(ctx, view.NotificationAction(args[0])); err != nil {
				return c.daemonHint(err)
			}
			st, err := c.client.GetView(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Notification permission: %s\n", st.Permission)
			return nil
		},
	}
}

func (c *cli) focusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "focus",
		Short: "Mark messages as seen and reset the unread counter",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			if err := c.client.Focus(ctx); err != nil {
				return c.daemonHint(err)
			}
			return nil
		},
	}
}

func (c *cli) visibilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "visibility <shown|hidden>",
		Short:     "Report whether the archive is on screen; shown resets the unread counter",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"shown", "hidden"},
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			if err := c.client.Visible(ctx, args[0] == "shown"); err != nil {
				return c.daemonHint(err)
			}
			return nil
		},
	}
}

func printAlerts(alerts []model.Alert) {
	for _, a := range alerts {
		fmt.Printf("[%s] %s\n", a.Level, a.Text)
	}
}

func onOff(b bool, on, off string) string {
	if b {
		return on
	}
	return off
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func (c *cli) linkStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link-status",
		Short: "Ask the archive server for the link state",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			st, err := c.client.LinkStatus(ctx)
			if err != nil {
				return c.daemonHint(err)
			}
			if c.jsonOut {
				outputJSON(st)
				return nil
			}
			if !st.Connected {
				fmt.Println("Not linked.")
				return nil
			}
			fmt.Printf("Linked as %s, last used %s\n", st.AccountID, formatTime(st.LastUsed))
			return nil
		},
	}
}

func (c *cli) dismissQRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss-qr",
		Short: "Hide the pending pairing code",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := c.ctx()
			defer cancel()
			if err := c.client.DismissArtifact(ctx); err != nil {
				return c.daemonHint(err)
			}
			return nil
		},
	}
}
