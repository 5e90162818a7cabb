package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/47anjan/tinderfood-sub000/internal/chat"
	"github.com/47anjan/tinderfood-sub000/internal/config"
	"github.com/47anjan/tinderfood-sub000/internal/session"
)

var profilePath string

var rootCmd = &cobra.Command{
	Use:   "messenger",
	Short: "Terminal client for the tinderfood chat relay",
	Long: `Terminal client for the tinderfood chat relay.

Reads a YAML profile with your identity and contacts, keeps one live
connection to the relay, and tracks unread messages per sender.

Commands inside the client:
  /open <id>   open the conversation with a contact
  /close       close the open conversation
  /unread      show unread counts per sender
  /who         list contacts
  /quit        exit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "messenger.yaml", "Path to the profile file")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the profile file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.LoadProfile(profilePath)
		if err != nil {
			return err
		}
		fmt.Printf("Profile OK: %s (%s), relay %s, %d contact(s)\n",
			p.Name, p.UserID, p.RelayURL, len(p.Contacts))
		return nil
	},
}

func run(ctx context.Context) error {
	p, err := config.LoadProfile(profilePath)
	if err != nil {
		return err
	}

	sess := session.New(p.SessionURL(), session.Identity{UserID: p.UserID, Name: p.Name})
	sess.NotifyState(func(connected bool) {
		if !connected {
			fmt.Fprintln(os.Stderr, "[connection lost]")
		}
	})

	center := chat.NewCenter(sess, p.UserID, p.Name, chat.MapDirectory(p.Directory()))
	center.SetRenderSignal(func() { render(center) })

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sess.Connect(connectCtx); err != nil {
		return err
	}
	defer sess.Disconnect()
	defer center.Shutdown()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("Connected as %s. /quit to exit.\n", p.Name)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if err := center.SendActive(line); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/open":
			arg = strings.TrimSpace(arg)
			ch, err := center.Open(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
				continue
			}
			fmt.Printf("-- conversation with %s --\n", displayName(p, arg))
			for _, m := range ch.Messages() {
				printMessage(p, m)
			}

		case "/close":
			center.CloseActive()

		case "/unread":
			entries := center.Ledger().Entries()
			if len(entries) == 0 {
				fmt.Println("No unread messages")
				continue
			}
			fmt.Printf("%d unread message(s):\n", center.Ledger().TotalUnread())
			for _, e := range entries {
				fmt.Printf("  %s (%d): %s\n", e.SenderName, e.Count, e.LastText)
			}

		case "/who":
			for _, c := range p.Contacts {
				fmt.Printf("  %s  %s\n", c.ID, c.Name)
			}

		case "/quit":
			return nil

		default:
			fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		}
	}
}

// render prints the newest visible state after an inbound event. It runs on
// the session's dispatch goroutine.
func render(center *chat.Center) {
	if ch := center.ActiveChannel(); ch != nil {
		msgs := ch.Messages()
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			if last.FromID == ch.CounterpartID() {
				fmt.Printf("\n%s: %s\n", last.FromID, last.Content)
			}
		}
		if ch.CounterpartTyping() {
			fmt.Println("[typing...]")
		}
		return
	}
	if total := center.Ledger().TotalUnread(); total > 0 {
		fmt.Printf("\n[%d unread]\n", total)
	}
}

func displayName(p *config.Profile, id string) string {
	for _, c := range p.Contacts {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}

func printMessage(p *config.Profile, m chat.Message) {
	from := m.FromID
	if from == p.UserID {
		from = "me"
	} else {
		from = displayName(p, from)
	}
	ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
	fmt.Printf("[%s] %s: %s\n", ts, from, m.Content)
}
