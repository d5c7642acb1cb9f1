package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"zerozero/pkg/models"
)

func init() {
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 50, "newest N messages")
	rootCmd.AddCommand(whoamiCmd, renewCmd, inboxCmd, requestsCmd, queueCmd, messagesCmd, readCmd)
}

var messagesLimit int

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print this node's number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Number string `json:"number"`
		}
		if err := call(http.MethodGet, "/v1/whoami", nil, &out); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Println(out.Number)
		}
		return nil
	},
}

var renewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Mint a fresh number, revoking every active pin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Number string `json:"number"`
		}
		if err := call(http.MethodPost, "/v1/number/renew", nil, &out); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Printf("☎️  new number: %s\n", out.Number)
		}
		return nil
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List active pin threads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Threads []models.InboxEntry `json:"threads"`
		}
		if err := call(http.MethodGet, "/v1/inbox", nil, &out); err != nil {
			return err
		}
		if flagJSON {
			return nil
		}
		if len(out.Threads) == 0 {
			fmt.Println("inbox is empty")
			return nil
		}
		for _, e := range out.Threads {
			unread := ""
			if e.Unread > 0 {
				unread = fmt.Sprintf(" (%d unread)", e.Unread)
			}
			latest := ""
			when := "-"
			if e.Latest != nil {
				latest = truncate(e.Latest.Content, 48)
				when = formatTime(e.Latest.Timestamp)
			}
			name := e.Pin.Label
			if name == "" {
				name = e.Pin.Value
			}
			fmt.Printf("%-20s %3d msgs%s  %s  %s\n", name, e.MessageCount, unread, when, latest)
		}
		return nil
	},
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List unanswered lobby sub-threads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Threads []models.ThreadSummary `json:"threads"`
		}
		if err := call(http.MethodGet, "/v1/requests", nil, &out); err != nil {
			return err
		}
		if flagJSON {
			return nil
		}
		if len(out.Threads) == 0 {
			fmt.Println("no pending requests")
			return nil
		}
		for _, ts := range out.Threads {
			latest := ""
			if ts.Latest != nil {
				latest = truncate(ts.Latest.Content, 48)
			}
			fmt.Printf("lobby %s  peer %s  %d msgs  %s\n", ts.PinValue, ts.ShortKey, ts.Count, latest)
		}
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List pending offline messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Items []models.QueueItem `json:"items"`
		}
		if err := call(http.MethodGet, "/v1/queue", nil, &out); err != nil {
			return err
		}
		if flagJSON {
			return nil
		}
		if len(out.Items) == 0 {
			fmt.Println("queue is empty")
			return nil
		}
		for _, it := range out.Items {
			target := it.TheirNumber
			if target == "" {
				target = "pin " + it.PinID
			}
			fmt.Printf("%-14s → %-18s expires %s  %s\n", it.ID, target, formatTime(it.ExpiresAt), truncate(it.Content, 40))
		}
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <thread-key>",
	Short: "Show a thread's messages, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Messages []models.StoredMessage `json:"messages"`
		}
		path := fmt.Sprintf("/v1/threads/%s/messages?limit=%d", args[0], messagesLimit)
		if err := call(http.MethodGet, path, nil, &out); err != nil {
			return err
		}
		if flagJSON {
			return nil
		}
		for _, m := range out.Messages {
			who := m.From
			if m.IsMine {
				who = "me"
			}
			fmt.Printf("[%s] %s: %s\n", formatTime(m.Timestamp), who, m.Content)
		}
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <thread-key>",
	Short: "Mark a thread read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPost, "/v1/threads/"+args[0]+"/read", nil, nil); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Println("ok")
		}
		return nil
	},
}
