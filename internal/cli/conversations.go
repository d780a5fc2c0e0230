package cli

import (
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/convo/internal/feed"
	"github.com/tOgg1/convo/internal/models"
)

const previewWidth = 60

var (
	conversationsAll     bool
	conversationsLimit   int
	conversationsAccount string
	conversationsMaxRows int
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

func init() {
	rootCmd.AddCommand(conversationsCmd)

	conversationsCmd.Flags().BoolVar(&conversationsAll, "all", false, "follow pagination until the last page")
	conversationsCmd.Flags().IntVar(&conversationsLimit, "limit", 0, "page size (default from client.page_size)")
	conversationsCmd.Flags().IntVar(&conversationsMaxRows, "max", 0, "stop after this many conversations with --all (0 = no limit)")
	conversationsCmd.Flags().StringVar(&conversationsAccount, "account", "", "account handle or id (default: active account)")
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs", "inbox"},
	Short:   "List direct-message conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		acct, err := accountContext(ctx, env, conversationsAccount)
		if err != nil {
			return err
		}
		f, _, err := env.newFeed(acct, conversationsLimit)
		if err != nil {
			return err
		}

		if err := f.FetchFirstPage(ctx); err != nil {
			return err
		}
		for conversationsAll && f.Snapshot().HasMore {
			if conversationsMaxRows > 0 && len(f.Snapshot().Conversations) >= conversationsMaxRows {
				break
			}
			if err := f.FetchNextPage(ctx); err != nil {
				return err
			}
		}

		snap := f.Snapshot()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, snap.Conversations)
		}
		return printConversations(snap)
	},
}

func printConversations(snap feed.Snapshot) error {
	if snap.IsEmpty() {
		fmt.Fprintln(os.Stdout, "No conversations.")
		return nil
	}

	now := time.Now()
	tbl := newTable("", "ID", "WITH", "LAST", "MESSAGE").limit(2, 40).limit(4, previewWidth)
	for _, c := range snap.Conversations {
		unread := ""
		if c.Unread {
			unread = "●"
		}
		last := "-"
		if ts := c.LastActivity(); !ts.IsZero() {
			last = formatAge(now.Sub(ts))
		}
		preview := ""
		if c.LastStatus != nil {
			preview = plainText(c.LastStatus.Content)
		}
		tbl.add(unread, c.ID, participantList(c), last, preview)
	}
	if err := tbl.write(os.Stdout); err != nil {
		return err
	}
	if snap.HasMore {
		fmt.Fprintln(os.Stdout, "(more available: use --all)")
	}
	return nil
}

func participantList(c models.Conversation) string {
	handles := make([]string, 0, len(c.Accounts))
	for _, acct := range c.Accounts {
		handles = append(handles, "@"+acct.Acct)
	}
	return strings.Join(handles, ", ")
}

func plainText(content string) string {
	text := htmlTag.ReplaceAllString(content, " ")
	return strings.Join(strings.Fields(html.UnescapeString(text)), " ")
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
