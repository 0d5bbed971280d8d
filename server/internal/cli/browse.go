package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/offsetpage"
)

func NewUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users [name-prefix]",
		Short: "List users, optionally filtered by name prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			search := ""
			if len(args) == 1 {
				search = args[0]
			}
			pager := offsetpage.PaginatedUsers(e.client, search, pagerOptions(cmd, e))
			return runBrowse(cmd, pager, "users", func(out io.Writer, users []model.User) {
				fmt.Fprintf(out, "Users (%d):\n", len(users))
				for _, u := range users {
					status := "offline"
					if u.Online {
						status = "online"
					} else if !u.LastActive.IsZero() {
						status = "active " + humanize.Time(u.LastActive)
					}
					fmt.Fprintf(out, "  %s  %s  %s\n", u.ID, u.Name, status)
				}
			})
		},
	}
	addBrowseFlags(cmd)
	return cmd
}

func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search sent messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			channel, _ := cmd.Flags().GetString("channel")
			pager := offsetpage.PaginatedSearchedMessages(e.client, args[0], channel, pagerOptions(cmd, e))
			return runBrowse(cmd, pager, "messages", func(out io.Writer, msgs []model.Message) {
				fmt.Fprintf(out, "Messages (%d):\n", len(msgs))
				for _, m := range msgs {
					fmt.Fprintf(out, "  %s  %s  %s: %q\n", humanize.Time(m.CreatedAt), m.ChannelCID, m.UserID, m.Text)
				}
			})
		},
	}
	cmd.Flags().String("channel", "", "only search this channel cid")
	addBrowseFlags(cmd)
	return cmd
}

func NewAttachmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attachments <channel-cid>",
		Short: "List attachments of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			kind, _ := cmd.Flags().GetString("type")
			pager := offsetpage.PaginatedAttachments(e.client, args[0], kind, pagerOptions(cmd, e))
			return runBrowse(cmd, pager, "attachments", func(out io.Writer, atts []model.Attachment) {
				fmt.Fprintf(out, "Attachments (%d):\n", len(atts))
				for _, a := range atts {
					fmt.Fprintf(out, "  %s  [%s] %s  %s\n", a.ID, a.Type, a.Title, a.URL)
				}
			})
		},
	}
	cmd.Flags().String("type", "", "only attachments of this type (image, file, ...)")
	addBrowseFlags(cmd)
	return cmd
}

func addBrowseFlags(cmd *cobra.Command) {
	cmd.Flags().Int("limit", 0, "page size (default from config)")
	cmd.Flags().Int("pages", 1, "number of pages to load")
}

func pagerOptions(cmd *cobra.Command, e *env) offsetpage.Options {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = e.cfg.Paging.OffsetLimit
	}
	return offsetpage.Options{Limit: limit, Logger: e.logger}
}

// runBrowse 加载 --pages 页（或直到没有更多）后打印结果。
func runBrowse[T any](cmd *cobra.Command, pager *offsetpage.Pager[T], key string, render func(io.Writer, []T)) error {
	pages, _ := cmd.Flags().GetInt("pages")
	ctx := cmd.Context()

	for i := 0; i < pages && pager.HasMore(); i++ {
		if !pager.LoadMore(ctx) {
			if i == 0 {
				return writeCommandError(cmd, fmt.Errorf("load %s failed", key))
			}
			break
		}
	}

	out := cmd.OutOrStdout()
	if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
		return writeJSON(out, key, pager.Results())
	}
	render(out, pager.Results())
	return nil
}
