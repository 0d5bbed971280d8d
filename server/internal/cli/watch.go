package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/paginator"
	"chat-drafts/server/internal/statestore"
)

func NewDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Show the user's drafts and follow updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			channel, _ := cmd.Flags().GetString("channel")
			var filter map[string]string
			if channel != "" {
				filter = map[string]string{"channel_cid": channel}
			}
			mgr := paginator.NewDraftsManager(e.client, paginator.Options{
				UserID:     e.cfg.Client.UserID,
				MaxLimit:   e.cfg.Paging.MaxLimit,
				StaleAfter: e.cfg.Paging.StaleAfter,
				Filter:     filter,
				Logger:     e.logger,
			})
			return runWatch(cmd, e, mgr, "drafts", renderDrafts)
		},
	}
	cmd.Flags().String("channel", "", "only drafts of this channel cid")
	addWatchFlags(cmd)
	return cmd
}

func NewRemindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Show the user's reminders and follow updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			mgr := paginator.NewRemindersManager(e.client, paginator.Options{
				UserID:     e.cfg.Client.UserID,
				MaxLimit:   e.cfg.Paging.MaxLimit,
				StaleAfter: e.cfg.Paging.StaleAfter,
				Logger:     e.logger,
			})
			return runWatch(cmd, e, mgr, "reminders", renderReminders)
		},
	}
	addWatchFlags(cmd)
	return cmd
}

func addWatchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("pages", 1, "number of pages to load up front")
	cmd.Flags().Bool("once", false, "print the current list and exit")
}

// runWatch 激活 manager 并打印记录列表。--once 时打印一次后退出，否则连上事件流，
// 每次列表被替换都重新打印，直到收到中断信号。
func runWatch[T any](cmd *cobra.Command, e *env, mgr *paginator.Manager[T], key string, render func(io.Writer, []T)) error {
	jsonMode, _ := cmd.Flags().GetBool("json")
	once, _ := cmd.Flags().GetBool("once")
	pages, _ := cmd.Flags().GetInt("pages")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer mgr.Close()

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	show := func(records []T) {
		mu.Lock()
		defer mu.Unlock()
		if jsonMode {
			_ = writeJSON(out, key, records)
			return
		}
		render(out, records)
	}

	// 首次加载在连接事件流之前完成，避免与 connection.opened 触发的 Reload 抢占 loading 标志
	mgr.RegisterSubscriptions()
	mgr.Activate()
	if !mgr.State().GetLatestValue().Ready {
		return writeCommandError(cmd, fmt.Errorf("initial %s load failed", key))
	}
	for i := 1; i < pages && mgr.State().GetLatestValue().Pagination.NextCursor != ""; i++ {
		mgr.LoadNextPage(ctx, model.QueryOptions{})
	}

	if once {
		show(mgr.Records())
		return nil
	}

	unsubscribe := statestore.SubscribeWithSelectorFunc(mgr.State(),
		func(s paginator.State[T]) []T { return s.Records },
		statestore.SameSlice[T],
		func(next, _ []T) { show(next) },
	)
	defer unsubscribe()
	show(mgr.Records())

	// 每次（重）连上都强制刷新，补上首次加载到连上之间以及断线期间错过的事件
	sub := e.client.On(model.EventConnectionOpened, func(model.Event) {
		go mgr.Reload(ctx, paginator.ReloadOptions{Force: true})
	})
	defer sub.Unsubscribe()
	e.client.Connect(ctx)

	<-ctx.Done()
	return nil
}

func renderDrafts(out io.Writer, drafts []*model.Draft) {
	fmt.Fprintf(out, "Drafts (%d):\n", len(drafts))
	for _, d := range drafts {
		fmt.Fprintf(out, "  %s  %q  (%s)\n", d.Key(), d.Message.Text, humanize.Time(d.UpdatedAt))
	}
}

func renderReminders(out io.Writer, reminders []*model.Reminder) {
	fmt.Fprintf(out, "Reminders (%d):\n", len(reminders))
	for _, r := range reminders {
		due := "no due time"
		if r.RemindAt != nil {
			due = "due " + humanize.Time(*r.RemindAt)
		}
		fmt.Fprintf(out, "  %s  %s  %s\n", r.MessageID, r.ChannelCID, due)
	}
}
