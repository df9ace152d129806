package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/session"
	"github.com/soyeahso/querydesk/internal/store"
	"github.com/spf13/cobra"
)

func newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List, create and delete threads",
	}

	cmd.AddCommand(newThreadsListCmd())
	cmd.AddCommand(newThreadsNewCmd())
	cmd.AddCommand(newThreadsDeleteCmd())
	return cmd
}

func newThreadsListCmd() *cobra.Command {
	var (
		filter  string
		grouped bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List threads, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			threads, err := newAPIClient().ListThreads(cmd.Context())
			if err != nil {
				return err
			}
			threads = domain.FilterThreads(threads, filter)
			clock := newClock()

			if !grouped {
				for _, t := range threads {
					printThread(clock, t)
				}
				return nil
			}

			groups := domain.GroupThreads(threads)
			for _, l1 := range sortedKeys(groups) {
				fmt.Printf("%s\n", l1)
				for _, l2 := range sortedKeys(groups[l1]) {
					fmt.Printf("  %s\n", l2)
					for _, t := range groups[l1][l2] {
						fmt.Print("  ")
						printThread(clock, t)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "only threads whose title contains this text")
	cmd.Flags().BoolVar(&grouped, "grouped", false, "group threads by category")

	return cmd
}

func printThread(clock *domain.Clock, t domain.Thread) {
	title := t.Title
	if title == "" {
		title = "(untitled)"
	}
	created := ""
	if ts := t.Created(); !ts.IsZero() {
		created = clock.Format(ts)
	}
	fmt.Printf("  %-40s %-8s %3d msgs  %s  %s\n", t.ThreadID, created, t.NumOfMsgs, t.StatusIndicator, title)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func newThreadsNewCmd() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a thread and make it the current one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openState()
			if err != nil {
				return err
			}
			defer db.Close()
			st := store.NewStateStore(db)

			if platform == "" {
				platform = st.GetOr(store.KeyPlatform, cfg.Server.Platform)
			}
			id := domain.NewThreadID()
			if err := newAPIClient().CreateThread(cmd.Context(), id, platform); err != nil {
				return err
			}
			if err := st.Set(store.KeyThreadID, id); err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "platform of the thread")
	return cmd
}

func newThreadsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openState()
			if err != nil {
				return err
			}
			defer db.Close()
			return deleteThread(cmd.Context(), db, args[0])
		},
	}
}

func deleteThread(ctx context.Context, db *store.DB, threadID string) error {
	st := store.NewStateStore(db)
	user, err := session.LoadContext(st, cfg.Server.Platform)
	if err != nil {
		return err
	}
	if err := newAPIClient().DeleteThread(ctx, threadID, user.UserID); err != nil {
		return err
	}
	if err := store.NewTranscriptStore(db).Delete(threadID); err != nil {
		log.Warn().Err(err).Str("threadId", threadID).Msg("dropping cached transcript")
	}
	if st.GetOr(store.KeyThreadID, "") == threadID {
		if err := st.Delete(store.KeyThreadID); err != nil {
			return err
		}
	}
	fmt.Printf("Deleted %s\n", threadID)
	return nil
}
