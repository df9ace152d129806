package cli

import (
	"fmt"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		cached bool
		search string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history [thread-id]",
		Short: "Print the messages of a thread",
		Long: "Print the messages of a thread (default: the current one). With --cached the\n" +
			"local copy saved by the last chat session is used; --search queries every\n" +
			"cached transcript.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openState()
			if err != nil {
				return err
			}
			defer db.Close()
			transcripts := store.NewTranscriptStore(db)
			out := cmd.OutOrStdout()

			if search != "" {
				hits, err := transcripts.Search(search, limit)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Fprintln(out, "No matches.")
				}
				for _, h := range hits {
					fmt.Fprintf(out, "%s %s [%s] %s: %s\n", h.ThreadID, h.MessageID, h.Timestamp, h.Role, h.Content)
				}
				return nil
			}

			threadID := store.NewStateStore(db).GetOr(store.KeyThreadID, "")
			if len(args) == 1 {
				threadID = args[0]
			}
			if threadID == "" && !cached {
				return fmt.Errorf("no thread given and no current thread")
			}

			if cached {
				if threadID == "" {
					infos, err := transcripts.List()
					if err != nil {
						return err
					}
					for _, info := range infos {
						fmt.Fprintf(out, "%-40s %-8s %3d msgs  saved %s\n",
							info.ThreadID, info.Platform, info.MessageCount, info.UpdatedAt.Format("2006-01-02 15:04"))
					}
					return nil
				}
				msgs, err := transcripts.Load(threadID)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					writeMessage(out, m)
				}
				return nil
			}

			records, err := newAPIClient().ThreadMessages(cmd.Context(), threadID)
			if err != nil {
				return err
			}
			clock := newClock()
			for _, r := range records {
				writeMessage(out, domain.Message{
					ID:             r.MessageID,
					Role:           domain.RoleFromBy(r.By),
					Content:        r.MessageContent,
					Timestamp:      clock.FormatInstant(r.Timestamp),
					EChartsOptions: r.EChartsOptions,
				})
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "read the local transcript cache")
	cmd.Flags().StringVar(&search, "search", "", "full-text search the cached transcripts")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum search results")

	return cmd
}
