package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/spf13/cobra"
)

func newLearningCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Review feedback queued for the pipeline to learn from",
	}

	cmd.AddCommand(newLearningListCmd())
	cmd.AddCommand(newLearningApproveCmd())
	cmd.AddCommand(newLearningDenyCmd())
	return cmd
}

func newLearningListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued feedback by kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := newAPIClient().LearningQueue(cmd.Context())
			if err != nil {
				return err
			}
			grouped := domain.GroupLearning(items)
			for _, ev := range domain.LearningEvents {
				fmt.Printf("%s (%d)\n", ev, len(grouped[ev]))
				for _, item := range grouped[ev] {
					fmt.Printf("  %-24s %-8s %s\n", item.LearningID, item.Status, truncate(item.Preview(), 80))
				}
			}
			return nil
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func findLearningItem(ctx context.Context, id string) (domain.LearningItem, error) {
	items, err := newAPIClient().LearningQueue(ctx)
	if err != nil {
		return domain.LearningItem{}, err
	}
	for _, item := range items {
		if item.LearningID == id {
			return item, nil
		}
	}
	return domain.LearningItem{}, fmt.Errorf("no queued item %q", id)
}

func newLearningApproveCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "approve <learning-id>",
		Short: "Approve a queued item so the pipeline learns it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			item, err := findLearningItem(ctx, args[0])
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Open(ctx, ""); err != nil {
				return err
			}
			wctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := a.session.WaitConnected(wctx); err != nil {
				return fmt.Errorf("connecting: %w", err)
			}
			if err := a.conv.ApproveLearning(item); err != nil {
				return err
			}
			fmt.Printf("Approved %s (%s)\n", item.LearningID, item.EventType)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the connection")
	return cmd
}

func newLearningDenyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deny <learning-id>",
		Short: "Remove an item from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().DenyLearning(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Denied %s\n", args[0])
			return nil
		},
	}
}
