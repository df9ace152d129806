package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/hooks"
	"github.com/spf13/cobra"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send and manage messages",
	}

	cmd.AddCommand(newMessageSendCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		threadID string
		wait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message and print the replies until the pipeline pauses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			w := newReplyWaiter(cmd.OutOrStdout())
			a.hooks.Subscribe("cli-message", w.handle, hooks.EventMessageAppended, hooks.EventStatusChanged)

			if threadID != "" {
				if err := a.session.Open(ctx, threadID); err != nil {
					notice("%s", describeErr(err))
				}
			}
			id, err := a.session.EnsureThread(ctx)
			if err != nil {
				return err
			}
			w.arm()
			if _, err := a.conv.SendMessage(text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[thread=%s]\n", id)

			select {
			case <-w.done:
			case <-time.After(wait):
				return fmt.Errorf("no reply within %s", wait)
			case <-ctx.Done():
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread to send to (default: a new thread)")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Minute, "how long to wait for the pipeline")

	return cmd
}

// replyWaiter prints assistant replies and signals once the pipeline pauses
// after replying to the sent message. Statuses that arrive before the first
// reply, such as the greeting asking for the initial query, are ignored.
type replyWaiter struct {
	out  io.Writer
	done chan struct{}

	mu      sync.Mutex
	armed   bool
	replied bool
	fired   bool
}

func newReplyWaiter(out io.Writer) *replyWaiter {
	return &replyWaiter{out: out, done: make(chan struct{})}
}

func (w *replyWaiter) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = true
}

// handle is a hooks.Handler.
func (w *replyWaiter) handle(_ context.Context, p hooks.Payload) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if m, ok := p.Data["message"].(domain.Message); ok && m.Role == domain.RoleAssistant {
		writeMessage(w.out, m)
		if w.armed {
			w.replied = true
		}
	}
	if !w.replied || w.fired {
		return nil
	}

	st, _ := p.Data["status"].(domain.Status)
	final, _ := p.Data["final"].(bool)
	if final || st == domain.StatusCompleted || st == domain.StatusWaitingForInput {
		w.fired = true
		close(w.done)
	}
	return nil
}
