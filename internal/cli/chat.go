package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/querydesk/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errQuit = errors.New("quit")

func newChatCmd() *cobra.Command {
	var (
		threadID  string
		newThread bool
		platform  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation with the pipeline",
		Long: "Start an interactive conversation. Plain lines are sent as messages;\n" +
			"type /help for the slash commands.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			r := newRenderer(out, a.conv)
			a.hooks.Subscribe("cli-renderer", r.handle)

			if platform != "" {
				a.user.Platform = platform
			}
			fmt.Fprintf(out, "Hello %s. Platform %s.\n", a.user.FirstName(), a.user.Platform)

			switch {
			case newThread:
				if _, err := a.session.NewThread(ctx); err != nil {
					notice("%s", describeErr(err))
				}
			default:
				if threadID == "" {
					threadID = a.lastThread()
				}
				if err := a.session.Open(ctx, threadID); err != nil {
					notice("%s", describeErr(err))
				}
			}

			rp := &repl{sess: a.session, out: out}
			g, gctx := errgroup.WithContext(ctx)
			lines := make(chan string)

			// Reading stdin cannot be interrupted, so the reader is left
			// behind on exit instead of joining the group.
			go readLines(os.Stdin, lines)

			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case line, ok := <-lines:
						if !ok {
							return errQuit
						}
						if err := rp.exec(gctx, line); err != nil {
							if errors.Is(err, errQuit) {
								return err
							}
							notice("%s", describeErr(err))
						}
					}
				}
			})
			g.Go(func() error {
				<-gctx.Done()
				a.session.Close()
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread to open (default: the last one used)")
	cmd.Flags().BoolVar(&newThread, "new", false, "start a new thread")
	cmd.Flags().StringVar(&platform, "platform", "", "platform to chat on")

	return cmd
}

func readLines(r io.Reader, lines chan<- string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines <- sc.Text()
	}
	close(lines)
}

// command is one parsed REPL line.
type command struct {
	name string // "" for a plain message
	args []string
	text string // the remainder after the first argument, for /edit
}

func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{text: line}
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	c := command{name: strings.ToLower(name), args: strings.Fields(rest)}
	if _, text, ok := strings.Cut(rest, " "); ok {
		c.text = strings.TrimSpace(text)
	}
	return c
}

type repl struct {
	sess *session.Session
	out  io.Writer
}

const replHelp = `  <text>               send a message
  /edit <id> <text>    replace a message and replay from its step
  /remember <id>       send a message to the learning queue
  /messages            print the conversation
  /progress            print pipeline progress
  /new                 start a new thread
  /thread <id>         switch thread
  /platform <name>     switch platform
  /quit                leave`

func (r *repl) exec(ctx context.Context, line string) error {
	conv := r.sess.Conversation()
	c := parseCommand(line)

	switch c.name {
	case "":
		if c.text == "" {
			return nil
		}
		if _, err := r.sess.EnsureThread(ctx); err != nil {
			return err
		}
		_, err := conv.SendMessage(c.text)
		return err

	case "edit":
		if len(c.args) < 2 {
			return errors.New("usage: /edit <id> <text>")
		}
		id := c.args[0]
		m, ok := conv.Message(id)
		if !ok {
			return fmt.Errorf("no message %s", id)
		}
		task, err := conv.EditMessage(id, c.text, m.Node, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		if task != nil {
			fmt.Fprintf(r.out, "-- removing %d later message(s) --\n", len(task.IDs))
		}
		return nil

	case "remember":
		if len(c.args) != 1 {
			return errors.New("usage: /remember <id>")
		}
		if _, err := conv.Remember(ctx, c.args[0]); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "-- feedback sent --")
		return nil

	case "messages":
		for _, m := range conv.Messages() {
			writeMessage(r.out, m)
		}
		return nil

	case "progress":
		writeStatus(r.out, conv)
		return nil

	case "new":
		_, err := r.sess.NewThread(ctx)
		return err

	case "thread":
		if len(c.args) != 1 {
			return errors.New("usage: /thread <id>")
		}
		return r.sess.Open(ctx, c.args[0])

	case "platform":
		if len(c.args) != 1 {
			return errors.New("usage: /platform <name>")
		}
		return r.sess.SetPlatform(ctx, c.args[0])

	case "help":
		fmt.Fprintln(r.out, replHelp)
		return nil

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command /%s (try /help)", c.name)
	}
}
