package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/soyeahso/querydesk/internal/chat"
	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/hooks"
	"github.com/soyeahso/querydesk/internal/progress"
)

// renderer prints conversation changes as they are published.
type renderer struct {
	mu   sync.Mutex
	out  io.Writer
	conv *chat.Conversation

	stage string
}

func newRenderer(out io.Writer, conv *chat.Conversation) *renderer {
	return &renderer{out: out, conv: conv}
}

// handle is a hooks.Handler.
func (r *renderer) handle(_ context.Context, p hooks.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch p.Event {
	case hooks.EventMessageAppended:
		if m, ok := p.Data["message"].(domain.Message); ok {
			writeMessage(r.out, m)
		}
	case hooks.EventLogReset:
		fmt.Fprintf(r.out, "-- thread %v: %v message(s) --\n", p.Data["threadId"], p.Data["count"])
		for _, m := range r.conv.Messages() {
			writeMessage(r.out, m)
		}
	case hooks.EventLogTruncated:
		if ids, ok := p.Data["discarded"].([]string); ok && len(ids) > 0 {
			fmt.Fprintf(r.out, "-- edited %v, dropped %d message(s) --\n", p.Data["messageId"], len(ids))
		}
	case hooks.EventStatusChanged:
		r.writeStatus(p.Data)
	case hooks.EventLearningUpdated:
		fmt.Fprintf(r.out, "-- feedback on %v: %v --\n", p.Data["messageId"], p.Data["state"])
	case hooks.EventThreadBound:
		fmt.Fprintf(r.out, "-- bound to thread %q on %v --\n", p.Data["threadId"], p.Data["platform"])
	}
	return nil
}

func (r *renderer) writeStatus(data map[string]any) {
	stage, _ := data["stage"].(string)
	if stage != "" && stage != r.stage {
		r.stage = stage
		fmt.Fprintf(r.out, "   … %s [%s]\n", stage, activeGroup(r.conv.Progress()))
	}
	if node, _ := data["interruption"].(string); node != "" {
		fmt.Fprintf(r.out, "   ? waiting for input at %s\n", node)
	}
	if final, _ := data["final"].(bool); final {
		fmt.Fprintln(r.out, "   ✓ done")
	}
}

func activeGroup(steps []progress.Step) string {
	for _, s := range steps {
		if s.Status == progress.StepCurrent {
			return s.Label
		}
	}
	return progress.Output.String()
}

func writeMessage(w io.Writer, m domain.Message) {
	who := "you"
	if m.Role == domain.RoleAssistant {
		who = "bot"
	}
	flags := ""
	if m.CanEdit {
		flags = " (editable)"
	}
	fmt.Fprintf(w, "[%s] %s %s%s\n", m.Timestamp, who, m.ID, flags)
	if m.Content != "" {
		for _, line := range strings.Split(m.Content, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	for _, a := range m.Attachments {
		fmt.Fprintf(w, "    [%s] %s\n", a.Type, attachmentSummary(a))
	}
	if len(m.EChartsOptions) > 0 {
		fmt.Fprintln(w, "    [chart options]")
	}
}

func attachmentSummary(a domain.Attachment) string {
	s := a.URL
	if s == "" {
		s = a.Data
	}
	if len(s) > 60 {
		s = s[:60] + "…"
	}
	return s
}

func writeProgress(w io.Writer, steps []progress.Step) {
	for _, s := range steps {
		mark := " "
		switch s.Status {
		case progress.StepCompleted:
			mark = "✓"
		case progress.StepCurrent:
			mark = "›"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, s.Label)
	}
}

// writeStatus prints the lifecycle state, the sticky stage and the progress
// rows. The stage line and the rows both come from the tracker.
func writeStatus(w io.Writer, conv *chat.Conversation) {
	fmt.Fprintf(w, "state %s, stage %s\n", conv.State(), conv.Stage())
	writeProgress(w, conv.Progress())
}
