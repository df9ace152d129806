package chat

import (
	"strings"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/hooks"
	"github.com/soyeahso/querydesk/internal/protocol"
)

// Texts the backend repeats on reconnect that must not reach the log again.
const (
	ResumeSentinel = "Welcome back! Resuming your session."
	IntroSentinel  = "We were at: Hello! I am your Mixpanel AI assistant. Please provide your analytics query."
	ResultsIntro   = "Here are the results of your query:"
)

// Handle applies one inbound event. It is meant to be the connection's
// handler, so events arrive one at a time in transport order.
func (c *Conversation) Handle(ev protocol.Event) {
	var notices []notice

	c.mu.Lock()
	switch e := ev.(type) {
	case *protocol.StatusEvent:
		notices = c.onStatus(e)
	case *protocol.MessageEvent:
		notices = c.onMessage(e)
	case *protocol.ResultsEvent:
		notices = c.onResults(e)
	case *protocol.LearningEvent:
		notices = c.onLearning(e)
	default:
		c.log.Debug().Str("event", ev.EventName()).Msg("unhandled event")
	}
	c.mu.Unlock()

	c.publish(notices)
}

func (c *Conversation) onStatus(e *protocol.StatusEvent) []notice {
	c.status = *e
	c.tracker.Observe(e.Stage())
	c.state = nextState(c.state, e.Status)

	editable := 0
	if e.Status == domain.StatusWaitingForInput {
		c.interruption = string(e.CurrentInterruption)
		editable = c.msgs.MarkEditable(domain.Message.Anchored)
	}

	return []notice{{hooks.EventStatusChanged, map[string]any{
		"status":       e.Status,
		"stage":        c.tracker.Stage(),
		"state":        c.state,
		"interruption": c.interruption,
		"final":        c.tracker.Final(),
		"editable":     editable,
	}}}
}

func (c *Conversation) onMessage(e *protocol.MessageEvent) []notice {
	if e.Message == ResumeSentinel {
		c.log.Debug().Msg("suppressing resume banner")
		return nil
	}

	var attachments []domain.Attachment
	for _, p := range e.Plots {
		attachments = append(attachments, domain.Attachment{
			Type:    domain.AttachmentImage,
			URL:     p.DataURL(),
			Caption: p.Filename,
		})
	}

	id := e.MessageID
	if id == "" {
		id = domain.NewMessageID()
	}
	msg := domain.Message{
		ID:             id,
		Role:           domain.RoleAssistant,
		Content:        e.Message,
		Timestamp:      c.clock.FormatInstant(e.Timestamp),
		Node:           string(e.Node),
		Attachments:    attachments,
		EChartsOptions: e.EChartsOptions,
		Summary:        e.Summary,
		IsMini:         e.IsMini,
		IsSystem:       e.IsSystem,
		IsInterrupt:    e.IsInterrupt,
	}
	c.msgs.Append(msg)
	return []notice{{hooks.EventMessageAppended, map[string]any{"message": msg}}}
}

func (c *Conversation) onResults(e *protocol.ResultsEvent) []notice {
	if len(e.Results) == 0 {
		return nil
	}

	attachments := make([]domain.Attachment, 0, len(e.Results))
	for _, r := range e.Results {
		a := domain.Attachment{Type: domain.ParseAttachmentType(r.Type), Caption: r.Title}
		if a.Type == domain.AttachmentImage {
			a.URL = r.DataString()
		} else {
			a.Data = r.DataString()
		}
		attachments = append(attachments, a)
	}

	msg := domain.Message{
		ID:          domain.NewMessageID(),
		Role:        domain.RoleAssistant,
		Content:     ResultsIntro,
		Timestamp:   c.clock.FormatNow(),
		Attachments: attachments,
	}
	if strings.TrimSpace(msg.Content) == IntroSentinel {
		return nil
	}
	c.msgs.Append(msg)
	return []notice{{hooks.EventMessageAppended, map[string]any{"message": msg}}}
}

// onLearning moves every message stamped with the event's timestamp forward
// in the feedback lifecycle. States never move backwards.
func (c *Conversation) onLearning(e *protocol.LearningEvent) []notice {
	next := domain.LearningPending
	if e.Name == protocol.EventLearningGenerated {
		next = domain.LearningLearned
	}

	var notices []notice
	for _, m := range c.msgs.Snapshot() {
		if m.Timestamp != e.Timestamp {
			continue
		}
		if c.learning[m.ID] == domain.LearningLearned {
			continue
		}
		c.learning[m.ID] = next
		notices = append(notices, notice{hooks.EventLearningUpdated, map[string]any{
			"messageId":  m.ID,
			"learningId": e.LearningID,
			"state":      next,
		}})
	}
	return notices
}
