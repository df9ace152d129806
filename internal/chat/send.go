package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/hooks"
	"github.com/soyeahso/querydesk/internal/protocol"
)

// SendMessage appends text as a user message and sends it to the pipeline.
// The message is shown immediately; the server's reply arrives as events.
func (c *Conversation) SendMessage(text string) (domain.Message, error) {
	return c.send(text, "")
}

// SendJump is SendMessage with a request to resume from node jumpTo.
func (c *Conversation) SendJump(text, jumpTo string) (domain.Message, error) {
	return c.send(text, jumpTo)
}

func (c *Conversation) send(text, jumpTo string) (domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	em := c.emitter
	if em == nil {
		c.mu.Unlock()
		return domain.Message{}, ErrNotConnected
	}

	msg := domain.Message{
		ID:        domain.NewMessageID(),
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: c.clock.FormatNow(),
		Node:      c.interruption,
	}
	c.msgs.Append(msg)
	out := protocol.UserMessage{
		Message:   text,
		UserID:    c.binding.UserID,
		ThreadID:  c.binding.ThreadID,
		MessageID: msg.ID,
		JumpTo:    jumpTo,
	}
	c.interruption = ""
	c.state = afterSend(c.state)
	state := c.state
	c.mu.Unlock()

	c.publish([]notice{
		{hooks.EventMessageAppended, map[string]any{"message": msg}},
		{hooks.EventStatusChanged, map[string]any{"state": state, "interruption": ""}},
	})

	if err := em.Emit(protocol.EventUserMessage, out); err != nil {
		c.log.Warn().Err(err).Str("messageId", msg.ID).Msg("send failed")
		return msg, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// CleanupTask deletes, in the background, the messages an edit superseded.
// Its outcome never feeds back into the conversation.
type CleanupTask struct {
	IDs  []string
	done chan struct{}
	err  error
}

// Done is closed when the deletion request has finished.
func (t *CleanupTask) Done() <-chan struct{} { return t.done }

// Err returns the deletion error. Only valid after Done is closed.
func (t *CleanupTask) Err() error { return t.err }

// EditMessage rewrites user message id with content and asks the pipeline to
// resume from jumpTo. The log is truncated to the edited message first, then
// the superseded messages are deleted remotely by the returned task, which
// is nil when nothing followed the edited message. timestamp is the instant
// sent to the server; it is also used to stamp the replacement.
func (c *Conversation) EditMessage(id, content, jumpTo, timestamp string) (*CleanupTask, error) {
	c.mu.Lock()
	target, ok := c.msgs.Get(id)
	var err error
	switch {
	case !ok:
		err = ErrMessageNotFound
	case !target.Anchored():
		err = ErrNotEditable
	case strings.TrimSpace(content) == "":
		err = ErrEmptyMessage
	case jumpTo == "":
		err = ErrNoJumpTarget
	case c.binding.ThreadID == "":
		err = ErrNoThread
	case c.emitter == nil:
		err = ErrNotConnected
	}
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("edit %s: %w", id, err)
	}

	// Step 1: commit the local truncation.
	superseded := c.msgs.IDsAfter(id)
	replacement := domain.Message{
		ID:        id,
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: c.clock.FormatInstant(timestamp),
		Node:      jumpTo,
	}
	discarded := c.msgs.ReplaceSuffixFrom(id, replacement)
	for _, d := range discarded {
		delete(c.learning, d)
	}

	out := protocol.UserMessage{
		Message:   content,
		UserID:    c.binding.UserID,
		ThreadID:  c.binding.ThreadID,
		MessageID: id,
		JumpTo:    jumpTo,
		Timestamp: timestamp,
	}
	em := c.emitter
	c.interruption = ""
	c.state = afterSend(c.state)
	state := c.state
	c.mu.Unlock()

	c.publish([]notice{
		{hooks.EventLogTruncated, map[string]any{"messageId": id, "discarded": discarded}},
		{hooks.EventMessageAppended, map[string]any{"message": replacement}},
		{hooks.EventStatusChanged, map[string]any{"state": state, "interruption": ""}},
	})

	// Step 2: dispatch the remote cleanup.
	task := c.startCleanup(superseded)

	// Step 3: ask the pipeline to replay from the jump target.
	if err := em.Emit(protocol.EventUserMessage, out); err != nil {
		c.log.Warn().Err(err).Str("messageId", id).Msg("edit send failed")
		return task, fmt.Errorf("edit %s: %w", id, err)
	}
	return task, nil
}

func (c *Conversation) startCleanup(ids []string) *CleanupTask {
	if len(ids) == 0 || c.cleaner == nil {
		return nil
	}

	task := &CleanupTask{IDs: ids, done: make(chan struct{})}
	go func() {
		defer close(task.done)
		ctx, cancel := context.WithTimeout(context.Background(), c.cleanupTimeout)
		defer cancel()
		if err := c.cleaner.DeleteMessages(ctx, ids); err != nil {
			task.err = err
			c.log.Warn().Err(err).Int("count", len(ids)).Msg("cleanup of superseded messages failed")
			return
		}
		c.log.Debug().Int("count", len(ids)).Msg("superseded messages deleted")
	}()
	return task
}
