package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/protocol"
)

// Nodes whose answers feed a specialised learning event.
const (
	nodePythonVerification = "ask_python_result_verification"
	nodeJQLVerification    = "ask_for_jql_verification"
)

// Remember sends the user's answer in message id back to the pipeline as
// feedback to learn from, and waits for the server to acknowledge it. Each
// message can be remembered once; progress is then reported by
// Learning_queued and Learning_generated events.
func (c *Conversation) Remember(ctx context.Context, id string) (json.RawMessage, error) {
	c.mu.Lock()
	idx := c.msgs.Index(id)
	if idx < 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("remember %s: %w", id, ErrMessageNotFound)
	}
	if c.remembering[id] || c.learning[id] != "" {
		c.mu.Unlock()
		return nil, fmt.Errorf("remember %s: %w", id, ErrAlreadyRemembered)
	}
	if c.emitter == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("remember %s: %w", id, ErrNotConnected)
	}

	snap := c.msgs.Snapshot()
	msg := snap[idx]
	if !msg.IsUser() {
		c.mu.Unlock()
		return nil, fmt.Errorf("remember %s: %w", id, ErrNotLearningMessage)
	}

	event, payload := feedbackFor(snap, idx, c.binding)
	em := c.emitter
	c.remembering[id] = true
	c.mu.Unlock()

	ack, err := em.EmitWithAck(ctx, event, payload)

	c.mu.Lock()
	delete(c.remembering, id)
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Str("event", event).Str("messageId", id).Msg("feedback not acknowledged")
		return nil, fmt.Errorf("remember %s: %w", id, err)
	}
	c.log.Info().Str("event", event).Str("messageId", id).Msg("feedback sent")
	return ack, nil
}

// feedbackFor picks the learning event for msgs[idx] and builds its payload.
func feedbackFor(msgs []domain.Message, idx int, b domain.Binding) (string, protocol.LearningFeedback) {
	msg := msgs[idx]
	payload := protocol.LearningFeedback{
		Timestamp: msg.Timestamp,
		MessageID: msg.ID,
		ThreadID:  b.ThreadID,
		Platform:  b.Platform,
	}

	switch msg.Node {
	case nodePythonVerification:
		payload.Feedback = msg.Content
		return domain.LearningPython, payload
	case nodeJQLVerification:
		payload.Conversation = excerpt(msgs, idx)
		return domain.LearningJQL, payload
	default:
		payload.Conversation = excerpt(msgs, idx)
		return domain.LearningGenerate, payload
	}
}

// excerpt is the opening question, the assistant turn just before msgs[idx]
// if there is one, and msgs[idx] itself.
func excerpt(msgs []domain.Message, idx int) []domain.Turn {
	var turns []domain.Turn
	for _, m := range msgs {
		if m.IsUser() {
			turns = append(turns, domain.Turn{Role: "human", Content: m.Content})
			break
		}
	}
	if idx > 0 && msgs[idx-1].Role == domain.RoleAssistant {
		turns = append(turns, domain.Turn{Role: "ai", Content: msgs[idx-1].Content})
	}
	return append(turns, domain.Turn{Role: "human", Content: msgs[idx].Content})
}

// ApproveLearning re-sends a queued learning item with admin approval.
func (c *Conversation) ApproveLearning(item domain.LearningItem) error {
	c.mu.Lock()
	em := c.emitter
	c.mu.Unlock()
	if em == nil {
		return ErrNotConnected
	}

	payload := protocol.LearningFeedback{
		Timestamp:       item.Timestamp,
		MessageID:       item.MessageID,
		ThreadID:        item.ThreadID,
		IsAdminApproved: true,
		LearningID:      item.LearningID,
	}
	if item.EventType == domain.LearningPython {
		payload.Feedback = item.Feedback
	} else {
		payload.Conversation = item.Conversation
	}

	if err := em.Emit(item.EventType, payload); err != nil {
		return fmt.Errorf("approve %s: %w", item.LearningID, err)
	}
	return nil
}
