// Package chat owns the message log of one session and reconciles it with
// the pipeline: optimistic sends and edits go out, server events come in.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/hooks"
	"github.com/soyeahso/querydesk/internal/logging"
	"github.com/soyeahso/querydesk/internal/messagelog"
	"github.com/soyeahso/querydesk/internal/progress"
	"github.com/soyeahso/querydesk/internal/protocol"
)

var (
	ErrEmptyMessage       = errors.New("message is empty")
	ErrMessageNotFound    = errors.New("message not found")
	ErrNotEditable        = errors.New("message is not editable")
	ErrNoJumpTarget       = errors.New("jump target is required")
	ErrNoThread           = errors.New("no active thread")
	ErrNotConnected       = errors.New("not connected")
	ErrAlreadyRemembered  = errors.New("feedback already sent for message")
	ErrNotLearningMessage = errors.New("only user messages can be remembered")
)

// Emitter sends events on the live connection. *conn.Conn implements it.
type Emitter interface {
	Emit(event string, payload any) error
	EmitWithAck(ctx context.Context, event string, payload any) (json.RawMessage, error)
}

// Cleaner deletes superseded messages from remote storage. *api.Client
// implements it.
type Cleaner interface {
	DeleteMessages(ctx context.Context, ids []string) error
}

const defaultCleanupTimeout = 30 * time.Second

// Conversation is the façade the UI talks to. All mutations are serialised
// behind one mutex; hook notifications are published after it is released,
// so subscribers may read back from the conversation.
type Conversation struct {
	hooks          *hooks.Manager
	log            *logging.Logger
	clock          *domain.Clock
	cleaner        Cleaner
	cleanupTimeout time.Duration

	mu           sync.Mutex
	msgs         *messagelog.Log
	tracker      *progress.Tracker
	binding      domain.Binding
	emitter      Emitter
	interruption string
	status       protocol.StatusEvent
	state        State
	learning     map[string]domain.LearningState
	remembering  map[string]bool
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithClock sets the clock used to stamp messages.
func WithClock(c *domain.Clock) Option {
	return func(cv *Conversation) { cv.clock = c }
}

// WithCleaner sets the remote store used to delete messages superseded by
// an edit.
func WithCleaner(cl Cleaner) Option {
	return func(cv *Conversation) { cv.cleaner = cl }
}

// WithCleanupTimeout bounds each cleanup request.
func WithCleanupTimeout(d time.Duration) Option {
	return func(cv *Conversation) { cv.cleanupTimeout = d }
}

// New creates an unbound conversation.
func New(hm *hooks.Manager, log *logging.Logger, opts ...Option) *Conversation {
	c := &Conversation{
		hooks:          hm,
		log:            log.Sub("chat"),
		clock:          domain.NewClock("UTC", ""),
		cleanupTimeout: defaultCleanupTimeout,
		msgs:           messagelog.New(),
		tracker:        progress.NewTracker(),
		state:          StateUninitialized,
		learning:       make(map[string]domain.LearningState),
		remembering:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type notice struct {
	event string
	data  map[string]any
}

func (c *Conversation) publish(notices []notice) {
	if c.hooks == nil {
		return
	}
	for _, n := range notices {
		c.hooks.Emit(context.Background(), n.event, n.data)
	}
}

// Bind points the conversation at a new binding. The emitter is detached
// until Attach; progress, status and the pending interruption are reset.
// The log is cleared when the thread changes.
func (c *Conversation) Bind(b domain.Binding) {
	c.mu.Lock()
	threadChanged := b.ThreadID != c.binding.ThreadID
	c.binding = b
	c.emitter = nil
	c.interruption = ""
	c.status = protocol.StatusEvent{}
	c.state = StateUninitialized
	c.tracker.Reset()

	var notices []notice
	if threadChanged {
		c.msgs.ResetFrom(nil)
		clear(c.learning)
		clear(c.remembering)
		notices = append(notices, notice{hooks.EventLogReset, map[string]any{"threadId": b.ThreadID, "count": 0}})
	}
	c.mu.Unlock()

	c.publish(notices)
}

// Attach sets the emitter used for outbound events.
func (c *Conversation) Attach(em Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitter = em
}

// Binding returns the current binding.
func (c *Conversation) Binding() domain.Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binding
}

// Messages returns a snapshot of the log.
func (c *Conversation) Messages() []domain.Message {
	return c.msgs.Snapshot()
}

// Message returns one message by id.
func (c *Conversation) Message(id string) (domain.Message, bool) {
	return c.msgs.Get(id)
}

// Interruption returns the node the pipeline is waiting on, if any.
func (c *Conversation) Interruption() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interruption
}

// Status returns the last server status.
func (c *Conversation) Status() protocol.StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State returns the lifecycle state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns the current progress rows.
func (c *Conversation) Progress() []progress.Step {
	return c.tracker.Steps()
}

// Stage returns the sticky pipeline stage the progress rows are derived
// from.
func (c *Conversation) Stage() string {
	return c.tracker.Stage()
}

// Final reports whether the pipeline has reached a terminal stage.
func (c *Conversation) Final() bool {
	return c.tracker.Final()
}

// LearningState returns the feedback state of a message.
func (c *Conversation) LearningState(id string) domain.LearningState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.learning[id]; ok {
		return st
	}
	return domain.LearningIdle
}

// LoadHistory replaces the log with stored history for threadID. History
// for a thread that is no longer bound is discarded and false is returned.
func (c *Conversation) LoadHistory(threadID string, records []domain.HistoryRecord) bool {
	msgs := make([]domain.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, domain.Message{
			ID:             r.MessageID,
			Role:           domain.RoleFromBy(r.By),
			Content:        r.MessageContent,
			Timestamp:      c.clock.FormatInstant(r.Timestamp),
			Summary:        r.Summary,
			IsMini:         r.IsMini,
			EChartsOptions: r.EChartsOptions,
		})
	}

	c.mu.Lock()
	if threadID != c.binding.ThreadID {
		c.mu.Unlock()
		c.log.Debug().Str("threadId", threadID).Msg("discarding history for inactive thread")
		return false
	}
	c.msgs.ResetFrom(msgs)
	clear(c.learning)
	c.mu.Unlock()

	c.publish([]notice{{hooks.EventLogReset, map[string]any{"threadId": threadID, "count": len(msgs)}}})
	return true
}
