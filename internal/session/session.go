// Package session ties one user's pipeline connection, conversation and
// remote history together.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/querydesk/internal/api"
	"github.com/soyeahso/querydesk/internal/chat"
	"github.com/soyeahso/querydesk/internal/conn"
	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/hooks"
	"github.com/soyeahso/querydesk/internal/logging"
	"github.com/soyeahso/querydesk/internal/protocol"
	"github.com/soyeahso/querydesk/internal/store"
	"golang.org/x/sync/singleflight"
)

// Session binds a Context to a thread. Open, SetPlatform, NewThread and
// EnsureThread may be called concurrently.
type Session struct {
	user     *Context
	endpoint string
	api      *api.Client
	mgr      *conn.Manager
	conv     *chat.Conversation
	hooks    *hooks.Manager
	state    *store.StateStore
	cache    *store.TranscriptStore
	log      *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once
	group  singleflight.Group

	// bindMu serializes rebinding so the conversation and the manager
	// always agree on the binding.
	bindMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithStateStore persists the active thread and platform.
func WithStateStore(st *store.StateStore) Option {
	return func(s *Session) { s.state = st }
}

// WithTranscriptCache saves the message log of each thread when it is left.
func WithTranscriptCache(ts *store.TranscriptStore) Option {
	return func(s *Session) { s.cache = ts }
}

// New creates an unbound session. Connections it opens live until ctx is
// cancelled or Close is called.
func New(ctx context.Context, user *Context, endpoint string, client *api.Client, mgr *conn.Manager,
	conv *chat.Conversation, hm *hooks.Manager, log *logging.Logger, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		user:     user,
		endpoint: endpoint,
		api:      client,
		mgr:      mgr,
		conv:     conv,
		hooks:    hm,
		log:      log.Sub("session"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// User returns the identity the session acts for.
func (s *Session) User() *Context { return s.user }

// Conversation returns the conversation of the session.
func (s *Session) Conversation() *chat.Conversation { return s.conv }

// ThreadID returns the bound thread, or "" when none is bound.
func (s *Session) ThreadID() string { return s.conv.Binding().ThreadID }

// Platform returns the platform new bindings use.
func (s *Session) Platform() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Platform
}

// Open binds the session to threadID and backfills its history. An empty
// threadID connects without a thread. Binding the current tuple again does
// nothing. The session stays bound when the backfill fails; the error is
// returned so the caller can report it.
func (s *Session) Open(ctx context.Context, threadID string) error {
	return s.bind(ctx, threadID, s.Platform())
}

// SetPlatform switches platform and rebinds the current thread.
func (s *Session) SetPlatform(ctx context.Context, platform string) error {
	s.mu.Lock()
	s.user.Platform = platform
	s.mu.Unlock()
	s.persist(store.KeyPlatform, platform)
	return s.bind(ctx, s.ThreadID(), platform)
}

// NewThread registers a fresh thread with the backend and binds to it.
func (s *Session) NewThread(ctx context.Context) (string, error) {
	id := domain.NewThreadID()
	platform := s.Platform()
	if err := s.api.CreateThread(ctx, id, platform); err != nil {
		return "", err
	}
	if err := s.bind(ctx, id, platform); err != nil {
		return id, err
	}
	return id, nil
}

// EnsureThread returns the bound thread, creating one when there is none.
// Concurrent callers share one creation request and one connection.
func (s *Session) EnsureThread(ctx context.Context) (string, error) {
	if id := s.ThreadID(); id != "" {
		return id, nil
	}
	v, err, _ := s.group.Do("ensure-thread", func() (any, error) {
		if id := s.ThreadID(); id != "" {
			return id, nil
		}
		return s.NewThread(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) bind(ctx context.Context, threadID, platform string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return conn.ErrClosed
	}
	s.mu.Unlock()

	if err := s.rebind(threadID, platform); err != nil {
		return err
	}

	if threadID == "" {
		return nil
	}
	records, err := s.api.ThreadMessages(ctx, threadID)
	if err != nil {
		s.log.Warn().Err(err).Str("threadId", threadID).Msg("history backfill failed")
		return err
	}
	s.conv.LoadHistory(threadID, records)
	return nil
}

func (s *Session) rebind(threadID, platform string) error {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()

	b := domain.Binding{UserID: s.user.UserID, ThreadID: threadID, Platform: platform, Endpoint: s.endpoint}
	if cur := s.mgr.Current(); cur != nil && cur.Binding() == b && cur.Err() == nil && s.conv.Binding() == b {
		return nil
	}

	s.start.Do(func() {
		s.emit(hooks.EventSessionStart, map[string]any{"userId": s.user.UserID, "platform": platform})
	})

	prev := s.conv.Binding()
	if prev.ThreadID != "" && prev.ThreadID != threadID {
		s.saveTranscript(prev)
	}

	// Events from a superseded connection are dropped here, since the
	// conversation is rebound before the old connection is closed.
	s.conv.Bind(b)
	c, err := s.mgr.Bind(s.ctx, b, func(ev protocol.Event) {
		if s.conv.Binding() == b {
			s.conv.Handle(ev)
		}
	})
	if err != nil {
		return fmt.Errorf("binding %s: %w", b, err)
	}
	s.conv.Attach(c)
	if threadID != "" {
		s.persist(store.KeyThreadID, threadID)
	}
	s.log.Info().Str("threadId", threadID).Str("platform", platform).Msg("thread bound")
	s.emit(hooks.EventThreadBound, map[string]any{"threadId": threadID, "platform": platform})
	return nil
}

// WaitConnected blocks until the live connection has completed its first
// dial.
func (s *Session) WaitConnected(ctx context.Context) error {
	c := s.mgr.Current()
	if c == nil {
		return chat.ErrNotConnected
	}
	return c.WaitConnected(ctx)
}

// Close saves the transcript and closes the connection.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if b := s.conv.Binding(); b.ThreadID != "" {
		s.saveTranscript(b)
	}
	s.mgr.Close()
	s.cancel()
	s.emit(hooks.EventSessionEnd, map[string]any{"userId": s.user.UserID})
}

func (s *Session) saveTranscript(b domain.Binding) {
	if s.cache == nil {
		return
	}
	msgs := s.conv.Messages()
	if len(msgs) == 0 {
		return
	}
	if err := s.cache.Save(b.ThreadID, b.Platform, msgs); err != nil {
		s.log.Warn().Err(err).Str("threadId", b.ThreadID).Msg("saving transcript")
	}
}

func (s *Session) persist(key, value string) {
	if s.state == nil {
		return
	}
	if err := s.state.Set(key, value); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("saving local state")
	}
}

func (s *Session) emit(event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(s.ctx, event, data)
	}
}
