package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/querydesk/internal/api"
	"github.com/soyeahso/querydesk/internal/chat"
	"github.com/soyeahso/querydesk/internal/config"
	"github.com/soyeahso/querydesk/internal/conn"
	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/hooks"
	"github.com/soyeahso/querydesk/internal/logging"
	"github.com/soyeahso/querydesk/internal/protocol"
	"github.com/soyeahso/querydesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accepted struct {
	ws    *websocket.Conn
	query url.Values
}

// backend fakes both the REST side-channel and the pipeline socket.
type backend struct {
	*httptest.Server
	creates    atomic.Int32
	dials      atomic.Int32
	createFail atomic.Bool
	conns      chan accepted

	mu      sync.Mutex
	history map[string][]domain.HistoryRecord
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		conns:   make(chan accepted, 16),
		history: make(map[string][]domain.HistoryRecord),
	}
	var upgrader websocket.Upgrader
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		b.creates.Add(1)
		time.Sleep(50 * time.Millisecond)
		if b.createFail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET /messages/{thread}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		records := b.history[r.PathValue("thread")]
		b.mu.Unlock()
		if records == nil {
			records = []domain.HistoryRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		b.dials.Add(1)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- accepted{ws: ws, query: r.URL.Query()}
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *backend) setHistory(thread string, records ...domain.HistoryRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[thread] = records
}

func (b *backend) accept(t *testing.T) (*websocket.Conn, url.Values) {
	t.Helper()
	select {
	case a := <-b.conns:
		t.Cleanup(func() { a.ws.Close() })
		return a.ws, a.query
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil, nil
	}
}

type fixture struct {
	backend *backend
	session *Session
	state   *store.StateStore
	cache   *store.TranscriptStore

	mu     sync.Mutex
	events []string
}

func (f *fixture) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.New(nil, "silent")
	be := newBackend(t)

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		backend: be,
		state:   store.NewStateStore(db),
		cache:   store.NewTranscriptStore(db),
	}

	hm := hooks.NewManager(log)
	hm.Subscribe("test", func(_ context.Context, p hooks.Payload) error {
		f.mu.Lock()
		f.events = append(f.events, p.Event)
		f.mu.Unlock()
		return nil
	})

	client := api.New(be.URL, config.HTTPConfig{Timeout: 5 * time.Second}, log,
		api.WithRetryWait(time.Millisecond, 5*time.Millisecond))
	mgr := conn.NewManager(config.TransportConfig{
		Timeout:          5 * time.Second,
		HandshakeTimeout: time.Second,
		Reconnect:        false,
		ReconnectDelay:   10 * time.Millisecond,
		OutboxSize:       8,
	}, log)
	conv := chat.New(hm, log, chat.WithCleaner(client))

	user := &Context{UserID: "u1", Name: "Asha Rao", Platform: "terra"}
	endpoint := "ws" + strings.TrimPrefix(be.URL, "http") + "/ws"
	f.session = New(context.Background(), user, endpoint, client, mgr, conv, hm, log,
		WithStateStore(f.state), WithTranscriptCache(f.cache))
	t.Cleanup(f.session.Close)
	return f
}

func TestOpenBindsAndBackfills(t *testing.T) {
	f := newFixture(t)
	f.backend.setHistory("t1",
		domain.HistoryRecord{MessageID: "h1", By: "user", MessageContent: "weekly retention", Timestamp: "2026-03-01T10:00:00Z"},
		domain.HistoryRecord{MessageID: "h2", By: "ai", MessageContent: "Here you go", Timestamp: "2026-03-01T10:00:05Z"},
	)

	require.NoError(t, f.session.Open(context.Background(), "t1"))
	_, q := f.backend.accept(t)

	assert.Equal(t, "u1", q.Get("userId"))
	assert.Equal(t, "t1", q.Get("threadId"))
	assert.Equal(t, "terra", q.Get("platform"))

	msgs := f.session.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "t1", f.session.ThreadID())
	assert.Equal(t, "t1", f.state.GetOr(store.KeyThreadID, ""))
	assert.Contains(t, f.seen(), hooks.EventSessionStart)
	assert.Contains(t, f.seen(), hooks.EventThreadBound)
}

func TestOpenSameTupleIsNoop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.session.Open(context.Background(), "t1"))
	f.backend.accept(t)
	require.NoError(t, f.session.Open(context.Background(), "t1"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), f.backend.dials.Load())
}

func TestOpenWithoutThreadSkipsBackfill(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.session.Open(context.Background(), ""))
	_, q := f.backend.accept(t)

	assert.Equal(t, "", q.Get("threadId"))
	assert.Empty(t, f.session.Conversation().Messages())
}

func TestLiveEventsReachConversation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Open(context.Background(), "t1"))
	ws, _ := f.backend.accept(t)

	frame, err := protocol.NewEvent(protocol.EventServerMessage, map[string]any{
		"messageId": "a1", "message": "Fetching data", "timestamp": "2026-03-01T10:00:00Z",
	}, 1)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(frame))

	assert.Eventually(t, func() bool {
		_, ok := f.session.Conversation().Message("a1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEnsureThreadSharesOneCreation(t *testing.T) {
	f := newFixture(t)

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.session.EnsureThread(context.Background())
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	f.backend.accept(t)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), f.backend.creates.Load())
	assert.Equal(t, int32(1), f.backend.dials.Load())
	assert.True(t, strings.HasPrefix(ids[0], "t-"))
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestEnsureThreadKeepsBoundThread(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Open(context.Background(), "t1"))

	id, err := f.session.EnsureThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.Equal(t, int32(0), f.backend.creates.Load())
}

func TestNewThreadCreateFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.createFail.Store(true)

	_, err := f.session.NewThread(context.Background())
	require.Error(t, err)

	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "failed to create thread", apiErr.Error())
	assert.Empty(t, f.session.ThreadID())
	assert.Equal(t, int32(0), f.backend.dials.Load())
}

func TestSetPlatformRebinds(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Open(context.Background(), "t1"))
	first, _ := f.backend.accept(t)

	require.NoError(t, f.session.SetPlatform(context.Background(), "ai_games"))
	_, q := f.backend.accept(t)

	assert.Equal(t, "ai_games", q.Get("platform"))
	assert.Equal(t, "t1", q.Get("threadId"))
	assert.Equal(t, "ai_games", f.session.Platform())
	assert.Equal(t, "ai_games", f.state.GetOr(store.KeyPlatform, ""))

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "previous connection is closed")
}

func TestSwitchingThreadCachesTranscript(t *testing.T) {
	f := newFixture(t)
	f.backend.setHistory("t1",
		domain.HistoryRecord{MessageID: "h1", By: "user", MessageContent: "funnel for march", Timestamp: "2026-03-01T10:00:00Z"},
	)
	require.NoError(t, f.session.Open(context.Background(), "t1"))
	f.backend.accept(t)

	require.NoError(t, f.session.Open(context.Background(), "t2"))
	f.backend.accept(t)

	cached, err := f.cache.Load("t1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "funnel for march", cached[0].Content)
	assert.Empty(t, f.session.Conversation().Messages())
}

func TestCloseEndsSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Open(context.Background(), "t1"))
	f.backend.accept(t)

	f.session.Close()
	f.session.Close()

	assert.Contains(t, f.seen(), hooks.EventSessionEnd)
	assert.ErrorIs(t, f.session.Open(context.Background(), "t2"), conn.ErrClosed)
}

func TestLoadContext(t *testing.T) {
	db, err := store.Open(":memory:", logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	st := store.NewStateStore(db)

	c, err := LoadContext(st, "terra")
	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.Equal(t, "terra", c.Platform)

	require.NoError(t, ContextFor(domain.User{UserID: "u9", Username: "Ravi Kumar", Email: "r@example.com"}, "ai_games").Save(st))

	c, err = LoadContext(st, "terra")
	require.NoError(t, err)
	assert.Equal(t, &Context{UserID: "u9", Name: "Ravi Kumar", Email: "r@example.com", Platform: "ai_games"}, c)
	assert.Equal(t, "Ravi", c.FirstName())
}

func TestWaitConnected(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.session.WaitConnected(context.Background()), chat.ErrNotConnected)

	require.NoError(t, f.session.Open(context.Background(), ""))
	f.backend.accept(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, f.session.WaitConnected(ctx))
}

func TestOpenWithoutThreadKeepsStoredThread(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.Set(store.KeyThreadID, "t-previous"))

	require.NoError(t, f.session.Open(context.Background(), ""))
	f.backend.accept(t)

	assert.Equal(t, "t-previous", f.state.GetOr(store.KeyThreadID, ""))
}

func TestConcurrentOpenKeepsBindingConsistent(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for _, id := range []string{"t1", "t2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, f.session.Open(context.Background(), id))
		}(id)
	}
	wg.Wait()

	bound := f.session.Conversation().Binding()
	require.NotNil(t, f.session.mgr.Current())
	assert.Equal(t, bound, f.session.mgr.Current().Binding())

	// Either dial may have been cancelled; find the socket of the winner.
	var live *websocket.Conn
	deadline := time.After(2 * time.Second)
	for live == nil {
		select {
		case a := <-f.backend.conns:
			t.Cleanup(func() { a.ws.Close() })
			if a.query.Get("threadId") == bound.ThreadID {
				live = a.ws
			}
		case <-deadline:
			t.Fatalf("no connection for %s", bound.ThreadID)
		}
	}

	frame, err := protocol.NewEvent(protocol.EventServerMessage, map[string]any{
		"messageId": "a1", "message": "still listening", "timestamp": "2026-03-01T10:00:00Z",
	}, 1)
	require.NoError(t, err)
	require.NoError(t, live.WriteJSON(frame))

	assert.Eventually(t, func() bool {
		_, ok := f.session.Conversation().Message("a1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
