// Package conn maintains the persistent pipeline connection of a session.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/querydesk/internal/config"
	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/logging"
	"github.com/soyeahso/querydesk/internal/protocol"
)

var (
	ErrClosed     = errors.New("connection closed")
	ErrOutboxFull = errors.New("outbox full")
	ErrNack       = errors.New("request rejected")
)

const writeWait = 10 * time.Second

// Handler receives decoded inbound events, one at a time, in arrival order.
// A handler must not close the connection that invoked it.
type Handler func(protocol.Event)

// Conn is one bound connection. It dials in the background, redials after
// drops according to the transport config, and buffers outbound frames while
// the socket is down.
type Conn struct {
	binding domain.Binding
	url     string
	header  http.Header
	cfg     config.TransportConfig
	dialer  *websocket.Dialer
	handler Handler
	log     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	ready  chan struct{}
	once   sync.Once

	mu      sync.Mutex
	ws      *websocket.Conn
	closed  bool
	err     error
	outbox  []protocol.Frame
	pending map[string]chan protocol.Frame

	dispatchMu sync.Mutex
}

func newConn(ctx context.Context, b domain.Binding, m *Manager, h Handler) (*Conn, error) {
	u, err := endpointURL(b)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Conn{
		binding: b,
		url:     u,
		header:  m.header.Clone(),
		cfg:     m.cfg,
		dialer:  m.dialer,
		handler: h,
		log:     m.log.With("binding", b.String()),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
		pending: make(map[string]chan protocol.Frame),
	}, nil
}

// endpointURL appends the binding identity to the socket endpoint.
func endpointURL(b domain.Binding) (string, error) {
	u, err := url.Parse(b.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("endpoint %q: scheme must be ws or wss", b.Endpoint)
	}
	q := u.Query()
	q.Set("userId", b.UserID)
	q.Set("threadId", b.ThreadID)
	q.Set("platform", b.Platform)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Binding returns the identity this connection was opened for.
func (c *Conn) Binding() domain.Binding { return c.binding }

// Done is closed once the connection has stopped for good.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection stopped: ErrClosed after Close, or the last
// dial error once reconnect attempts are exhausted.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Connected reports whether the socket is currently up.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// WaitConnected blocks until the first successful dial.
func (c *Conn) WaitConnected(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit sends a named event. While the socket is down the frame is queued and
// flushed, in order, on the next successful dial.
func (c *Conn) Emit(event string, payload any) error {
	f, err := protocol.NewEvent(event, payload, 0)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return c.send(f)
}

// EmitWithAck sends a named event as a request and waits for the server's
// acknowledgement, returning its payload.
func (c *Conn) EmitWithAck(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	id := uuid.NewString()
	f, err := protocol.NewRequest(id, event, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}

	ch := make(chan protocol.Frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(f); err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		if res.OK == nil || !*res.OK {
			if res.Error != nil {
				return nil, res.Error
			}
			return nil, ErrNack
		}
		return res.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Conn) send(f protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.ws == nil {
		if len(c.outbox) >= c.cfg.OutboxSize {
			return ErrOutboxFull
		}
		c.outbox = append(c.outbox, f)
		return nil
	}
	if err := c.writeLocked(c.ws, f); err != nil {
		return fmt.Errorf("write %s: %w", frameName(f), err)
	}
	return nil
}

func (c *Conn) writeLocked(ws *websocket.Conn, f protocol.Frame) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(f)
}

func frameName(f protocol.Frame) string {
	if f.Method != "" {
		return f.Method
	}
	return f.Event
}

// Close stops the connection. After Close returns the handler is not called
// again.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = ErrClosed
	c.cancel()
	if c.ws != nil {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	}
	c.mu.Unlock()

	// Wait out any dispatch already in progress.
	c.dispatchMu.Lock()
	c.dispatchMu.Unlock()
}

// run dials, reads until the socket drops, and redials until the context is
// cancelled or attempts run out.
func (c *Conn) run() {
	defer close(c.done)

	failures := 0
	for {
		ws, err := c.dial()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			failures++
			c.log.Warn().Err(err).Int("attempt", failures).Msg("connect failed")
			if !c.cfg.Reconnect || failures > c.cfg.ReconnectAttempts {
				c.log.Error().Err(err).Msg("giving up on connection")
				c.stop(err)
				return
			}
			if !c.sleep(c.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		failures = 0
		if err := c.attach(ws); err != nil {
			c.log.Warn().Err(err).Msg("outbox flush failed")
		}
		err = c.readLoop(ws)
		c.detach(ws)

		if c.ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Msg("disconnected")
		if !c.cfg.Reconnect {
			c.stop(err)
			return
		}
		c.log.Info().Dur("delay", c.cfg.ReconnectDelay).Msg("reconnecting")
		if !c.sleep(c.cfg.ReconnectDelay) {
			return
		}
	}
}

func (c *Conn) dial() (*websocket.Conn, error) {
	ctx := c.ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}
	ws, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Conn) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// attach installs ws as the live socket and flushes queued frames.
func (c *Conn) attach(ws *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = ws.Close()
		return ErrClosed
	}
	c.ws = ws
	c.once.Do(func() { close(c.ready) })
	c.log.Info().Msg("connected")

	for len(c.outbox) > 0 {
		if err := c.writeLocked(ws, c.outbox[0]); err != nil {
			return err
		}
		c.outbox = c.outbox[1:]
	}
	c.outbox = nil
	return nil
}

func (c *Conn) detach(ws *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == ws {
		c.ws = nil
	}
	_ = ws.Close()
}

func (c *Conn) stop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	c.cancel()
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	for {
		if c.cfg.Timeout > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(c.cfg.Timeout))
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}

		switch f.Type {
		case protocol.FrameTypeResponse:
			c.resolve(f)
		case protocol.FrameTypeEvent:
			ev, err := protocol.Decode(f)
			if err != nil {
				c.log.Warn().Err(err).Str("event", f.Event).Msg("dropping event")
				continue
			}
			c.dispatch(ev)
		default:
			c.log.Debug().Str("type", f.Type).Msg("ignoring frame")
		}
	}
}

func (c *Conn) resolve(f protocol.Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	c.mu.Unlock()
	if !ok {
		c.log.Debug().Str("id", f.ID).Msg("unsolicited response")
		return
	}
	select {
	case ch <- f:
	default:
	}
}

func (c *Conn) dispatch(ev protocol.Event) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || c.handler == nil {
		return
	}
	c.handler(ev)
}
