package conn

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/querydesk/internal/config"
	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/logging"
)

// Manager keeps at most one live connection, bound to the most recent
// binding it was given.
type Manager struct {
	cfg    config.TransportConfig
	dialer *websocket.Dialer
	header http.Header
	log    *logging.Logger

	mu      sync.Mutex
	current *Conn
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithHeader sets a header sent with every handshake.
func WithHeader(key, value string) Option {
	return func(m *Manager) { m.header.Set(key, value) }
}

// NewManager creates an unbound manager.
func NewManager(cfg config.TransportConfig, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		header: http.Header{},
		log:    log.Sub("conn"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind returns a connection for b. If the current connection already serves
// b it is returned unchanged; otherwise the current connection is closed,
// even mid-handshake, before a new one is started. The new connection lives
// until ctx is cancelled, Close is called, or the next rebind.
func (m *Manager) Bind(ctx context.Context, b domain.Binding, h Handler) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current; cur != nil {
		if cur.binding == b && cur.Err() == nil {
			return cur, nil
		}
		m.log.Info().Str("from", cur.binding.String()).Str("to", b.String()).Msg("rebinding")
		cur.Close()
		m.current = nil
	}

	c, err := newConn(ctx, b, m, h)
	if err != nil {
		return nil, err
	}
	if !b.Complete() {
		m.log.Debug().Str("binding", b.String()).Msg("binding incomplete")
	}
	m.current = c
	go c.run()
	return c, nil
}

// Current returns the live connection, or nil when unbound.
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close closes the current connection and unbinds the manager.
func (m *Manager) Close() {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
}
