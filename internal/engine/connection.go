package engine

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/net/http2"
)

// connState is the lifecycle of one multiplexed session.
type connState int

const (
	stateOpening connState = iota
	stateActive
	stateDraining
	stateClosed
	stateDestroyed
)

// ConnManager builds and tracks the multiplexed connections used by one
// send operation. Each connection gets its own transport instance so its
// streams share a single dedicated session instead of the process-wide
// connection pool.
type ConnManager struct {
	transport func() http.RoundTripper
	logger    *slog.Logger

	mu     sync.Mutex
	nextID int
}

func newConnManager(transport func() http.RoundTripper, logger *slog.Logger) *ConnManager {
	if transport == nil {
		transport = defaultTransport
	}
	return &ConnManager{
		transport: transport,
		logger:    logger.With("component", "ConnManager"),
	}
}

func defaultTransport() http.RoundTripper {
	return &http2.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// Open creates one active connection for a batch.
func (m *ConnManager) Open() *Connection {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	c := &Connection{
		id:      id,
		manager: m,
		client:  &http.Client{Transport: m.transport()},
		state:   stateOpening,
	}
	c.state = stateActive
	m.logger.Debug("Connection opened", "conn", id)
	return c
}

// Connection is one multiplexed transport session bound to a single batch.
type Connection struct {
	id      int
	manager *ConnManager
	client  *http.Client

	mu          sync.Mutex
	state       connState
	replacement *Connection
}

// Do issues one request over this session.
func (c *Connection) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// Alive reports whether the session is still usable for new requests.
func (c *Connection) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateActive || c.state == stateDraining
}

// Destroy marks the session dead after a transport fault. Pending retries
// move to the shared replacement connection.
func (c *Connection) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDestroyed {
		return
	}
	c.state = stateDestroyed
	c.client.CloseIdleConnections()
	c.manager.logger.Debug("Connection destroyed", "conn", c.id)
}

// Close gracefully retires the session. Callers must only close once
// every request assigned to the batch has reached a terminal state.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDestroyed || c.state == stateClosed {
		return
	}
	c.state = stateDraining
	c.client.CloseIdleConnections()
	c.state = stateClosed
	c.manager.logger.Debug("Connection closed", "conn", c.id)
}

// Replacement lazily creates a single shared replacement connection. All
// retries stranded by a destroyed session attach to the same replacement,
// so simultaneous failures do not open a storm of new connections.
func (c *Connection) Replacement() *Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replacement == nil {
		c.replacement = c.manager.Open()
		c.manager.logger.Info("Replacement connection created", "conn", c.id, "replacement", c.replacement.id)
	}
	return c.replacement
}

// batchState is the explicit per-connection bookkeeping record: the count
// of requests that reached a terminal state and the permanently-invalid
// recipients discovered on the connection.
type batchState struct {
	mu        sync.Mutex
	completed int
	invalid   []string
}

func (s *batchState) markCompleted() {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

func (s *batchState) addInvalid(token string) {
	s.mu.Lock()
	s.invalid = append(s.invalid, token)
	s.mu.Unlock()
}

func (s *batchState) snapshot() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, append([]string(nil), s.invalid...)
}
