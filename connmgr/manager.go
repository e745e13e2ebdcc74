// Package connmgr implements the connection pool that sits between
// ClientMessageCenter and transport: at most one live Connection per
// endpoint, at most one in-flight dial per endpoint, and a cooldown after a
// failed dial so a dead gateway doesn't get hammered (§4.1).
package connmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"go.uber.org/zap"

	"github.com/meshkit/clientgw/ids"
	"github.com/meshkit/clientgw/transport"
)

// ConnectRetryDelay is the cooldown window after a failed dial, during
// which further GetConnection calls for that endpoint fail fast rather than
// redialing.
const ConnectRetryDelay = 1 * time.Second

// attemptAcquireTimeout bounds how long a GetConnection caller waits to
// become the one goroutine that dials, before re-checking the fast path.
const attemptAcquireTimeout = 100 * time.Millisecond

// MaxConnectionsPerEndpoint is fixed at 1 for a client: a client never
// needs more than one live connection to a given gateway. The round-robin
// machinery below is sized for this but written generically, since it
// costs nothing extra and documents the extension point (§9).
const MaxConnectionsPerEndpoint = 1

var (
	// ErrConnectionFailed is returned by GetConnection when a dial failed
	// and the cooldown window hasn't elapsed, or the dial attempted by this
	// call failed outright.
	ErrConnectionFailed = errors.New("connmgr: connection failed")
	// ErrConnectionAborted is the Close reason given to connections torn
	// down by Abort or by Close.
	ErrConnectionAborted = errors.New("connmgr: connection aborted")
	// ErrManagerClosed is returned by GetConnection once Close has been called.
	ErrManagerClosed = errors.New("connmgr: manager is closed")
)

// entry is the per-endpoint bookkeeping record (§3 ConnectionEntry).
type entry struct {
	mu          sync.Mutex
	connections []transport.Connection
	cursor      atomic.Uint32

	attemptGuard *semaphore.Weighted

	lastFailureMu sync.Mutex
	lastFailure   time.Time
	hasFailed     bool
}

func newEntry() *entry {
	return &entry{attemptGuard: semaphore.NewWeighted(1)}
}

// pick returns a round-robin connection from the entry if it's at capacity
// and the pick is valid, else (nil, false).
func (e *entry) pick() (transport.Connection, bool) {
	e.mu.Lock()
	n := len(e.connections)
	if n < MaxConnectionsPerEndpoint || n == 0 {
		e.mu.Unlock()
		return nil, false
	}
	idx := int(e.cursor.Add(1)-1) % n
	c := e.connections[idx]
	e.mu.Unlock()

	if c.IsValid() {
		return c, true
	}
	return nil, false
}

func (e *entry) atCapacity() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.connections) >= MaxConnectionsPerEndpoint
}

func (e *entry) add(c transport.Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connections = append(e.connections, c)
}

func (e *entry) remove(c transport.Connection) (empty bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.connections {
		if existing.ID() == c.ID() {
			e.connections = append(e.connections[:i], e.connections[i+1:]...)
			break
		}
	}
	return len(e.connections) == 0
}

func (e *entry) snapshot() []transport.Connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]transport.Connection, len(e.connections))
	copy(out, e.connections)
	return out
}

func (e *entry) withinCooldown() bool {
	e.lastFailureMu.Lock()
	defer e.lastFailureMu.Unlock()
	return e.hasFailed && time.Since(e.lastFailure) < ConnectRetryDelay
}

func (e *entry) recordFailure() {
	e.lastFailureMu.Lock()
	defer e.lastFailureMu.Unlock()
	e.hasFailed = true
	e.lastFailure = time.Now()
}

func (e *entry) clearFailure() {
	e.lastFailureMu.Lock()
	defer e.lastFailureMu.Unlock()
	e.hasFailed = false
}

// Manager pools one Connection per endpoint, coordinating dials so
// concurrent callers for the same endpoint never race each other into
// dialing twice.
type Manager struct {
	factory  transport.ConnectionFactory
	receiver transport.Receiver
	upstream transport.Listener
	logger   *zap.Logger

	entries sync.Map // ids.Endpoint -> *entry

	ctx    context.Context
	cancel context.CancelFunc

	closed atomic.Bool
}

// NewManager returns a Manager that dials through factory, forwards inbound
// messages on every connection it creates to receiver, and forwards
// open/close notifications to upstream (normally the owning
// ClientMessageCenter, for its gateway-count bookkeeping) after this
// Manager's own pool bookkeeping runs. upstream may be nil.
func NewManager(factory transport.ConnectionFactory, receiver transport.Receiver, upstream transport.Listener, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory:  factory,
		receiver: receiver,
		upstream: upstream,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// GetConnection returns a live connection to endpoint, dialing one if
// necessary. At most one dial is ever in flight per endpoint across
// concurrent callers.
func (m *Manager) GetConnection(ctx context.Context, endpoint ids.Endpoint) (transport.Connection, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	for {
		e := m.loadOrCreateEntry(endpoint)

		if c, ok := e.pick(); ok {
			return c, nil
		}

		if e.withinCooldown() {
			return nil, fmt.Errorf("%w: endpoint %s in cooldown", ErrConnectionFailed, endpoint)
		}

		acquireCtx, cancel := context.WithTimeout(ctx, attemptAcquireTimeout)
		err := e.attemptGuard.Acquire(acquireCtx, 1)
		cancel()
		if err != nil {
			// Someone else is dialing; loop and re-check the fast path.
			continue
		}

		c, err := m.dial(ctx, endpoint, e)
		e.attemptGuard.Release(1)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (m *Manager) loadOrCreateEntry(endpoint ids.Endpoint) *entry {
	if v, ok := m.entries.Load(endpoint); ok {
		return v.(*entry)
	}
	v, _ := m.entries.LoadOrStore(endpoint, newEntry())
	return v.(*entry)
}

// dial is called with attemptGuard held: it re-checks capacity (another
// goroutine may have just finished dialing), then performs the connect.
func (m *Manager) dial(ctx context.Context, endpoint ids.Endpoint, e *entry) (transport.Connection, error) {
	if c, ok := e.pick(); ok {
		return c, nil
	}

	// The dial is cancelled by either the caller's ctx or the Manager's own
	// Close.
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	c, err := m.factory.Dial(dialCtx, endpoint, m.receiver, m)
	if err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	e.add(c)
	e.clearFailure()

	go m.runConnection(endpoint, c)
	return c, nil
}

// runConnection drives a freshly-dialed connection until it breaks, then
// removes it from the pool.
func (m *Manager) runConnection(endpoint ids.Endpoint, c transport.Connection) {
	err := c.Run(m.ctx)
	if err != nil {
		m.logger.Info("connection closed",
			zap.String("endpoint", endpoint.String()),
			zap.String("conn_id", c.ID()),
			zap.Error(err),
		)
	}
	m.Remove(endpoint, c)
}

// OnConnectionOpened implements transport.Listener: the connection is
// already registered with the entry by dial, so this only forwards the
// notification upstream.
func (m *Manager) OnConnectionOpened(c transport.Connection) {
	if m.upstream != nil {
		m.upstream.OnConnectionOpened(c)
	}
}

// OnConnectionClosed implements transport.Listener. It fires once for every
// connection close, whatever the cause (Run returning also closes the
// connection), so runConnection's own Remove afterwards is a no-op.
func (m *Manager) OnConnectionClosed(c transport.Connection, reason error) {
	m.Remove(c.Endpoint(), c)
	if m.upstream != nil {
		m.upstream.OnConnectionClosed(c, reason)
	}
}

// Remove drops connection from endpoint's pool. It is safe to call more
// than once for the same connection; later calls are no-ops.
func (m *Manager) Remove(endpoint ids.Endpoint, c transport.Connection) {
	v, ok := m.entries.Load(endpoint)
	if !ok {
		return
	}
	e := v.(*entry)
	if empty := e.remove(c); empty {
		m.entries.CompareAndDelete(endpoint, e)
	}
}

// Abort removes endpoint's entry entirely and closes every connection in it.
func (m *Manager) Abort(endpoint ids.Endpoint) {
	v, ok := m.entries.LoadAndDelete(endpoint)
	if !ok {
		return
	}
	e := v.(*entry)
	for _, c := range e.snapshot() {
		_ = c.Close(ErrConnectionAborted)
	}
}

// ConnectionCount returns a best-effort snapshot of the total number of
// pooled connections across all endpoints.
func (m *Manager) ConnectionCount() int {
	total := 0
	m.entries.Range(func(_, v any) bool {
		total += len(v.(*entry).snapshot())
		return true
	})
	return total
}

// ConnectedEndpoints returns a snapshot of every endpoint with at least one
// pooled connection.
func (m *Manager) ConnectedEndpoints() []ids.Endpoint {
	var out []ids.Endpoint
	m.entries.Range(func(k, v any) bool {
		if len(v.(*entry).snapshot()) > 0 {
			out = append(out, k.(ids.Endpoint))
		}
		return true
	})
	return out
}

// Close cancels every in-flight dial and reader goroutine, closes every
// pooled connection, and waits for the pool to drain or ctx to be done.
func (m *Manager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.cancel()

	m.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		for _, c := range e.snapshot() {
			_ = c.Close(ErrConnectionAborted)
		}
		return true
	})

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	warnTicker := time.NewTicker(5 * time.Second)
	defer warnTicker.Stop()

	for {
		if m.ConnectionCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-warnTicker.C:
			m.logger.Warn("connmgr: still draining", zap.Int("remaining", m.ConnectionCount()))
		case <-ticker.C:
		}
	}
}
