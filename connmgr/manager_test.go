package connmgr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/meshkit/clientgw/ids"
	"github.com/meshkit/clientgw/message"
	"github.com/meshkit/clientgw/transport"
)

// fakeConn is a minimal transport.Connection double that never touches a
// real socket, so connmgr's pooling logic can be tested in isolation.
type fakeConn struct {
	endpoint ids.Endpoint
	id       string
	valid    atomic.Bool
	runCh    chan error
}

func newFakeConn(endpoint ids.Endpoint, id string) *fakeConn {
	c := &fakeConn{endpoint: endpoint, id: id, runCh: make(chan error, 1)}
	c.valid.Store(true)
	return c
}

func (c *fakeConn) Endpoint() ids.Endpoint   { return c.endpoint }
func (c *fakeConn) IsValid() bool            { return c.valid.Load() }
func (c *fakeConn) ID() string               { return c.id }
func (c *fakeConn) Send(*message.Message) error { return nil }
func (c *fakeConn) CloseReason() error       { return nil }

func (c *fakeConn) Run(ctx context.Context) error {
	select {
	case err := <-c.runCh:
		c.valid.Store(false)
		return err
	case <-ctx.Done():
		c.valid.Store(false)
		return ctx.Err()
	}
}

func (c *fakeConn) Close(reason error) error {
	c.valid.Store(false)
	select {
	case c.runCh <- reason:
	default:
	}
	return nil
}

// fakeFactory dials fakeConns and counts how many dial attempts it served,
// so tests can assert "at most one in-flight dial" under concurrency.
type fakeFactory struct {
	mu        sync.Mutex
	dialCount int
	fail      bool
	dialDelay time.Duration
}

func (f *fakeFactory) Dial(ctx context.Context, endpoint ids.Endpoint, _ transport.Receiver, _ transport.Listener) (transport.Connection, error) {
	f.mu.Lock()
	f.dialCount++
	f.mu.Unlock()

	if f.dialDelay > 0 {
		time.Sleep(f.dialDelay)
	}
	if f.fail {
		return nil, errors.New("dial refused")
	}
	return newFakeConn(endpoint, endpoint.String()), nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialCount
}

func TestGetConnectionDialsOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	factory := &fakeFactory{}
	mgr := NewManager(factory, nil, nil, zap.NewNop())
	defer mgr.Close(context.Background()) //nolint:errcheck

	ep := ids.NewEndpoint("gw-1", 1)
	c1, err := mgr.GetConnection(context.Background(), ep)
	require.NoError(t, err)

	c2, err := mgr.GetConnection(context.Background(), ep)
	require.NoError(t, err)

	assert.Equal(t, c1.ID(), c2.ID())
	assert.Equal(t, 1, factory.count())
}

func TestGetConnectionConcurrentCallersDialAtMostOnce(t *testing.T) {
	factory := &fakeFactory{dialDelay: 50 * time.Millisecond}
	mgr := NewManager(factory, nil, nil, zap.NewNop())
	defer mgr.Close(context.Background()) //nolint:errcheck

	ep := ids.NewEndpoint("gw-1", 1)

	const n = 20
	var wg sync.WaitGroup
	results := make([]transport.Connection, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := mgr.GetConnection(context.Background(), ep)
			if err == nil {
				results[i] = c
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, factory.count())
	for _, c := range results {
		if c != nil {
			assert.Equal(t, results[0].ID(), c.ID())
		}
	}
}

func TestGetConnectionCooldownAfterFailure(t *testing.T) {
	factory := &fakeFactory{fail: true}
	mgr := NewManager(factory, nil, nil, zap.NewNop())
	defer mgr.Close(context.Background()) //nolint:errcheck

	ep := ids.NewEndpoint("gw-down", 1)
	_, err := mgr.GetConnection(context.Background(), ep)
	assert.ErrorIs(t, err, ErrConnectionFailed)

	_, err = mgr.GetConnection(context.Background(), ep)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, 1, factory.count(), "second call within cooldown must not redial")
}

func TestRemoveEmptiesEntry(t *testing.T) {
	factory := &fakeFactory{}
	mgr := NewManager(factory, nil, nil, zap.NewNop())
	defer mgr.Close(context.Background()) //nolint:errcheck

	ep := ids.NewEndpoint("gw-1", 1)
	c, err := mgr.GetConnection(context.Background(), ep)
	require.NoError(t, err)

	assert.Equal(t, 1, mgr.ConnectionCount())
	mgr.Remove(ep, c)
	assert.Equal(t, 0, mgr.ConnectionCount())
	assert.Empty(t, mgr.ConnectedEndpoints())
}

func TestAbortClosesAllConnections(t *testing.T) {
	factory := &fakeFactory{}
	mgr := NewManager(factory, nil, nil, zap.NewNop())
	defer mgr.Close(context.Background()) //nolint:errcheck

	ep := ids.NewEndpoint("gw-1", 1)
	c, err := mgr.GetConnection(context.Background(), ep)
	require.NoError(t, err)

	mgr.Abort(ep)
	assert.False(t, c.IsValid())
	assert.Equal(t, 0, mgr.ConnectionCount())
}

func TestCloseIsIdempotentAndDrains(t *testing.T) {
	factory := &fakeFactory{}
	mgr := NewManager(factory, nil, nil, zap.NewNop())

	ep := ids.NewEndpoint("gw-1", 1)
	_, err := mgr.GetConnection(context.Background(), ep)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, mgr.Close(ctx))
	assert.NoError(t, mgr.Close(ctx))

	_, err = mgr.GetConnection(context.Background(), ep)
	assert.ErrorIs(t, err, ErrManagerClosed)
}
