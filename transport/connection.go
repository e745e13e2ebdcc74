// Package transport implements the single bidirectional framed connection
// to one gateway (§3 Connection, §4.1 "After a successful dial…").
//
// The read and write sides run on their own goroutines, modeled directly on
// the teacher's tcpConn.manager/HandleInbound/HandleOutbound split, but
// without that type's self-healing reconnect loop: per §4.1, reconnection
// is ConnectionManager's job, not Connection's. A Connection that breaks
// just reports itself invalid and exits Run; the manager dials a fresh one.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshkit/clientgw/ids"
	"github.com/meshkit/clientgw/internal/utils"
	"github.com/meshkit/clientgw/message"
)

var (
	// ErrConnectionClosed is returned by Send once the connection has
	// transitioned out of Connected, by any cause.
	ErrConnectionClosed = errors.New("transport: connection is closed")
	// ErrOutboundQueueFull is returned by Send when the outbound channel
	// can't accept another link right now; callers treat it the same as a
	// closed connection (§4.2 RaceLost handling doesn't distinguish them).
	ErrOutboundQueueFull = errors.New("transport: outbound queue is full")
)

const (
	outboundQueueSize = 256
	// socketTimeout bounds every read/write regardless of caller deadlines,
	// so a dead peer can't wedge the reader/writer goroutines forever.
	socketTimeout = 30 * time.Second
)

type state int32

const (
	stateConnected state = iota
	stateTerminated
)

// Listener receives Connection open/close notifications, fired
// fire-and-forget (§4.6). connmgr.Manager passes itself as the Listener on
// every Dial and forwards each notification to ClientMessageCenter.
type Listener interface {
	OnConnectionOpened(Connection)
	OnConnectionClosed(Connection, error)
}

// Receiver is invoked, synchronously on the Connection's reader goroutine,
// for every Message that arrives off the wire. ClientMessageCenter.OnReceivedMessage
// is the production implementation.
type Receiver interface {
	OnReceivedMessage(*message.Message)
}

// Connection owns one live transport to one endpoint (§3). It is immutable
// in identity; IsValid flips true→false exactly once.
type Connection interface {
	Endpoint() ids.Endpoint
	IsValid() bool
	// Send enqueues msg for transmission. It never blocks: a full outbound
	// queue or a closed connection both return immediately with an error,
	// which is exactly the signal SendMessage's RaceLost handling needs.
	Send(msg *message.Message) error
	// Run drains the connection until the transport breaks or ctx is
	// cancelled, then marks the connection invalid and returns the reason.
	// Intended to be called exactly once, from the goroutine
	// ConnectionManager spawns after a successful dial.
	Run(ctx context.Context) error
	// Close tears the connection down immediately; idempotent.
	Close(reason error) error
	CloseReason() error
	ID() string
}

// Conn is the concrete Connection implementation this package dials.
// It is exported so callers (clientmc's bucket table) can hold a weak
// reference to the exact allocation, which weak.Pointer requires.
type Conn struct {
	endpoint ids.Endpoint
	rawConn  net.Conn
	rw       *bufio.ReadWriter
	id       string

	state     atomicState
	closeOnce sync.Once
	closeErr  error
	closeMu   sync.RWMutex

	outbound chan *message.Message

	listener Listener
	receiver Receiver

	logger    *zap.Logger
	logFields []zap.Field
}

// newConnection wraps an already-dialed net.Conn. Construction always
// succeeds; the connection starts life Connected.
func newConnection(endpoint ids.Endpoint, raw net.Conn, listener Listener, receiver Receiver, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	c := &Conn{
		endpoint: endpoint,
		rawConn:  raw,
		rw: bufio.NewReadWriter(
			bufio.NewReader(raw),
			bufio.NewWriter(raw),
		),
		id:       id,
		outbound: make(chan *message.Message, outboundQueueSize),
		listener: listener,
		receiver: receiver,
		logger:   logger,
		logFields: []zap.Field{
			zap.String("conn_id", id),
			zap.String("endpoint", endpoint.String()),
		},
	}
	c.state.set(stateConnected)
	return c
}

func (c *Conn) Endpoint() ids.Endpoint { return c.endpoint }
func (c *Conn) ID() string             { return c.id }

func (c *Conn) IsValid() bool {
	return c.state.get() == stateConnected
}

func (c *Conn) CloseReason() error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	return c.closeErr
}

func (c *Conn) Send(msg *message.Message) error {
	if !c.IsValid() {
		return ErrConnectionClosed
	}
	select {
	case c.outbound <- msg:
		return nil
	default:
		return ErrOutboundQueueFull
	}
}

// Run drives the read and write loops until one of them fails, then closes
// the connection and returns the first loop error. The read loop only ever
// returns an error, so Run never returns nil; an explicit Close surfaces as
// the read error from the closed socket. Cancelling ctx stops the write
// loop at once, while the read loop notices only when its current read
// returns (a frame arrives, the socket fails, or socketTimeout elapses).
func (c *Conn) Run(ctx context.Context) error {
	group, cancel := utils.NewSyncErrGroup(ctx)
	group.Go(c.readLoop)
	group.Go(c.writeLoop)

	err := group.Wait()
	cancel(err)
	_ = c.Close(err)
	return err
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		if err := c.rawConn.SetReadDeadline(time.Now().Add(socketTimeout)); err != nil {
			return fmt.Errorf("transport: set read deadline: %w", err)
		}

		msg, err := decodeFrame(c.rw.Reader)
		if err != nil {
			return fmt.Errorf("transport: read from %s: %w", c.endpoint, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.receiver != nil {
			c.receiver.OnReceivedMessage(msg)
		}
	}
}

func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-c.outbound:
			if !ok {
				return nil
			}

			if err := c.rawConn.SetWriteDeadline(time.Now().Add(socketTimeout)); err != nil {
				return fmt.Errorf("transport: set write deadline: %w", err)
			}

			if err := encodeFrame(c.rw.Writer, msg); err != nil {
				return fmt.Errorf("transport: write to %s: %w", c.endpoint, err)
			}

			if err := c.rw.Flush(); err != nil {
				return fmt.Errorf("transport: flush to %s: %w", c.endpoint, err)
			}
		}
	}
}

func (c *Conn) Close(reason error) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.logger.Info("closing connection", append(c.logFields, zap.Error(reason))...)
		c.state.set(stateTerminated)

		c.closeMu.Lock()
		c.closeErr = reason
		c.closeMu.Unlock()

		closeErr = c.rawConn.Close()
		if c.listener != nil {
			c.listener.OnConnectionClosed(c, reason)
		}
	})
	return closeErr
}

// atomicState is a tiny state wrapper over atomic.Int32 so call sites read
// as c.state.get() == stateConnected rather than bare int32 comparisons.
type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) set(s state) { a.v.Store(int32(s)) }
func (a *atomicState) get() state  { return state(a.v.Load()) }
