// Package clientmc implements ClientMessageCenter: the public send/receive
// surface that picks a Connection for each outbound Message via a sticky
// hash-bucket table, and that surfaces inbound Messages to registered
// category handlers or a shared inbound queue (§4.2-§4.6).
package clientmc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meshkit/clientgw/connmgr"
	"github.com/meshkit/clientgw/gateway"
	"github.com/meshkit/clientgw/ids"
	"github.com/meshkit/clientgw/message"
	"github.com/meshkit/clientgw/transport"
)

// ClientSenderBuckets is the default bucket table size (§6).
const ClientSenderBuckets = 8192

// lostRaceRetryDelay is how long SendMessage waits before retrying a send
// that lost a race against the target connection closing (§4.2).
const lostRaceRetryDelay = 2 * time.Second

// inboundQueueSize is the capacity of the inbound queue's buffered channel.
const inboundQueueSize = 4096

type lifecycleState int32

const (
	stateConstructed lifecycleState = iota
	stateRunning
	stateStopped
)

// Center is the public send/receive surface of the client message center.
type Center struct {
	buckets  *bucketTable
	inbound  chan *message.Message
	handlers *handlerTable
	factory  message.Factory

	gateways gateway.Manager
	conns    *connmgr.Manager

	listener StatusListener
	logger   *zap.Logger

	identitySecret []byte
	identityMu     sync.RWMutex
	clientID       ids.ActorId

	myAddress ids.Endpoint

	numMessages  atomic.Int64
	gatewayCount atomic.Int32
	state        atomic.Int32

	inboundClosed sync.Once
}

// Option configures optional Center dependencies at construction.
type Option func(*Center)

// WithStatusListener overrides the default logging-only StatusListener.
func WithStatusListener(l StatusListener) Option {
	return func(c *Center) { c.listener = l }
}

// WithBucketCount overrides ClientSenderBuckets.
func WithBucketCount(n int) Option {
	return func(c *Center) { c.buckets = newBucketTable(n) }
}

// WithMessageFactory overrides the default rejection MessageFactory.
func WithMessageFactory(f message.Factory) Option {
	return func(c *Center) { c.factory = f }
}

// New constructs a Center in the Constructed state. clientID must be of
// Kind Client; identitySecret is the key UpdateClientId signs the new
// identity's JWT with. No token is minted for clientID itself.
func New(gateways gateway.Manager, connFactory transport.ConnectionFactory, clientID ids.ActorId, identitySecret []byte, logger *zap.Logger, opts ...Option) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Center{
		buckets:        newBucketTable(ClientSenderBuckets),
		inbound:        make(chan *message.Message, inboundQueueSize),
		handlers:       newHandlerTable(),
		factory:        message.NewFactory(),
		gateways:       gateways,
		listener:       NewLoggingStatusListener(logger),
		logger:         logger,
		identitySecret: identitySecret,
		clientID:       clientID,
	}
	c.conns = connmgr.NewManager(connFactory, c, c, logger)

	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(int32(stateConstructed))
	return c
}

func (c *Center) lifecycle() lifecycleState { return lifecycleState(c.state.Load()) }

// Running reports whether Start has been called and Stop/Dispose has not.
func (c *Center) Running() bool { return c.lifecycle() == stateRunning }

// MyAddress returns the endpoint this client is known by, if any was set.
func (c *Center) MyAddress() ids.Endpoint { return c.myAddress }

// ClientId returns the current client identity.
func (c *Center) ClientId() ids.ActorId {
	c.identityMu.RLock()
	defer c.identityMu.RUnlock()
	return c.clientID
}

// SendQueueLength always returns 0; retained for contract compatibility
// since the underlying transport has no user-visible send queue depth.
func (c *Center) SendQueueLength() int { return 0 }

// ReceiveQueueLength always returns 0; see SendQueueLength.
func (c *Center) ReceiveQueueLength() int { return 0 }

// Start transitions Constructed -> Running. A second call is a no-op.
func (c *Center) Start(ctx context.Context) error {
	switch c.lifecycle() {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrNotRunning
	}
	c.state.Store(int32(stateRunning))
	c.logger.Info("client message center started", zap.String("client_id", c.ClientId().String()))
	return nil
}

// Stop transitions to Stopped: closes the inbound queue and stops the
// gateway manager. Idempotent.
func (c *Center) Stop() {
	prev := lifecycleState(c.state.Swap(int32(stateStopped)))
	if prev == stateStopped {
		return
	}
	c.inboundClosed.Do(func() {
		close(c.inbound)
	})
	c.gateways.Stop()
	_ = c.conns.Close(context.Background())
	c.logger.Info("client message center stopped")
}

// Dispose is an alias for Stop, retained for contract compatibility with
// embedding applications that distinguish "stop accepting work" from
// "release resources"; this implementation does both at once.
func (c *Center) Dispose() { c.Stop() }

// GetReader returns the single reader endpoint of the inbound queue.
// Categories are not demultiplexed; the caller filters (historical
// artifact, preserved per contract).
func (c *Center) GetReader(message.Category) <-chan *message.Message {
	return c.inbound
}

// RegisterLocalMessageHandler installs h as the synchronous handler for
// category, last-writer-wins.
func (c *Center) RegisterLocalMessageHandler(category message.Category, h Handler) {
	c.handlers.register(category, h)
}

// OnReceivedMessage implements transport.Receiver: it's invoked on a
// Connection's reader goroutine for every inbound Message.
func (c *Center) OnReceivedMessage(msg *message.Message) {
	if c.lifecycle() == stateStopped {
		c.logger.Warn("dropping inbound message: center stopped", zap.String("category", msg.Category.String()))
		return
	}

	if h, ok := c.handlers.lookup(msg.Category); ok {
		h(msg)
		return
	}

	select {
	case c.inbound <- msg:
	default:
		// The inbound queue holds at most inboundQueueSize messages; it is
		// full only when the single consumer has fallen that far behind,
		// and the message is then dropped with a warning rather than
		// blocking a reader goroutine.
		c.logger.Warn("inbound queue saturated, dropping message", zap.String("category", msg.Category.String()))
	}
}

// RejectMessage synthesizes a rejection response and routes it back
// through the inbound path so the caller's awaiting reader resolves
// uniformly (§4.4).
func (c *Center) RejectMessage(msg *message.Message, kind message.RejectionKind, reason string, cause error) {
	if !c.Running() {
		return
	}
	if msg.Direction != message.DirectionRequest {
		c.logger.Debug("dropping non-request message instead of rejecting", zap.String("category", msg.Category.String()))
		return
	}
	rejection := c.factory.CreateRejectionResponse(msg, kind, reason, cause)
	c.OnReceivedMessage(rejection)
}

// UpdateClientId transitions the client identity from Client to GeoClient.
// The new identity is signed as a compact JWT with identitySecret; a
// signing failure is returned and leaves the identity unchanged. The token
// itself is neither stored nor sent. Any other transition fails with
// ErrInvalidState.
func (c *Center) UpdateClientId(newID ids.ActorId) error {
	c.identityMu.Lock()
	defer c.identityMu.Unlock()

	if c.clientID.Kind != ids.KindClient || newID.Kind != ids.KindGeoClient {
		return ErrInvalidState
	}

	if _, err := signIdentity(newID, c.identitySecret); err != nil {
		return fmt.Errorf("clientmc: sign identity: %w", err)
	}
	c.clientID = newID
	return nil
}

// OnConnectionOpened implements transport.Listener (§4.6).
func (c *Center) OnConnectionOpened(transport.Connection) {
	newCount := int(c.gatewayCount.Add(1))
	c.listener.GatewayCountChanged(newCount, newCount-1)
}

// OnConnectionClosed implements transport.Listener (§4.6).
func (c *Center) OnConnectionClosed(_ transport.Connection, _ error) {
	newCount := int(c.gatewayCount.Add(-1))
	if newCount == 0 {
		c.listener.ClusterConnectionLost()
	}
	c.listener.GatewayCountChanged(newCount, newCount+1)
}

// GatewayCount returns the number of currently-open connections.
func (c *Center) GatewayCount() int { return int(c.gatewayCount.Load()) }

// SendMessage selects a Connection for msg per the priority-ordered rules
// in §4.2 and enqueues it there. Failures are not returned to the caller:
// this method is fire-and-forget. A selection failure, or a send failure
// on a pinned message, is surfaced as a rejection; any other send failure
// is retried after lostRaceRetryDelay, with no limit on the number of
// retries.
func (c *Center) SendMessage(ctx context.Context, msg *message.Message) {
	if !c.Running() {
		c.logger.Debug("dropping send: center not running")
		return
	}

	conn, err := c.selectConnection(ctx, msg)
	if err != nil {
		c.handleSelectionError(msg, err)
		return
	}

	if err := conn.Send(msg); err != nil {
		c.handleSendError(ctx, msg, err)
	}
}

func (c *Center) handleSelectionError(msg *message.Message, err error) {
	switch {
	case errors.Is(err, ErrNoGatewaysAvailable):
		c.RejectMessage(msg, message.RejectionNoGatewaysAvailable, "no gateways available", err)
	default:
		c.RejectMessage(msg, message.RejectionConnectionFailed, "failed to establish connection", err)
	}
}

func (c *Center) handleSendError(ctx context.Context, msg *message.Message, err error) {
	err = fmt.Errorf("%w: %w", ErrRaceLost, err)
	if msg.Pinned() {
		c.RejectMessage(msg, message.RejectionTargetUnavailable, fmt.Sprintf("target gateway %s is unavailable", msg.TargetEndpoint), err)
		return
	}

	time.AfterFunc(lostRaceRetryDelay, func() {
		c.SendMessage(ctx, msg)
	})
}

// selectConnection implements the priority-ordered gateway selection rules.
func (c *Center) selectConnection(ctx context.Context, msg *message.Message) (transport.Connection, error) {
	// Rule 1: pinned target, when the gateway manager lists it as live.
	if msg.Pinned() {
		for _, ep := range c.gateways.GetLiveGateways() {
			if ep == *msg.TargetEndpoint {
				return c.conns.GetConnection(ctx, ep)
			}
		}
	}

	// Rule 2: unordered / system-target round robin.
	if msg.TargetActor.IsSystemTarget() || msg.IsUnordered {
		live := c.gateways.GetLiveGateways()
		if len(live) == 0 {
			return nil, ErrNoGatewaysAvailable
		}
		idx := int(uint64(c.numMessages.Add(1)) % uint64(len(live)))
		return c.conns.GetConnection(ctx, live[idx])
	}

	// Rule 3: sticky bucket.
	return c.selectStickyBucket(ctx, msg)
}

func (c *Center) selectStickyBucket(ctx context.Context, msg *message.Message) (transport.Connection, error) {
	actor := msg.TargetActor
	if conn, ok := c.buckets.get(actor); ok {
		return conn, nil
	}

	endpoint, ok := c.gateways.GetLiveGateway()
	if !ok {
		return nil, ErrNoGatewaysAvailable
	}

	conn, err := c.conns.GetConnection(ctx, endpoint)
	if err != nil {
		// This endpoint is bad; quarantine it and restart selection from the
		// top rather than failing the message outright (§4.2 rule 3).
		c.gateways.MarkAsDead(endpoint)
		return c.selectConnection(ctx, msg)
	}

	concrete, ok := conn.(*transport.Conn)
	if !ok {
		// Not our own TCPConnectionFactory's type (e.g. a test double): skip
		// the weak-reference cache and just hand back the live connection.
		return conn, nil
	}

	for {
		witness := c.buckets.observed(actor)
		adopted, installed := c.buckets.install(actor, witness, concrete)
		if installed {
			return conn, nil
		}
		if adopted != nil && adopted.IsValid() {
			return adopted, nil
		}
		// The winner's reference has already expired; retry the install
		// with our own, still fresh, connection.
	}
}
