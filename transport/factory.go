package transport

import (
	"context"
	"crypto/tls"

	"go.uber.org/zap"

	"github.com/meshkit/clientgw/ids"
)

// ConnectionFactory dials fresh connections on behalf of ConnectionManager.
// It is one of the declared-external collaborators whose default
// implementation ships in this module (§6): production callers can swap it
// for anything that speaks a different wire protocol or transport.
type ConnectionFactory interface {
	// Dial establishes a new Connection to endpoint. The returned Connection
	// has not had Run called on it yet; the caller owns running it.
	Dial(ctx context.Context, endpoint ids.Endpoint, receiver Receiver, listener Listener) (Connection, error)
}

// TCPConnectionFactory dials plain or TLS TCP connections and wraps them in
// the length-prefixed JSON framing this package implements.
type TCPConnectionFactory struct {
	// TLSConfig is used for every dial when non-nil; nil means plaintext TCP.
	TLSConfig *tls.Config
	Logger    *zap.Logger
}

// NewTCPConnectionFactory returns a TCPConnectionFactory logging through
// logger. A nil logger is replaced with zap.NewNop().
func NewTCPConnectionFactory(tlsConfig *tls.Config, logger *zap.Logger) *TCPConnectionFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TCPConnectionFactory{TLSConfig: tlsConfig, Logger: logger}
}

func (f *TCPConnectionFactory) Dial(ctx context.Context, endpoint ids.Endpoint, receiver Receiver, listener Listener) (Connection, error) {
	raw, err := dial(ctx, endpoint.Address, f.TLSConfig)
	if err != nil {
		return nil, err
	}

	c := newConnection(endpoint, raw, listener, receiver, f.Logger)
	if listener != nil {
		listener.OnConnectionOpened(c)
	}
	return c, nil
}
