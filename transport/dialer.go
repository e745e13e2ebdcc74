package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"
)

// dialTimeout bounds a single dial attempt to one gateway.
const dialTimeout = 5 * time.Second

// DialErr wraps a dial failure with the address that was attempted, so
// GatewayManager.MarkAsDead callers can log which endpoint misbehaved.
type DialErr struct {
	Address string
	Cause   error
}

func (e *DialErr) Error() string {
	return fmt.Sprintf("transport: dial %s: %v", e.Address, e.Cause)
}

func (e *DialErr) Unwrap() error { return e.Cause }

type contextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

func dial(ctx context.Context, address string, tlsConfig *tls.Config) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	netDialer := &net.Dialer{Timeout: dialTimeout}

	var dialer contextDialer = netDialer
	if tlsConfig != nil {
		dialer = &tls.Dialer{NetDialer: netDialer, Config: tlsConfig}
	}

	raw, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &DialErr{Address: address, Cause: netErr}
		}
		return nil, &DialErr{Address: address, Cause: err}
	}
	return raw, nil
}
