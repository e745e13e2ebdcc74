// Command example runs a tiny in-process demo of the client message
// center: it starts a couple of loopback TCP listeners standing in for
// gateways, wires a StaticManager in front of them, sends a handful of
// messages, and prints what comes back on the inbound reader.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/meshkit/clientgw/clientmc"
	"github.com/meshkit/clientgw/gateway"
	"github.com/meshkit/clientgw/ids"
	"github.com/meshkit/clientgw/message"
	"github.com/meshkit/clientgw/transport"
)

func main() {
	gatewayCount := flag.Int("gateways", 2, "number of loopback gateways to simulate")
	messageCount := flag.Int("messages", 5, "number of demo messages to send")
	verbose := flag.Bool("v", false, "enable development (debug) logging")
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	listeners, endpoints, err := startLoopbackGateways(*gatewayCount)
	if err != nil {
		logger.Fatal("start loopback gateways", zap.Error(err))
	}
	for _, l := range listeners {
		go echoGateway(l, logger)
	}
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	gatewayMgr := gateway.NewStaticManager(endpoints...)
	connFactory := transport.NewTCPConnectionFactory(nil, logger)

	clientID := ids.NewClientId("demo-client")
	secret := []byte("demo-signing-secret-change-in-production")
	center := clientmc.New(gatewayMgr, connFactory, clientID, secret, logger)

	ctx := context.Background()
	if err := center.Start(ctx); err != nil {
		logger.Fatal("start message center", zap.Error(err))
	}
	defer center.Dispose()

	reader := center.GetReader(message.CategoryResponse)
	go func() {
		for msg := range reader {
			fmt.Printf("received: category=%s actor=%s body=%s\n", msg.Category, msg.TargetActor, msg.Body)
		}
	}()

	for i := 0; i < *messageCount; i++ {
		actor := ids.NewClientId(fmt.Sprintf("actor-%d", i%3))
		msg := &message.Message{
			Category:      message.CategoryRequest,
			Direction:     message.DirectionRequest,
			TargetActor:   actor,
			CorrelationID: fmt.Sprintf("req-%d", i),
			Body:          []byte(fmt.Sprintf("hello from demo message %d", i)),
		}
		center.SendMessage(ctx, msg)
	}

	time.Sleep(500 * time.Millisecond)
	fmt.Printf("gateways connected: %d\n", center.GatewayCount())
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func startLoopbackGateways(n int) ([]net.Listener, []ids.Endpoint, error) {
	listeners := make([]net.Listener, 0, n)
	endpoints := make([]ids.Endpoint, 0, n)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			return nil, nil, fmt.Errorf("listen: %w", err)
		}
		listeners = append(listeners, l)
		endpoints = append(endpoints, ids.NewEndpoint(l.Addr().String(), uint32(i+1)))
	}
	return listeners, endpoints, nil
}

// echoGateway accepts connections and discards whatever it reads; it exists
// only so the demo client has a live TCP peer to dial, not to exercise the
// framed protocol both directions (that's covered by transport's own tests).
func echoGateway(l net.Listener, logger *zap.Logger) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			defer c.Close()
			buf := make([]byte, 4096)
			for {
				if _, err := c.Read(buf); err != nil {
					return
				}
			}
		}(conn)
	}
}
