// Package gateway declares the GatewayManager collaborator (§6) and ships
// two concrete implementations: an in-memory StaticManager for tests and
// single-process demos, and a Redis-backed RedisManager for a real
// deployment sharing liveness state across client processes.
package gateway

import "github.com/meshkit/clientgw/ids"

// Manager reports which gateways are currently believed live, picks one for
// a caller that doesn't care which, and records quarantine when a
// connection to a gateway has proven unusable. Production deployments
// implement this against whatever membership/liveness system the cluster
// already runs; this module only declares the shape ClientMessageCenter needs.
type Manager interface {
	// GetLiveGateways returns every endpoint currently believed live. The
	// returned slice is a snapshot; callers must not mutate it.
	GetLiveGateways() []ids.Endpoint
	// GetLiveGateway picks one live endpoint. ok is false iff no gateway is
	// currently believed live (§4.2 "no live gateways" rejection path).
	GetLiveGateway() (ids.Endpoint, bool)
	// MarkAsDead records that endpoint should be treated as unreachable
	// until the manager's own liveness mechanism clears it. It is not the
	// caller's job to decide when a quarantined gateway returns to the pool.
	MarkAsDead(endpoint ids.Endpoint)
	// Stop releases any background resources (subscriptions, polling
	// goroutines, client connections) the manager holds.
	Stop()
}
