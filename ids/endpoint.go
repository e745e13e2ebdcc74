// Package ids defines the addressing primitives the message center routes
// on: gateway Endpoints and ActorIds.
package ids

import "fmt"

// Endpoint identifies one gateway: an address plus the epoch/generation the
// gateway was assigned when it joined the cluster. Two endpoints are equal
// iff both the address and the generation match, so a restarted gateway that
// reuses an address is never confused with its predecessor.
type Endpoint struct {
	Address    string
	Generation uint32
}

// NewEndpoint builds an Endpoint for a given address and generation.
func NewEndpoint(address string, generation uint32) Endpoint {
	return Endpoint{Address: address, Generation: generation}
}

// String renders the endpoint for logging and as a stable map key.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s#%d", e.Address, e.Generation)
}

// IsZero reports whether e is the zero-value Endpoint (no address set).
func (e Endpoint) IsZero() bool {
	return e.Address == ""
}
