package ids

import "github.com/cespare/xxhash/v2"

// Kind classifies what an ActorId actually names.
type Kind uint8

const (
	// KindGrain addresses an ordinary actor/grain hosted somewhere in the cluster.
	KindGrain Kind = iota
	// KindClient addresses this process's own client identity.
	KindClient
	// KindGeoClient addresses a client identity that has been promoted to
	// geo-distributed addressing by the cluster (see UpdateClientId).
	KindGeoClient
	// KindSystem addresses a cluster-internal system target (e.g. the
	// membership or directory service); messages to it bypass the sticky
	// bucket table, see IsSystemTarget below.
	KindSystem
)

// ActorId is an opaque, comparable identity. Key is whatever the upper
// layer uses to name the actor (grain key, client guid, system target
// name); Kind distinguishes the handful of addressing regimes that affect
// routing.
type ActorId struct {
	Key  string
	Kind Kind
}

// NewClientId mints a fresh Client-kind identity for key.
func NewClientId(key string) ActorId {
	return ActorId{Key: key, Kind: KindClient}
}

// NewSystemTargetId mints a System-kind identity for key.
func NewSystemTargetId(key string) ActorId {
	return ActorId{Key: key, Kind: KindSystem}
}

// IsSystemTarget reports whether messages to this id must skip the sticky
// bucket table and round-robin across all live gateways instead (§4.2 rule 2).
func (a ActorId) IsSystemTarget() bool {
	return a.Kind == KindSystem
}

// Hash returns a stable, non-cryptographic, unsigned 32-bit hash of the
// identity, used solely to pick a bucket index. It deliberately ignores
// Kind: two actors with the same key but different kinds should still be
// rare enough in practice that collision cost isn't worth the extra mixing,
// and keeping the hash a pure function of Key makes it easy to reason about
// in tests.
func (a ActorId) Hash() uint32 {
	return uint32(xxhash.Sum64String(a.Key))
}

// String renders the identity for logging.
func (a ActorId) String() string {
	switch a.Kind {
	case KindClient:
		return "client:" + a.Key
	case KindGeoClient:
		return "geoclient:" + a.Key
	case KindSystem:
		return "system:" + a.Key
	default:
		return "grain:" + a.Key
	}
}
