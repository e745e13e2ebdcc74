package gateway

import (
	"sort"
	"sync"

	"github.com/andrew-d/csmrand"

	"github.com/meshkit/clientgw/ids"
)

// StaticManager is a fixed-membership Manager: the endpoint set never
// changes except via MarkAsDead, which simply removes an entry from the
// live set permanently. It exists for tests and single-process demos where
// there's no real cluster membership service to ask.
type StaticManager struct {
	mu   sync.RWMutex
	live map[ids.Endpoint]struct{}
}

// NewStaticManager returns a StaticManager seeded with endpoints.
func NewStaticManager(endpoints ...ids.Endpoint) *StaticManager {
	live := make(map[ids.Endpoint]struct{}, len(endpoints))
	for _, ep := range endpoints {
		live[ep] = struct{}{}
	}
	return &StaticManager{live: live}
}

// GetLiveGateways returns the live set sorted by Endpoint.String, so the
// order is the same from call to call while the set is unchanged.
func (m *StaticManager) GetLiveGateways() []ids.Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ids.Endpoint, 0, len(m.live))
	for ep := range m.live {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// GetLiveGateway picks uniformly at random among the live set using
// csmrand, so repeated calls from many client processes don't all pile onto
// the same gateway the way a seeded math/rand would if seeds collided.
func (m *StaticManager) GetLiveGateway() (ids.Endpoint, bool) {
	live := m.GetLiveGateways()
	if len(live) == 0 {
		return ids.Endpoint{}, false
	}
	return live[csmrand.Intn(len(live))], true
}

func (m *StaticManager) MarkAsDead(endpoint ids.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, endpoint)
}

func (m *StaticManager) Stop() {}
