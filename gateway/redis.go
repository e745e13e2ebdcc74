package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgryski/go-rendezvous"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meshkit/clientgw/ids"
)

const (
	liveSetKey      = "clientgw:gateways:live"
	quarantineKey   = "clientgw:gateways:quarantine"
	quarantineTTL   = 30 * time.Second
	refreshInterval = 2 * time.Second
)

// RedisManager shares gateway liveness across every client process in the
// deployment through a Redis set (the live membership, maintained by
// whatever side of the cluster publishes it) and a sorted set used as a
// quarantine: MarkAsDead adds endpoint with a score of "now", and any
// member scored within quarantineTTL of now is treated as dead by every
// client reading the set, not just the one that called MarkAsDead.
//
// Picking among several live, non-quarantined gateways uses rendezvous
// (highest random weight) hashing keyed on the calling process's identity,
// so repeated calls from one client consistently favor the same gateway
// without every client in the fleet converging on one "winner" the way a
// plain max-hash pick would.
type RedisManager struct {
	rdb      *redis.Client
	logger   *zap.Logger
	clientID string

	cancel context.CancelFunc
	done   chan struct{}

	cache *liveCache
}

type liveCache struct {
	endpoints []ids.Endpoint
	hasher    *rendezvous.Rendezvous
}

// NewRedisManager returns a RedisManager polling rdb every refreshInterval
// for the current live/quarantine state. clientID seeds the rendezvous pick
// so repeated GetLiveGateway calls from this process are sticky.
func NewRedisManager(rdb *redis.Client, clientID string, logger *zap.Logger) *RedisManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &RedisManager{
		rdb:      rdb,
		logger:   logger,
		clientID: clientID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go m.refreshLoop(ctx)
	return m
}

func (m *RedisManager) refreshLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	m.refreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshOnce(ctx)
		}
	}
}

func (m *RedisManager) refreshOnce(ctx context.Context) {
	live, err := m.rdb.SMembers(ctx, liveSetKey).Result()
	if err != nil {
		m.logger.Warn("gateway: refresh live set", zap.Error(err))
		return
	}

	cutoff := float64(time.Now().Add(-quarantineTTL).Unix())
	quarantined, err := m.rdb.ZRangeByScore(ctx, quarantineKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%f", cutoff),
		Max: "+inf",
	}).Result()
	if err != nil {
		m.logger.Warn("gateway: refresh quarantine set", zap.Error(err))
		return
	}
	dead := make(map[string]struct{}, len(quarantined))
	for _, q := range quarantined {
		dead[q] = struct{}{}
	}

	endpoints := make([]ids.Endpoint, 0, len(live))
	keys := make([]string, 0, len(live))
	for _, raw := range live {
		if _, isDead := dead[raw]; isDead {
			continue
		}
		ep, err := parseEndpointKey(raw)
		if err != nil {
			continue
		}
		endpoints = append(endpoints, ep)
		keys = append(keys, raw)
	}

	hasher := rendezvous.New(keys, stringHash)
	m.cache = &liveCache{endpoints: endpoints, hasher: hasher}
}

func (m *RedisManager) GetLiveGateways() []ids.Endpoint {
	c := m.cache
	if c == nil {
		return nil
	}
	out := make([]ids.Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

func (m *RedisManager) GetLiveGateway() (ids.Endpoint, bool) {
	c := m.cache
	if c == nil || len(c.endpoints) == 0 {
		return ids.Endpoint{}, false
	}
	picked := c.hasher.Get(m.clientID)
	for _, ep := range c.endpoints {
		if ep.String() == picked {
			return ep, true
		}
	}
	return c.endpoints[0], true
}

// MarkAsDead quarantines endpoint for every client sharing this Redis
// instance, not just this process: a score of "now" means the endpoint
// stays quarantined until quarantineTTL elapses, even if this client exits.
func (m *RedisManager) MarkAsDead(endpoint ids.Endpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := m.rdb.ZAdd(ctx, quarantineKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: endpoint.String(),
	}).Err(); err != nil {
		m.logger.Warn("gateway: mark as dead", zap.String("endpoint", endpoint.String()), zap.Error(err))
	}
}

func (m *RedisManager) Stop() {
	m.cancel()
	<-m.done
}

func parseEndpointKey(raw string) (ids.Endpoint, error) {
	sep := strings.LastIndexByte(raw, '#')
	if sep < 0 {
		return ids.Endpoint{}, fmt.Errorf("gateway: malformed endpoint key %q", raw)
	}
	gen, err := strconv.ParseUint(raw[sep+1:], 10, 32)
	if err != nil {
		return ids.Endpoint{}, fmt.Errorf("gateway: malformed endpoint key %q: %w", raw, err)
	}
	return ids.NewEndpoint(raw[:sep], uint32(gen)), nil
}

func stringHash(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
