package gateway

import (
	"strconv"
	"sync"
	"time"
)

// Attribute keys persisted per gateway.
const (
	// AttrPingInterval is the keepalive cadence, in seconds.
	AttrPingInterval = "pingInterval"

	// AttrRefreshInterval is the state refresh cadence, in seconds.
	AttrRefreshInterval = "refreshInterval"

	// AttrForceUnits overrides the advertised unit count.
	AttrForceUnits = "forceUnits"

	// AttrUseProxy enables relay-proxy sessions ("true"/"false").
	AttrUseProxy = "useProxy"

	// AttrGatewayID is the operator-assigned identifier used in the
	// proxy NTFY handshake.
	AttrGatewayID = "gatewayID"

	// AttrIPAddress is the last address the gateway answered on.
	AttrIPAddress = "ipAddress"
)

// AttributeStore persists per-gateway string attributes across restarts.
// Implementations must be safe for concurrent use.
type AttributeStore interface {
	// Get returns the attribute value for a gateway, if set.
	Get(mac, key string) (string, bool)

	// Set stores an attribute value for a gateway.
	Set(mac, key, value string) error
}

// MemoryStore is an in-process AttributeStore. Useful for tests and for
// hosts that persist attributes elsewhere.
type MemoryStore struct {
	mu    sync.RWMutex
	attrs map[string]map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attrs: make(map[string]map[string]string)}
}

// Get returns the attribute value for a gateway, if set.
func (s *MemoryStore) Get(mac, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[mac][key]
	return v, ok
}

// Set stores an attribute value for a gateway.
func (s *MemoryStore) Set(mac, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.attrs[mac]
	if !ok {
		m = make(map[string]string)
		s.attrs[mac] = m
	}
	m[key] = value
	return nil
}

var _ AttributeStore = (*MemoryStore)(nil)

// durationAttr reads a seconds-valued attribute, falling back to def.
func durationAttr(store AttributeStore, mac, key string, def time.Duration) time.Duration {
	v, ok := store.Get(mac, key)
	if !ok {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// intAttr reads an integer attribute, falling back to def.
func intAttr(store AttributeStore, mac, key string, def int) int {
	v, ok := store.Get(mac, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// boolAttr reads a boolean attribute, falling back to def.
func boolAttr(store AttributeStore, mac, key string, def bool) bool {
	v, ok := store.Get(mac, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
