package gateway

import (
	"sync"

	"github.com/wmp-protocol/wmp-go/pkg/log"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// Registry holds the known gateways, keyed by hardware identifier. It
// routes discovery results: replies from known gateways refresh their
// stored address, unknown compatible gateways go to the provisioner.
type Registry struct {
	mu          sync.RWMutex
	gateways    map[string]*Gateway
	provisioner Provisioner
	trace       log.Logger
}

// NewRegistry creates an empty registry. The provisioner may be nil, in
// which case unknown gateways are dropped silently.
func NewRegistry(provisioner Provisioner) *Registry {
	return &Registry{
		gateways:    make(map[string]*Gateway),
		provisioner: provisioner,
		trace:       log.NoopLogger{},
	}
}

// SetTrace installs a protocol event logger for discovery routing.
func (r *Registry) SetTrace(trace log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trace == nil {
		trace = log.NoopLogger{}
	}
	r.trace = trace
}

// Add registers a gateway under its normalized hardware identifier.
// An existing entry for the same identifier is replaced.
func (r *Registry) Add(g *Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.MAC()] = g
}

// Remove stops and drops a gateway.
func (r *Registry) Remove(mac string) {
	mac = wire.NormalizeMAC(mac)
	r.mu.Lock()
	g, ok := r.gateways[mac]
	delete(r.gateways, mac)
	r.mu.Unlock()
	if ok {
		g.Stop()
	}
}

// Gateway looks up a gateway by its hardware identifier.
func (r *Registry) Gateway(mac string) (*Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[wire.NormalizeMAC(mac)]
	return g, ok
}

// Gateways returns the registered gateways.
func (r *Registry) Gateways() []*Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Gateway, 0, len(r.gateways))
	for _, g := range r.gateways {
		out = append(out, g)
	}
	return out
}

// Len returns the number of registered gateways.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.gateways)
}

// HandleDiscovery routes one discovery reply. Known gateways get an
// address refresh and nothing else changes; unknown compatible gateways
// are announced to the provisioner, which owns the adoption decision.
// Incompatible replies are dropped.
func (r *Registry) HandleDiscovery(rec wire.DiscoveryRecord) {
	r.mu.RLock()
	g, known := r.gateways[rec.MAC]
	provisioner := r.provisioner
	trace := r.trace
	r.mu.RUnlock()

	if !rec.Compatible() {
		return
	}

	trace.Log(log.Event{
		GatewayID: rec.MAC,
		Direction: log.DirectionIn,
		Layer:     log.LayerDiscovery,
		Category:  log.CategoryDiscovery,
		Discovery: &log.DiscoveryEvent{
			Model:    rec.Model,
			MAC:      rec.MAC,
			IP:       rec.IP,
			Name:     rec.Name,
			Accepted: true,
		},
	})

	if known {
		g.UpdateAddress(rec.IP)
		return
	}
	if provisioner != nil {
		provisioner.AnnounceGateway(rec)
	}
}
