// Package gateway is the engine of the WMP client: one Gateway per
// physical gateway, owning its session, deriving unit state from
// inbound traffic, pacing outbound commands to one line per tick, and
// reconnecting with rediscovery when the gateway moves.
//
// Gateways never start goroutines; all periodic work runs as tasks on
// a shared scheduler. The Registry keys gateways by hardware identifier
// and routes discovery replies: known gateways get an address refresh,
// unknown ones are announced to the host's Provisioner.
package gateway
