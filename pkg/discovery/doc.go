// Package discovery finds WMP gateways. Gateways answer a broadcast
// UDP probe with a one-line description of themselves; Broadcast sends
// the probe and collects replies for a bounded window.
//
// The package also provides AddressResolver implementations used during
// reconnect, when a gateway's stored address stops answering: broadcast
// rediscovery, the OS neighbor table, and a last-resort TCP probe that
// confirms a candidate by asking it for its identity.
package discovery
