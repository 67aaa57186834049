// Package persistence stores gateway attributes in a JSON file so that
// learned state (the gateway's last known address, cadence overrides,
// unit counts) survives restarts.
//
// The FileStore satisfies the gateway engine's AttributeStore; hosts
// with their own settings system can ignore this package and implement
// the interface themselves.
package persistence
