// Package log provides structured protocol logging for WMP.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, engine).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable trace of every line sent and received, every
// connection state change, and every discovery result, for debugging against
// real gateways.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Trace, _ = log.NewFileLogger("/var/log/wmp/gateway.wlog")
//
//	// Both: use MultiLogger
//	cfg.Trace = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// Log files are streams of CBOR-encoded events with integer keys; use
// Reader to iterate them, optionally with a Filter.
package log
