// Package transport manages the TCP session to a WMP gateway.
//
// A Conn is one socket bound to one gateway. There is no blocking I/O:
// writes carry a short deadline, and reads happen through Poll, which
// drains whatever bytes are available under a near-zero deadline and
// returns the complete protocol lines they form. Callers drive Poll from
// a scheduled task, shrinking the poll delay while the gateway is chatty
// and backing it off geometrically while idle (see Backoff).
//
// An optional relay proxy can hold the session on the client's behalf:
// Dial negotiates the proxy handshake first when configured and falls
// back to a direct connection.
package transport
