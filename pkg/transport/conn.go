package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wmp-protocol/wmp-go/pkg/log"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// Connection errors.
var (
	// ErrClosed indicates an operation on a closed connection.
	ErrClosed = errors.New("connection closed")

	// ErrProxyHandshake indicates the relay-proxy negotiation failed.
	ErrProxyHandshake = errors.New("proxy handshake failed")

	// ErrSendTimeout indicates a write deadline expired. The session
	// stays open; the caller may retry the line.
	ErrSendTimeout = errors.New("send timeout")
)

// Config configures a gateway connection.
type Config struct {
	// DialTimeout bounds the TCP connect (default: 5s).
	DialTimeout time.Duration

	// WriteTimeout bounds each line write (default: 5s).
	WriteTimeout time.Duration

	// ProxyTimeout bounds each proxy handshake step (default: 2s).
	ProxyTimeout time.Duration

	// PollTimeout is the read deadline for one Poll pass (default: 20ms).
	// Near zero so Poll never stalls the caller.
	PollTimeout time.Duration

	// MaxPollBytes caps the bytes drained by one Poll call (default: 16KB)
	// so a flooding gateway cannot starve the scheduler.
	MaxPollBytes int

	// GatewayID is stamped into trace events.
	GatewayID string

	// Trace receives protocol events. Nil disables tracing.
	Trace log.Logger
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		ProxyTimeout: 2 * time.Second,
		PollTimeout:  20 * time.Millisecond,
		MaxPollBytes: 16 * 1024,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ProxyTimeout <= 0 {
		c.ProxyTimeout = def.ProxyTimeout
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = def.PollTimeout
	}
	if c.MaxPollBytes <= 0 {
		c.MaxPollBytes = def.MaxPollBytes
	}
	if c.Trace == nil {
		c.Trace = log.NoopLogger{}
	}
}

// Conn is one TCP session to one gateway.
type Conn struct {
	cfg Config
	id  string

	mu       sync.Mutex
	conn     net.Conn
	scanner  *wire.LineScanner
	pending  []string // lines framed during the proxy handshake
	viaProxy bool
	closed   bool
	lastSend time.Time
	lastRecv time.Time
}

// Dial opens a direct TCP session to the gateway at addr (host:port).
func Dial(addr string, cfg Config) (*Conn, error) {
	cfg.applyDefaults()

	nc, err := net.DialTimeout("tcp", addr, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newConn(nc, cfg, false), nil
}

// DialProxy opens a session through the local relay proxy at proxyAddr.
// The proxy is asked to hold the session to targetHost:targetPort and
// notify notifyID when data arrives. The handshake is a one-line "OK"
// banner, a CONN directive, and a one-line "OK CONN" confirmation; any
// deviation fails with ErrProxyHandshake and the caller falls back to a
// direct dial.
func DialProxy(proxyAddr, targetHost string, targetPort int, notifyID string, cfg Config) (*Conn, error) {
	cfg.applyDefaults()

	nc, err := net.DialTimeout("tcp", proxyAddr, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial proxy %s: %w", proxyAddr, err)
	}

	scanner := wire.NewLineScanner()
	var queued []string

	banner, err := nextLine(nc, scanner, &queued, cfg.ProxyTimeout)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: banner: %v", ErrProxyHandshake, err)
	}
	if !strings.HasPrefix(banner, "OK") {
		nc.Close()
		return nil, fmt.Errorf("%w: unexpected banner %q", ErrProxyHandshake, banner)
	}

	directive := wire.FormatProxyConnect(targetHost, targetPort, notifyID, 500*time.Millisecond)
	nc.SetWriteDeadline(time.Now().Add(cfg.ProxyTimeout))
	if _, err := nc.Write([]byte(directive + "\r")); err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: directive: %v", ErrProxyHandshake, err)
	}
	nc.SetWriteDeadline(time.Time{})

	confirm, err := nextLine(nc, scanner, &queued, cfg.ProxyTimeout)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: confirmation: %v", ErrProxyHandshake, err)
	}
	if !strings.HasPrefix(confirm, "OK CONN") {
		nc.Close()
		return nil, fmt.Errorf("%w: unexpected confirmation %q", ErrProxyHandshake, confirm)
	}

	c := newConn(nc, cfg, true)
	// Keep anything the proxy flushed alongside the handshake: the
	// scanner holds unterminated bytes, queued holds complete lines.
	// Both surface through the first Poll.
	c.scanner = scanner
	c.pending = queued
	return c, nil
}

func newConn(nc net.Conn, cfg Config, viaProxy bool) *Conn {
	c := &Conn{
		cfg:      cfg,
		id:       uuid.New().String(),
		conn:     nc,
		scanner:  wire.NewLineScanner(),
		viaProxy: viaProxy,
		lastRecv: time.Now(),
	}

	reason := "direct"
	if viaProxy {
		reason = "proxy"
	}
	c.trace(log.Event{
		Direction: log.DirectionOut,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.EntityConnection,
			OldState: "DISCONNECTED",
			NewState: "CONNECTED",
			Reason:   reason,
		},
	})
	return c
}

// ID returns the session's unique identifier.
func (c *Conn) ID() string { return c.id }

// ViaProxy reports whether the session runs through the relay proxy.
func (c *Conn) ViaProxy() bool { return c.viaProxy }

// RemoteAddr returns the peer address, or "" when closed.
func (c *Conn) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Closed reports whether the session has been closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastSend returns the time of the last successful write.
func (c *Conn) LastSend() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSend
}

// LastReceive returns the time of the last received byte.
func (c *Conn) LastReceive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRecv
}

// Send writes one protocol line, appending the CR terminator. A write
// timeout is returned to the caller with the session left open; any
// other write error force-closes the session so the next attempt starts
// clean.
func (c *Conn) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	_, err := c.conn.Write([]byte(line + "\r"))
	c.conn.SetWriteDeadline(time.Time{})

	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrSendTimeout, err)
		}
		c.closeLocked("write error")
		return fmt.Errorf("send: %w", err)
	}

	c.lastSend = time.Now()
	c.trace(log.Event{
		Direction: log.DirectionOut,
		Category:  log.CategoryLine,
		Line:      log.NewLineEvent(line),
	})
	return nil
}

// Poll drains available bytes without blocking and returns the complete
// lines they terminate plus the byte count received. An empty poll
// returns (nil, 0, nil). A read error other than the deadline
// force-closes the session and is returned; lines already framed are
// still delivered.
func (c *Conn) Poll() (lines []string, received int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, 0, ErrClosed
	}

	// Lines relayed during the proxy handshake come out first. They
	// count as received traffic: the bytes did arrive on this session.
	for _, line := range c.pending {
		received += len(line) + 1
		c.lastRecv = time.Now()
		c.trace(log.Event{
			Direction: log.DirectionIn,
			Category:  log.CategoryLine,
			Line:      log.NewLineEvent(line),
		})
		lines = append(lines, line)
	}
	c.pending = nil

	buf := make([]byte, 512)
	for received < c.cfg.MaxPollBytes {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PollTimeout))
		n, rerr := c.conn.Read(buf)
		if n > 0 {
			received += n
			c.lastRecv = time.Now()
			for _, line := range c.scanner.Push(buf[:n]) {
				c.trace(log.Event{
					Direction: log.DirectionIn,
					Category:  log.CategoryLine,
					Line:      log.NewLineEvent(line),
				})
				lines = append(lines, line)
			}
		}
		if rerr != nil {
			if isTimeout(rerr) {
				break
			}
			c.closeLocked("read error")
			return lines, received, fmt.Errorf("poll: %w", rerr)
		}
	}
	c.conn.SetReadDeadline(time.Time{})
	return lines, received, nil
}

// Close releases the socket. Safe to call multiple times.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked("closed by caller")
}

// closeLocked releases the socket. Caller holds c.mu.
func (c *Conn) closeLocked(reason string) {
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
	c.conn = nil

	c.trace(log.Event{
		Direction: log.DirectionOut,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.EntityConnection,
			OldState: "CONNECTED",
			NewState: "DISCONNECTED",
			Reason:   reason,
		},
	})
}

// trace emits a protocol event with the session identifiers filled in.
func (c *Conn) trace(ev log.Event) {
	ev.Timestamp = time.Now()
	ev.ConnectionID = c.id
	ev.GatewayID = c.cfg.GatewayID
	ev.Layer = log.LayerTransport
	if c.conn != nil {
		ev.RemoteAddr = c.conn.RemoteAddr().String()
	}
	c.cfg.Trace.Log(ev)
}

// isTimeout reports whether err is a transient deadline expiry.
func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// nextLine returns one CR/LF-terminated line during the proxy
// handshake. A relayed segment can terminate several lines at once;
// the surplus goes into queued and is served before the socket is read
// again. Bounded by the given timeout.
func nextLine(nc net.Conn, scanner *wire.LineScanner, queued *[]string, timeout time.Duration) (string, error) {
	if len(*queued) > 0 {
		line := (*queued)[0]
		*queued = (*queued)[1:]
		return line, nil
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)

	for {
		if time.Now().After(deadline) {
			return "", errors.New("timeout")
		}
		nc.SetReadDeadline(deadline)
		n, err := nc.Read(buf)
		if n > 0 {
			if lines := scanner.Push(buf[:n]); len(lines) > 0 {
				nc.SetReadDeadline(time.Time{})
				*queued = append(*queued, lines[1:]...)
				return lines[0], nil
			}
		}
		if err != nil {
			return "", err
		}
	}
}
