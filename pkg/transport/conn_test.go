package transport

import (
	"errors"
	"net"
	"testing"
	"time"
)

// acceptOne starts a loopback listener and hands the accepted conn to fn.
func acceptOne(t *testing.T, fn func(net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		fn(nc)
	}()

	return ln.Addr().String()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollTimeout = 10 * time.Millisecond
	return cfg
}

func TestSendAppendsCR(t *testing.T) {
	got := make(chan []byte, 1)
	addr := acceptOne(t, func(nc net.Conn) {
		buf := make([]byte, 64)
		n, _ := nc.Read(buf)
		got <- buf[:n]
		nc.Close()
	})

	c, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	if err := c.Send("PING"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case data := <-got:
		if string(data) != "PING\r" {
			t.Errorf("wire bytes = %q, want %q", data, "PING\r")
		}
	case <-time.After(time.Second):
		t.Fatal("server saw no data")
	}

	if c.LastSend().IsZero() {
		t.Error("LastSend not recorded")
	}
}

func TestPollFramesLinesAcrossDeliveries(t *testing.T) {
	ready := make(chan net.Conn, 1)
	addr := acceptOne(t, func(nc net.Conn) { ready <- nc })

	c, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()
	server := <-ready
	defer server.Close()

	// First delivery: one complete line plus a partial
	server.Write([]byte("ACK\rCHN,1:MO"))
	time.Sleep(50 * time.Millisecond)

	lines, n, err := c.Poll()
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if n == 0 {
		t.Fatal("Poll received no bytes")
	}
	if len(lines) != 1 || lines[0] != "ACK" {
		t.Errorf("lines = %q, want [ACK]", lines)
	}

	// Second delivery completes the partial
	server.Write([]byte("DE,COOL\r\n"))
	time.Sleep(50 * time.Millisecond)

	lines, _, err = c.Poll()
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(lines) != 1 || lines[0] != "CHN,1:MODE,COOL" {
		t.Errorf("lines = %q, want [CHN,1:MODE,COOL]", lines)
	}

	// Idle poll: no bytes, no error
	lines, n, err = c.Poll()
	if err != nil || n != 0 || len(lines) != 0 {
		t.Errorf("idle poll = %q/%d/%v, want empty", lines, n, err)
	}
}

func TestPollOnPeerCloseForcesShutdown(t *testing.T) {
	addr := acceptOne(t, func(nc net.Conn) {
		nc.Write([]byte("CLOSE\r"))
		nc.Close()
	})

	c, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	lines, _, err := c.Poll()
	if err == nil {
		t.Fatal("expected error after peer close")
	}
	// The framed line before EOF is still delivered
	if len(lines) != 1 || lines[0] != "CLOSE" {
		t.Errorf("lines = %q, want [CLOSE]", lines)
	}
	if !c.Closed() {
		t.Error("connection not closed after read error")
	}

	if _, _, err := c.Poll(); !errors.Is(err, ErrClosed) {
		t.Errorf("Poll on closed = %v, want ErrClosed", err)
	}
	if err := c.Send("PING"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send on closed = %v, want ErrClosed", err)
	}
}

func TestDialProxyHandshake(t *testing.T) {
	addr := acceptOne(t, func(nc net.Conn) {
		nc.Write([]byte("OK WMP proxy 1.2\r\n"))

		buf := make([]byte, 256)
		n, _ := nc.Read(buf)
		directive := string(buf[:n])
		want := "CONN 192.168.1.50:3310 NTFY=gw1 RTIM=500 PACE=1\r"
		if directive != want {
			nc.Write([]byte("ERR\r\n"))
			nc.Close()
			return
		}
		nc.Write([]byte("OK CONN\r\n"))

		// Relay a gateway line
		nc.Write([]byte("PONG:-44\r"))
	})

	c, err := DialProxy(addr, "192.168.1.50", 3310, "gw1", testConfig())
	if err != nil {
		t.Fatalf("DialProxy failed: %v", err)
	}
	defer c.Close()

	if !c.ViaProxy() {
		t.Error("ViaProxy = false, want true")
	}

	time.Sleep(50 * time.Millisecond)
	lines, _, err := c.Poll()
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(lines) != 1 || lines[0] != "PONG:-44" {
		t.Errorf("lines = %q, want [PONG:-44]", lines)
	}
}

func TestDialProxyConfirmBundledWithRelay(t *testing.T) {
	addr := acceptOne(t, func(nc net.Conn) {
		nc.Write([]byte("OK WMP proxy 1.2\r\n"))

		buf := make([]byte, 256)
		nc.Read(buf)

		// Confirmation and relayed gateway lines arrive in one segment.
		nc.Write([]byte("OK CONN\rCHN,1:ONOFF,ON\rPONG:-44\rCHN,1:MO"))
	})

	c, err := DialProxy(addr, "192.168.1.50", 3310, "gw1", testConfig())
	if err != nil {
		t.Fatalf("DialProxy failed: %v", err)
	}
	defer c.Close()

	time.Sleep(50 * time.Millisecond)
	lines, received, err := c.Poll()
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "CHN,1:ONOFF,ON" || lines[1] != "PONG:-44" {
		t.Errorf("lines = %q, want the two relayed lines", lines)
	}
	if received == 0 {
		t.Error("received = 0, relayed lines must count as traffic")
	}
}

func TestSendTimeoutKeepsSessionOpen(t *testing.T) {
	addr := acceptOne(t, func(nc net.Conn) {
		// Hold the socket open without reading.
		time.Sleep(time.Second)
		nc.Close()
	})

	cfg := testConfig()
	cfg.WriteTimeout = time.Nanosecond
	c, err := Dial(addr, cfg)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	err = c.Send("PING")
	if !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("Send = %v, want ErrSendTimeout", err)
	}
	if c.Closed() {
		t.Error("session closed on write timeout, want it kept open")
	}
}

func TestDialProxyBadBanner(t *testing.T) {
	addr := acceptOne(t, func(nc net.Conn) {
		nc.Write([]byte("BUSY\r\n"))
		nc.Close()
	})

	cfg := testConfig()
	cfg.ProxyTimeout = 200 * time.Millisecond
	if _, err := DialProxy(addr, "192.168.1.50", 3310, "gw1", cfg); !errors.Is(err, ErrProxyHandshake) {
		t.Errorf("DialProxy = %v, want ErrProxyHandshake", err)
	}
}

func TestDialProxySilentProxy(t *testing.T) {
	addr := acceptOne(t, func(nc net.Conn) {
		// Never answer
		time.Sleep(time.Second)
		nc.Close()
	})

	cfg := testConfig()
	cfg.ProxyTimeout = 100 * time.Millisecond
	if _, err := DialProxy(addr, "192.168.1.50", 3310, "gw1", cfg); !errors.Is(err, ErrProxyHandshake) {
		t.Errorf("DialProxy = %v, want ErrProxyHandshake", err)
	}
}

func TestDialRefused(t *testing.T) {
	// Grab an address and close the listener so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig()
	cfg.DialTimeout = 500 * time.Millisecond
	if _, err := Dial(addr, cfg); err == nil {
		t.Error("expected dial error")
	}
}
