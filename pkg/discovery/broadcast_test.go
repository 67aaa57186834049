package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// newResponder runs a UDP peer that answers the first probe with the
// given datagrams.
func newResponder(t *testing.T, replies ...string) string {
	t.Helper()
	sock, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })

	go func() {
		buf := make([]byte, 256)
		_, from, err := sock.ReadFromUDP(buf)
		if err != nil {
			return
		}
		for _, r := range replies {
			sock.WriteToUDP([]byte(r), from)
		}
	}()
	return sock.LocalAddr().String()
}

func TestBroadcastCollectsReplies(t *testing.T) {
	addr := newResponder(t,
		"DISCOVER:MH-AC-WMP-1,CC3F1D0163D5,192.168.1.10,ASCII,v1.2.3,-45,Office,N,1",
		"DISCOVER:MH-RC-WMP-1,AABBCCDDEEFF,192.168.1.11,ASCII,v1.2.3,-60,Lobby,N,1",
	)

	records, err := Broadcast(context.Background(), Config{Addr: addr, Window: 500 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "CC3F1D0163D5", records[0].MAC)
	assert.Equal(t, "192.168.1.10", records[0].IP)
	assert.Equal(t, "AABBCCDDEEFF", records[1].MAC)
}

func TestBroadcastFiltersForeignReplies(t *testing.T) {
	addr := newResponder(t,
		"DISCOVER:MH-AC-WMP-1,CC3F1D0163D5,192.168.1.10,ASCII,v1.2.3,-45,Office,N,1",
		// Same gateway answering on a second interface.
		"DISCOVER:MH-AC-WMP-1,CC3F1D0163D5,10.0.0.10,ASCII,v1.2.3,-45,Office,N,1",
		// Different protocol family on the same port.
		"DISCOVER:OTHER-BOX,112233445566,192.168.1.90,MODBUS,v1,0,X,N,1",
		// The probe echoing back, and plain garbage.
		"DISCOVER",
		"hello world",
	)

	records, err := Broadcast(context.Background(), Config{Addr: addr, Window: 500 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "192.168.1.10", records[0].IP)
}

func TestBroadcastOnRecord(t *testing.T) {
	addr := newResponder(t,
		"DISCOVER:MH-AC-WMP-1,CC3F1D0163D5,192.168.1.10,ASCII,v1.2.3,-45,Office,N,1",
	)

	var streamed []string
	_, err := Broadcast(context.Background(), Config{
		Addr:   addr,
		Window: 500 * time.Millisecond,
		OnRecord: func(rec wire.DiscoveryRecord) {
			streamed = append(streamed, rec.MAC)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CC3F1D0163D5"}, streamed)
}

func TestBroadcastContextCancel(t *testing.T) {
	addr := newResponder(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Broadcast(ctx, Config{Addr: addr, Window: 5 * time.Second})
	assert.ErrorIs(t, err, context.Canceled)
}
