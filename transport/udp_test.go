package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindRejectsNilDispatch(t *testing.T) {
	_, err := Bind(UDPConfig{Addr: "127.0.0.1:0"}, nil)
	assert.Error(t, err)
}

func TestBindAndDispatch(t *testing.T) {
	var mu sync.Mutex
	var got [][]byte

	ep, err := Bind(UDPConfig{Addr: "127.0.0.1:0"}, func(data []byte, addr net.Addr, recvTime time.Time) {
		mu.Lock()
		got = append(got, data)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer ep.Close()

	conn, err := net.Dial("udp", ep.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	_, err = conn.Write([]byte{4, 5})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte{1, 2, 3}, got[0])
	assert.Equal(t, []byte{4, 5}, got[1])
}

func TestBindAddressInUse(t *testing.T) {
	dispatch := func([]byte, net.Addr, time.Time) {}

	first, err := Bind(UDPConfig{Addr: "127.0.0.1:0"}, dispatch)
	require.NoError(t, err)
	defer first.Close()

	_, err = Bind(UDPConfig{Addr: first.LocalAddr().String()}, dispatch)
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestCloseStopsLoop(t *testing.T) {
	ep, err := Bind(UDPConfig{Addr: "127.0.0.1:0"}, func([]byte, net.Addr, time.Time) {})
	require.NoError(t, err)
	require.NoError(t, ep.Close())
}
