package netio

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/require"
)

func newLoopbackConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestReceiveLoopForwardsDatagram(t *testing.T) {
	conn := newLoopbackConn(t)
	out := make(chan Datagram, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ReceiveLoop(ctx, conn, out, logging.NewDefaultLoggerFactory().NewLogger("test")) }()

	sender, err := net.DialUDP("udp", nil, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer sender.Close()
	_, err = sender.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case dg := <-out:
		require.Equal(t, []byte("hello"), dg.Payload)
		require.NotNil(t, dg.From)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ReceiveLoop did not exit after cancellation")
	}
}

func TestReceiveLoopExitsCleanlyOnSocketClose(t *testing.T) {
	conn := newLoopbackConn(t)
	out := make(chan Datagram, 1)

	done := make(chan error, 1)
	go func() { done <- ReceiveLoop(context.Background(), conn, out, logging.NewDefaultLoggerFactory().NewLogger("test")) }()

	conn.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ReceiveLoop did not exit after socket close")
	}
}
