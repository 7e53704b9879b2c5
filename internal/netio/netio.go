// Package netio owns the UDP socket's read side: a single goroutine that
// forwards inbound datagrams onto a bounded channel, translated from a
// receive-task/transmit-task split into Go's goroutine-and-channel idiom.
package netio

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/pion/logging"
)

// Datagram pairs a received payload with the address it came from.
type Datagram struct {
	Payload []byte
	From    *net.UDPAddr
}

// InboundCapacity is the bounded channel size between the receive loop and
// its consumer: back-pressure, not application-level drop.
const InboundCapacity = 1024

// ReceiveLoop reads datagrams from conn until ctx is cancelled or the socket
// is closed, forwarding each onto out. Other read errors are logged and the
// loop keeps reading. out is never closed by ReceiveLoop's normal exit path;
// callers own its lifetime.
func ReceiveLoop(ctx context.Context, conn *net.UDPConn, out chan<- Datagram, log logging.LeveledLogger) error {
	// Cancellation unblocks a pending read by expiring its deadline.
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Errorf("udp read failed: %v", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case out <- Datagram{Payload: payload, From: addr}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
