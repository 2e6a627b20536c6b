// Package dgram is the datagram transport adapter: whole-datagram send and
// receive over UDP with a receive timeout and a 64 KiB size bound (spec
// §4.3). Built directly on stdlib net.UDPConn — no third-party UDP library
// in the retrieved corpus improves on whole-datagram semantics over
// net.UDPConn (see DESIGN.md).
package dgram

import (
	"errors"
	"net"
	"time"

	"github.com/kstaniek/pedalnet/internal/wire"
)

// ErrTimeout is returned by Recv when no datagram arrives before the
// deadline; per spec §7 this is silent and non-fatal at the call site.
var ErrTimeout = errors.New("dgram: timeout")

// Send transmits one datagram atomically to peer.
func Send(conn *net.UDPConn, peer *net.UDPAddr, payload []byte) error {
	_, err := conn.WriteToUDP(payload, peer)
	return err
}

// Recv returns one whole datagram (up to wire.MaxDatagramSize) and its
// sender, or ErrTimeout after deadline elapses. A datagram larger than the
// buffer is truncated by the kernel; decoding it downstream surfaces
// wire.ErrBadShape.
func Recv(conn *net.UDPConn, deadline time.Duration) ([]byte, *net.UDPAddr, error) {
	if deadline > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return nil, nil, err
		}
	}
	buf := make([]byte, wire.MaxDatagramSize)
	n, peer, err := conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, ErrTimeout
		}
		return nil, nil, err
	}
	return buf[:n], peer, nil
}
