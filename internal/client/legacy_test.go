package client

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"
)

func encodeResponse(t *testing.T, rows [][]float64) []byte {
	t.Helper()
	doubleCount := len(rows) * 10
	out := make([]byte, 4+doubleCount*8)
	binary.BigEndian.PutUint32(out[0:4], uint32(doubleCount))
	off := 4
	for _, row := range rows {
		for _, v := range row {
			binary.BigEndian.PutUint64(out[off:off+8], math.Float64bits(v))
			off += 8
		}
	}
	return out
}

func serveOnePoll(t *testing.T, ln net.Listener, rows [][]float64) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	buf := make([]byte, 4+860)
	if _, err := fillExact(conn, buf); err != nil {
		t.Logf("server read request: %v", err)
		return
	}
	resp := encodeResponse(t, rows)
	if _, err := conn.Write(resp); err != nil {
		t.Logf("server write response: %v", err)
	}
}

func fillExact(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestLegacyClient_PollRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	rows := [][]float64{
		{1.0, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		{2.0, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
	go serveOnePoll(t, ln, rows)

	c := NewLegacyClient(time.Second)
	if err := c.Connect(ln.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	resp, err := c.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if resp == nil {
		t.Fatalf("Poll returned nil block")
	}
	if resp.SampleCount() != 2 {
		t.Fatalf("SampleCount = %d, want 2", resp.SampleCount())
	}
	if resp.FirstTimestamp() != 1.0 || resp.LastTimestamp() != 2.0 {
		t.Fatalf("timestamps = %v..%v", resp.FirstTimestamp(), resp.LastTimestamp())
	}
}

func TestLegacyClient_MonotonicityGuardDropsStaleBlock(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// First poll: times 5..6.
		buf := make([]byte, 4+860)
		if _, err := fillExact(conn, buf); err != nil {
			return
		}
		if _, err := conn.Write(encodeResponse(t, [][]float64{
			{5.0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			{6.0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		})); err != nil {
			return
		}
		// Second poll: stale block starting before 6.0.
		if _, err := fillExact(conn, buf); err != nil {
			return
		}
		_, _ = conn.Write(encodeResponse(t, [][]float64{
			{3.0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		}))
	}()

	c := NewLegacyClient(time.Second)
	if err := c.Connect(ln.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	first, err := c.Poll()
	if err != nil || first == nil {
		t.Fatalf("first Poll: block=%v err=%v", first, err)
	}
	second, err := c.Poll()
	if err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if second != nil {
		t.Fatalf("stale block must be dropped, got %v", second)
	}
}

// TestLegacyClient_SocketFailureLeavesClientUsable verifies spec §4.4's
// socket-failure behavior: a read/write error on Poll returns (nil, nil)
// without forcing a disconnect, leaving the caller in control of when to
// reconnect, matching tcp_pedal_device.py's get_next_data().
func TestLegacyClient_SocketFailureLeavesClientUsable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Accept the request and close the connection without responding,
		// forcing the client's read to fail.
		buf := make([]byte, 4+860)
		_, _ = fillExact(conn, buf)
		conn.Close()
	}()

	c := NewLegacyClient(time.Second)
	if err := c.Connect(ln.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	resp, err := c.Poll()
	if err != nil {
		t.Fatalf("Poll: unexpected error %v", err)
	}
	if resp != nil {
		t.Fatalf("Poll: expected nil block on socket failure, got %v", resp)
	}
	if !c.Connected() {
		t.Fatalf("client must remain Connected after a socket failure; caller decides when to Disconnect")
	}
}
