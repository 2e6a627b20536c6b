package client

import (
	"net"
	"testing"
	"time"

	"github.com/kstaniek/pedalnet/internal/streamio"
	"github.com/kstaniek/pedalnet/internal/wire"
)

// fakeEmulator answers SET_CONFIG, START, and STOP with ACK on one session,
// just enough to exercise SplitClient's handshake and teardown.
func fakeEmulator(t *testing.T, ln net.Listener, done chan<- struct{}) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	defer close(done)

	for i := 0; i < 3; i++ {
		header, err := streamio.ReadExact(conn, 10, 2*time.Second)
		if err != nil {
			t.Logf("server read header: %v", err)
			return
		}
		_, payloadLen, err := wire.DecodeControlHeader(header)
		if err != nil {
			t.Logf("server decode header: %v", err)
			return
		}
		if payloadLen > 0 {
			if _, err := streamio.ReadExact(conn, int(payloadLen), 2*time.Second); err != nil {
				t.Logf("server read payload: %v", err)
				return
			}
		}
		ack := wire.ControlFrame{Opcode: wire.OpAck, Payload: []byte(`"OK"`)}
		if err := streamio.WriteAll(conn, ack.Encode(), 2*time.Second); err != nil {
			t.Logf("server write ack: %v", err)
			return
		}
	}
}

func TestSplitClient_ConnectHandshakeAndDisconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	done := make(chan struct{})
	go fakeEmulator(t, ln, done)

	c := NewSplitClient(2 * time.Second)
	port := 9999
	if err := c.Connect(ln.Addr().String(), wire.SetConfigPayload{UDPPort: &port}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not complete handshake")
	}
}

func TestSplitClient_ReceiverUpdatesLatestFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	done := make(chan struct{})
	go fakeEmulator(t, ln, done)

	c := NewSplitClient(2 * time.Second)
	port := 9999
	if err := c.Connect(ln.Addr().String(), wire.SetConfigPayload{UDPPort: &port}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	peer := c.LocalUDPAddr()
	sender, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer sender.Close()

	frame := wire.DataFrame{SequenceID: 1, SamplesPerBlock: 1, ChannelCount: 2, Values: []float64{1.5, 2.5}}
	if _, err := sender.WriteToUDP(frame.Encode(), peer); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := c.Latest.Load(); ok {
			if got.SequenceID != 1 || len(got.Values) != 2 {
				t.Fatalf("unexpected latest frame: %+v", got)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("receiver never updated latest frame")
}
