package dgram

import (
	"net"
	"testing"
	"time"
)

func mustListenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return conn
}

func TestSendRecv_RoundTrip(t *testing.T) {
	a := mustListenUDP(t)
	defer a.Close()
	b := mustListenUDP(t)
	defer b.Close()

	payload := []byte("data-frame-bytes")
	if err := Send(a, b.LocalAddr().(*net.UDPAddr), payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, from, err := Recv(b, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
	if from.IP.String() != "127.0.0.1" {
		t.Fatalf("from = %v", from)
	}
}

func TestRecv_Timeout(t *testing.T) {
	a := mustListenUDP(t)
	defer a.Close()

	_, _, err := Recv(a, 20*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}
