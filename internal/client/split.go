package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kstaniek/pedalnet/internal/dgram"
	"github.com/kstaniek/pedalnet/internal/metrics"
	"github.com/kstaniek/pedalnet/internal/seqguard"
	"github.com/kstaniek/pedalnet/internal/slotcell"
	"github.com/kstaniek/pedalnet/internal/streamio"
	"github.com/kstaniek/pedalnet/internal/wire"
)

// SplitClient holds the reliable control stream and the bound datagram
// socket of the split protocol (spec §4.5). The control channel is strictly
// request/response; concurrent callers must serialize their own Send calls.
type SplitClient struct {
	mu       sync.Mutex
	conn     net.Conn
	udp      *net.UDPConn
	deadline time.Duration
	state    connState

	recvCtx    context.Context
	recvCancel context.CancelFunc
	recvWG     sync.WaitGroup

	guard  seqguard.Guard
	Latest slotcell.Cell[wire.DataFrame]
}

// NewSplitClient builds a client with the given per-call control deadline.
func NewSplitClient(deadline time.Duration) *SplitClient {
	return &SplitClient{state: stateDisconnected, deadline: deadline}
}

// Connect opens the control stream, binds a local datagram socket, and
// issues SET_CONFIG then START, each awaiting a synchronous ACK (spec
// §4.5.1). Any failure disconnects and returns an error.
func (c *SplitClient) Connect(controlAddr string, cfg wire.SetConfigPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := net.Dial("tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDial, err)
	}
	udp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrDial, err)
	}
	c.conn = conn
	c.udp = udp
	c.guard.Reset()
	c.Latest.Clear()

	if _, ok, err := c.sendLocked(wire.OpSetConfig, cfg); err != nil || !ok {
		c.teardownLocked()
		if err != nil {
			return err
		}
		return ErrHandshake
	}
	if _, ok, err := c.sendLocked(wire.OpStart, struct{}{}); err != nil || !ok {
		c.teardownLocked()
		if err != nil {
			return err
		}
		return ErrHandshake
	}

	c.state = stateConnected
	c.startReceiver()
	return nil
}

// Disconnect sends a best-effort STOP, stops the receiver, and closes both
// sockets (spec §4.5.2).
func (c *SplitClient) Disconnect() error {
	c.mu.Lock()
	if c.state != stateConnected {
		c.mu.Unlock()
		return nil
	}
	_, _, _ = c.sendLocked(wire.OpStop, struct{}{})
	c.teardownLocked()
	c.mu.Unlock()

	c.recvWG.Wait()
	return nil
}

func (c *SplitClient) teardownLocked() {
	if c.recvCancel != nil {
		c.recvCancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.udp != nil {
		_ = c.udp.Close()
		c.udp = nil
	}
	c.state = stateDisconnected
}

// Send issues one control command and reads its response synchronously,
// reporting ok=true iff the response opcode is ACK (spec §4.5).
func (c *SplitClient) Send(op wire.Opcode, body any) (payload []byte, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(op, body)
}

func (c *SplitClient) sendLocked(op wire.Opcode, body any) ([]byte, bool, error) {
	if c.conn == nil {
		return nil, false, ErrNotReady
	}
	var payload []byte
	var err error
	switch op {
	case wire.OpSetConfig:
		payload, err = wire.MarshalSetConfig(body.(wire.SetConfigPayload))
	default:
		payload = nil
	}
	if err != nil {
		return nil, false, err
	}
	frame := wire.ControlFrame{Opcode: op, Payload: payload}
	if err := streamio.WriteAll(c.conn, frame.Encode(), c.deadline); err != nil {
		metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnWrite, err)))
		return nil, false, fmt.Errorf("%w: %v", ErrConnWrite, err)
	}

	header, err := streamio.ReadExact(c.conn, 10, c.deadline)
	if err != nil {
		metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnRead, err)))
		return nil, false, fmt.Errorf("%w: %v", ErrConnRead, err)
	}
	respOp, payloadLen, err := wire.DecodeControlHeader(header)
	if err != nil {
		metrics.IncMalformed()
		return nil, false, err
	}
	respBody, err := streamio.ReadExact(c.conn, int(payloadLen), c.deadline)
	if err != nil {
		metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnRead, err)))
		return nil, false, fmt.Errorf("%w: %v", ErrConnRead, err)
	}
	return respBody, respOp == wire.OpAck, nil
}

// startReceiver launches the background worker that owns the datagram
// socket (spec §4.5.3): each valid, in-order frame overwrites the
// single-slot latest-frame cell; out-of-order and duplicate frames are
// dropped per §4.6.
func (c *SplitClient) startReceiver() {
	c.recvCtx, c.recvCancel = context.WithCancel(context.Background())
	c.recvWG.Add(1)
	go func() {
		defer c.recvWG.Done()
		udp := c.udp
		for {
			select {
			case <-c.recvCtx.Done():
				return
			default:
			}
			data, _, err := dgram.Recv(udp, 200*time.Millisecond)
			if err != nil {
				if err == dgram.ErrTimeout {
					continue
				}
				return
			}
			frame, err := wire.DecodeDataFrame(data)
			if err != nil {
				metrics.IncMalformed()
				continue
			}
			if !c.guard.Accept(frame.SequenceID) {
				metrics.IncSequenceRejected()
				continue
			}
			metrics.IncFramesReceived()
			c.Latest.Store(frame)
		}
	}()
}

// LocalUDPAddr returns the bound datagram socket's local address, used to
// punch an outbound hole or to report the receive port during SET_CONFIG.
func (c *SplitClient) LocalUDPAddr() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.udp == nil {
		return nil
	}
	return c.udp.LocalAddr().(*net.UDPAddr)
}

// PunchHole sends an empty datagram to the emulator's data port so the
// emulator can learn the client's return address from the first inbound
// datagram (spec §4.7's acceptor learning fallback).
func (c *SplitClient) PunchHole(dataAddr string) error {
	c.mu.Lock()
	udp := c.udp
	c.mu.Unlock()
	if udp == nil {
		return ErrNotReady
	}
	peer, err := net.ResolveUDPAddr("udp", dataAddr)
	if err != nil {
		return err
	}
	return dgram.Send(udp, peer, nil)
}
