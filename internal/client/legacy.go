// Package client implements the two device-facing client variants named in
// spec §4.4/§4.5: the legacy request/response poller and the split
// control/data client. Grounded on the teacher's internal/server connection
// handling, generalized from server-side accept loops to client-side dial
// loops.
package client

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kstaniek/pedalnet/internal/metrics"
	"github.com/kstaniek/pedalnet/internal/streamio"
	"github.com/kstaniek/pedalnet/internal/wire"
)

// connState mirrors the Disconnected/Connected lifecycle of spec §4.4/§4.5.
type connState int

const (
	stateDisconnected connState = iota
	stateConnected
)

// LegacyClient polls a device over the legacy request/response protocol: one
// TCP round trip per poll, a cached request frame, and a monotonicity guard
// on the decoded response's time column.
type LegacyClient struct {
	mu       sync.Mutex
	conn     net.Conn
	state    connState
	deadline time.Duration
	request  wire.LegacyRequest

	hasLast  bool
	lastTime float64
}

// NewLegacyClient builds a client that will send the default NORMAL request
// on each poll, with the given per-call read/write deadline.
func NewLegacyClient(deadline time.Duration) *LegacyClient {
	return &LegacyClient{
		state:    stateDisconnected,
		deadline: deadline,
		request:  wire.NormalRequest(),
	}
}

// Connect dials the device's reliable endpoint, moving to Connected.
func (c *LegacyClient) Connect(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDial, err)
	}
	c.conn = conn
	c.state = stateConnected
	c.hasLast = false
	return nil
}

// Disconnect closes the underlying connection and returns to Disconnected.
func (c *LegacyClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *LegacyClient) disconnectLocked() error {
	c.state = stateDisconnected
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Connected reports whether the client currently holds an open connection.
func (c *LegacyClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// Poll performs one request/response round trip (spec §4.4): send the
// cached request, read the length-prefixed response, decode it, and apply
// the monotonicity guard. A socket failure returns a nil block and a nil
// error, leaving the client usable for the next Poll — the caller decides
// when to Disconnect. A decode failure (malformed response) is reported as
// an error since it indicates a protocol problem, not a transient socket
// hiccup.
func (c *LegacyClient) Poll() (*wire.LegacyResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnected || c.conn == nil {
		return nil, ErrNotReady
	}

	if err := streamio.WriteAll(c.conn, c.request.Encode(), c.deadline); err != nil {
		metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnWrite, err)))
		return nil, nil
	}

	header, err := streamio.ReadExact(c.conn, 4, c.deadline)
	if err != nil {
		metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnRead, err)))
		return nil, nil
	}
	doubleCount := binary.BigEndian.Uint32(header)
	body, err := streamio.ReadExact(c.conn, int(doubleCount)*8, c.deadline)
	if err != nil {
		metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnRead, err)))
		return nil, nil
	}

	resp, err := wire.DecodeLegacyResponse(header, body)
	if err != nil {
		metrics.IncMalformed()
		return nil, err
	}

	first := resp.FirstTimestamp()
	if c.hasLast && first < c.lastTime {
		// Device clock restarted, or a stale frame arrived; drop the block.
		return nil, nil
	}
	c.lastTime = resp.LastTimestamp()
	c.hasLast = true
	metrics.IncFramesReceived()
	return &resp, nil
}
