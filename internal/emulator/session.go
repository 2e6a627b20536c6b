package emulator

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kstaniek/pedalnet/internal/asynctx"
	"github.com/kstaniek/pedalnet/internal/telemetry"
	"github.com/kstaniek/pedalnet/internal/wire"
)

// ClientSession is the emulator-side session state named in spec §3: one
// control connection, one datagram peer address, the current StreamConfig,
// the current sequence id, and the streaming flag. Created on accept,
// destroyed on disconnect, replaced wholesale by the next client — the
// emulator never holds more than one at a time.
type ClientSession struct {
	ID        string
	conn      net.Conn
	startedAt time.Time

	mu         sync.Mutex
	cfg        telemetry.StreamConfig
	peer       *net.UDPAddr
	streaming  bool
	seq        uint32
	streamStop chan struct{}
	streamWG   sync.WaitGroup
	tx         *asynctx.AsyncTx[wire.DataFrame]
}

// newSession allocates a session for a freshly accepted control connection.
func newSession(conn net.Conn) *ClientSession {
	return &ClientSession{
		ID:        uuid.NewString(),
		conn:      conn,
		startedAt: time.Now(),
		cfg:       telemetry.DefaultStreamConfig(),
	}
}

// ApplyConfig merges the supplied fields into the session's StreamConfig,
// per spec §4.7 SET_CONFIG ("apply only supplied fields"). peerHost is the
// control connection's remote IP, used when udp_port is present.
func (s *ClientSession) ApplyConfig(frequency, samplesPerBlock *int, channels []int, udpPort *int, peerHost string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frequency != nil {
		s.cfg.FrequencyHz = *frequency
	}
	if samplesPerBlock != nil {
		s.cfg.SamplesPerBlock = *samplesPerBlock
	}
	if channels != nil {
		s.cfg.Channels = telemetry.NewChannelSet(channels)
	}
	if udpPort != nil {
		s.peer = &net.UDPAddr{IP: net.ParseIP(peerHost), Port: *udpPort}
		s.cfg.DatagramTarget = telemetry.DatagramTarget{Host: peerHost, Port: *udpPort}
	}
	s.cfg.ConfiguredOnce = true
}

// LearnPeer records a datagram peer address learned from first-arrival
// fallback (spec §4.7 acceptor learning), used when SET_CONFIG never
// supplied udp_port.
func (s *ClientSession) LearnPeer(addr *net.UDPAddr) {
	s.mu.Lock()
	if s.peer == nil {
		s.peer = addr
	}
	s.mu.Unlock()
}

// Peer returns the session's datagram peer address, or nil if unknown.
func (s *ClientSession) Peer() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Config returns a copy of the session's current StreamConfig.
func (s *ClientSession) Config() telemetry.StreamConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Streaming reports whether the streamer is currently active.
func (s *ClientSession) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// NextSeq advances the wrapping sequence counter and returns the new value,
// so the first frame of a session carries sequence_id == 1.
func (s *ClientSession) NextSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// CurrentSeq returns the last-issued sequence id without advancing it, used
// by GET_STATUS.
func (s *ClientSession) CurrentSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
