// Package emulator implements the server side of both wire protocols named
// in spec §4.7: a single-threaded acceptor serving at most one client
// session at a time, a control dispatcher running the opcode state
// machine, an independent sampler, and a per-session streamer. Grounded on
// the teacher's internal/server (functional-options Server, accept loop,
// handshake-then-spawn, graceful Shutdown).
package emulator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/pedalnet/internal/logging"
	"github.com/kstaniek/pedalnet/internal/metrics"
	"github.com/kstaniek/pedalnet/internal/telemetry"
)

const (
	defaultControlDeadline  = 60 * time.Second
	defaultAcceptBackoffMin = 20 * time.Millisecond
	defaultAcceptBackoffMax = 500 * time.Millisecond
)

// Emulator owns the control listener and the shared datagram socket, and
// coordinates the single active session's lifecycle.
type Emulator struct {
	mu          sync.RWMutex
	controlAddr string
	dataAddr    string

	controlDeadline time.Duration
	logger          *slog.Logger

	listener net.Listener
	dataConn *net.UDPConn

	Sampler *Sampler

	sessionMu sync.Mutex
	active    *ClientSession

	readyOnce sync.Once
	readyCh   chan struct{}
	errCh     chan error

	totalSessions      atomic.Uint64
	totalHandshakeFail atomic.Uint64

	// sleepFn allows tests to intercept accept-loop backoff sleeps, mirroring
	// the teacher's cmd/can-server sleepFn hook.
	sleepFn func(time.Duration)
}

// Option configures an Emulator, mirroring the teacher's ServerOption
// functional-options pattern.
type Option func(*Emulator)

// WithControlAddr sets the reliable control listener address.
func WithControlAddr(addr string) Option { return func(e *Emulator) { e.controlAddr = addr } }

// WithDataAddr sets the bound datagram data-port address.
func WithDataAddr(addr string) Option { return func(e *Emulator) { e.dataAddr = addr } }

// WithControlDeadline sets the per-call control stream read/write deadline.
func WithControlDeadline(d time.Duration) Option {
	return func(e *Emulator) {
		if d > 0 {
			e.controlDeadline = d
		}
	}
}

// WithLogger overrides the emulator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emulator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an idle Emulator; call Serve to start accepting sessions.
func New(opts ...Option) *Emulator {
	e := &Emulator{
		controlAddr:     ":0",
		dataAddr:        ":0",
		controlDeadline: defaultControlDeadline,
		logger:          logging.L(),
		readyCh:         make(chan struct{}),
		errCh:           make(chan error, 1),
		sleepFn:         time.Sleep,
		Sampler:         NewSampler(telemetry.DefaultStreamConfig()),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Ready signals once the listener and data socket are bound.
func (e *Emulator) Ready() <-chan struct{} { return e.readyCh }

// Errors surfaces fatal listener/socket errors.
func (e *Emulator) Errors() <-chan error { return e.errCh }

func (e *Emulator) setError(err error) {
	if err == nil {
		return
	}
	select {
	case e.errCh <- err:
	default:
	}
}

// ControlAddr returns the bound control listener address, valid after
// Serve has started listening.
func (e *Emulator) ControlAddr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.listener == nil {
		return e.controlAddr
	}
	return e.listener.Addr().String()
}

// DataAddr returns the bound datagram socket's local address.
func (e *Emulator) DataAddr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.dataConn == nil {
		return e.dataAddr
	}
	return e.dataConn.LocalAddr().String()
}

// Serve binds the control listener and the datagram socket, starts the
// sampler, and runs the single-threaded accept loop: exactly one session
// at a time, further accepts deferred until the current session ends
// (spec §4.7 Acceptor).
func (e *Emulator) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.controlAddr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		e.setError(wrap)
		return wrap
	}
	udpAddr, err := net.ResolveUDPAddr("udp", e.dataAddr)
	if err != nil {
		_ = ln.Close()
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		e.setError(wrap)
		return wrap
	}
	dataConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		_ = ln.Close()
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		e.setError(wrap)
		return wrap
	}

	e.mu.Lock()
	e.listener = ln
	e.dataConn = dataConn
	e.mu.Unlock()

	e.readyOnce.Do(func() { close(e.readyCh) })
	e.logger.Info("emulator_listen", "control", ln.Addr().String(), "data", dataConn.LocalAddr().String())

	e.Sampler.Start(ctx)

	go func() { <-ctx.Done(); _ = ln.Close(); _ = dataConn.Close() }()

	backoff := defaultAcceptBackoffMin
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				e.Sampler.Stop()
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			e.logger.Warn("accept_error", "error", err, "backoff", backoff)
			e.sleepFn(backoff)
			backoff *= 2
			if backoff > defaultAcceptBackoffMax {
				backoff = defaultAcceptBackoffMax
			}
			continue
		}
		backoff = defaultAcceptBackoffMin
		e.serveOneSession(conn)
	}
}

// serveOneSession runs one client session to completion (blocking), since
// the emulator serves exactly one at a time.
func (e *Emulator) serveOneSession(conn net.Conn) {
	session := newSession(conn)
	e.sessionMu.Lock()
	e.active = session
	e.sessionMu.Unlock()
	e.totalSessions.Add(1)
	metrics.IncSessionAccepted()
	metrics.SetActiveSession(true)

	learnCtx, cancelLearn := context.WithCancel(context.Background())
	go e.learnPeer(learnCtx, session)

	e.dispatchLoop(session)
	cancelLearn()
}

// learnPeer is the acceptor's first-datagram-arrival fallback (spec §4.7):
// if SET_CONFIG never supplies udp_port, the emulator learns the client's
// return address from the first empty datagram it receives on the shared
// data socket while this session is active.
func (e *Emulator) learnPeer(ctx context.Context, session *ClientSession) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if session.Peer() != nil {
			return
		}
		buf := make([]byte, 16)
		_ = e.dataConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := e.dataConn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		if n == 0 {
			session.LearnPeer(addr)
			return
		}
		// A non-empty datagram while unlearned is not a hole-punch; ignore
		// and keep waiting (it may be a stray frame from a prior session).
	}
}

// clearActiveSession drops the active session pointer if it still matches.
func (e *Emulator) clearActiveSession(session *ClientSession) {
	e.sessionMu.Lock()
	if e.active == session {
		e.active = nil
	}
	e.sessionMu.Unlock()
	metrics.SetActiveSession(false)
}

// Shutdown stops accepting, ends the active session, and stops the
// sampler.
func (e *Emulator) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	ln := e.listener
	dataConn := e.dataConn
	e.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	if dataConn != nil {
		_ = dataConn.Close()
	}
	e.sessionMu.Lock()
	active := e.active
	e.sessionMu.Unlock()
	if active != nil {
		_ = active.conn.Close()
	}
	e.Sampler.Stop()

	e.logger.Info("shutdown_summary",
		"sessions", e.totalSessions.Load(),
		"handshake_fail", e.totalHandshakeFail.Load(),
		"frames_emitted", metrics.Snap().FramesEmitted,
		"malformed", metrics.Snap().Malformed,
		"sequence_rejected", metrics.Snap().SequenceDropped,
	)
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrContext, ctx.Err())
	}
	return nil
}

// Snapshot reports the counters rendered by cmd/emulator's shutdown table.
type Snapshot struct {
	Sessions         uint64
	FramesEmitted    uint64
	Malformed        uint64
	SequenceRejected uint64
}

// StatsSnapshot returns the current counters for status rendering.
func (e *Emulator) StatsSnapshot() Snapshot {
	s := metrics.Snap()
	return Snapshot{
		Sessions:         e.totalSessions.Load(),
		FramesEmitted:    s.FramesEmitted,
		Malformed:        s.Malformed,
		SequenceRejected: s.SequenceDropped,
	}
}
