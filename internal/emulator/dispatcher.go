package emulator

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/pedalnet/internal/logging"
	"github.com/kstaniek/pedalnet/internal/metrics"
	"github.com/kstaniek/pedalnet/internal/streamio"
	"github.com/kstaniek/pedalnet/internal/wire"
)

// dispatchLoop reads control frames from the active session and dispatches
// by opcode (spec §4.7 Dispatcher). It returns when the connection is
// closed or a protocol violation occurs; the acceptor resumes afterward.
func (e *Emulator) dispatchLoop(session *ClientSession) {
	logger := logging.L().With("session", session.ID)
	defer e.endSession(session, logger)

	for {
		header, err := streamio.ReadExact(session.conn, 10, e.controlDeadline)
		if err != nil {
			if err == streamio.ErrEOF {
				logger.Info("session_closed")
				return
			}
			metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnRead, err)))
			metrics.IncHandshakeFailure()
			e.totalHandshakeFail.Add(1)
			logger.Warn("control_read_error", "error", err)
			return
		}
		opcode, payloadLen, err := wire.DecodeControlHeader(header)
		if err != nil {
			metrics.IncMalformed()
			metrics.IncHandshakeFailure()
			e.totalHandshakeFail.Add(1)
			logger.Warn("control_bad_header", "error", err)
			return
		}
		payload, err := streamio.ReadExact(session.conn, int(payloadLen), e.controlDeadline)
		if err != nil {
			metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnRead, err)))
			metrics.IncHandshakeFailure()
			e.totalHandshakeFail.Add(1)
			logger.Warn("control_payload_error", "error", err)
			return
		}

		resp, fatal := e.handleOpcode(session, opcode, payload)
		if err := streamio.WriteAll(session.conn, resp.Encode(), e.controlDeadline); err != nil {
			metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnWrite, err)))
			logger.Warn("control_write_error", "error", err)
			return
		}
		if fatal {
			return
		}
	}
}

// handleOpcode implements spec §4.7's opcode switch and returns the
// response frame to write, plus whether the session must end.
func (e *Emulator) handleOpcode(session *ClientSession, opcode wire.Opcode, payload []byte) (wire.ControlFrame, bool) {
	switch opcode {
	case wire.OpSetConfig:
		cfg, err := wire.UnmarshalSetConfig(payload)
		if err != nil {
			metrics.IncErr()
			return ack(wire.OpErr, []byte(`"bad_json"`)), false
		}
		host := "127.0.0.1"
		if tcp, ok := session.conn.RemoteAddr().(*net.TCPAddr); ok {
			host = tcp.IP.String()
		}
		session.ApplyConfig(cfg.Frequency, cfg.SamplesPerBlock, cfg.Channels, cfg.UDPPort, host)
		e.Sampler.SetConfig(session.Config())
		metrics.IncAck()
		return ack(wire.OpAck, []byte(`"OK"`)), false

	case wire.OpStart:
		if session.Peer() == nil {
			metrics.IncErr()
			return ack(wire.OpErr, []byte(`"missing_udp_target"`)), false
		}
		if !session.Config().ConfiguredOnce {
			metrics.IncErr()
			return ack(wire.OpErr, []byte(`"not_configured"`)), false
		}
		session.startStreamer(e.dataConn, e.Sampler)
		metrics.IncAck()
		return ack(wire.OpAck, []byte(`"STREAMING_STARTED"`)), false

	case wire.OpStop:
		session.stopStreamer()
		metrics.IncAck()
		return ack(wire.OpAck, []byte(`"STREAMING_STOPPED"`)), false

	case wire.OpGetStatus:
		cfg := session.Config()
		status := wire.StatusPayload{
			IsStreaming:     session.Streaming(),
			Frequency:       cfg.FrequencyHz,
			SamplesPerBlock: cfg.SamplesPerBlock,
			Channels:        cfg.Channels.Indices(),
			SequenceID:      session.CurrentSeq(),
		}
		body, err := wire.MarshalStatus(status)
		if err != nil {
			metrics.IncErr()
			return ack(wire.OpErr, []byte(`"status_encode_failed"`)), false
		}
		metrics.IncAck()
		return ack(wire.OpAck, body), false

	case wire.OpPing:
		metrics.IncAck()
		return ack(wire.OpAck, []byte(`"PONG"`)), false

	default:
		metrics.IncErr()
		return ack(wire.OpErr, []byte(`"unknown_opcode"`)), false
	}
}

func ack(op wire.Opcode, payload []byte) wire.ControlFrame {
	return wire.ControlFrame{Opcode: op, Payload: payload}
}

// endSession stops any running streamer and closes the connection.
func (e *Emulator) endSession(session *ClientSession, logger *slog.Logger) {
	session.stopStreamer()
	_ = session.conn.Close()
	e.clearActiveSession(session)
	logger.Info("session_ended", "elapsed", time.Since(session.startedAt))
}
