package emulator

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/kstaniek/pedalnet/internal/asynctx"
	"github.com/kstaniek/pedalnet/internal/dgram"
	"github.com/kstaniek/pedalnet/internal/logging"
	"github.com/kstaniek/pedalnet/internal/metrics"
	"github.com/kstaniek/pedalnet/internal/telemetry"
	"github.com/kstaniek/pedalnet/internal/wire"
)

// streamerSendBuffer bounds the fan-in queue between the sampler-detection
// loop and the goroutine that actually writes to the UDP socket; a full
// buffer means the socket can't keep up and the new frame is dropped
// rather than blocking detection of the next block.
const streamerSendBuffer = 8

// startStreamer spawns the per-session worker named in spec §4.7: while
// streaming is enabled it waits for a new block (detected by a change in
// the block's last timestamp), builds a DataFrame projected onto the
// session's configured channel set with the time column prepended, and
// funnels it through an asynctx.AsyncTx to the session's datagram peer. The
// sequence id increments with wrapping add on every emitted frame.
func (s *ClientSession) startStreamer(udp *net.UDPConn, sampler *Sampler) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return
	}
	s.streaming = true
	s.streamStop = make(chan struct{})
	stop := s.streamStop
	s.tx = asynctx.New(context.Background(), streamerSendBuffer, func(frame wire.DataFrame) error {
		peer := s.Peer()
		if peer == nil {
			return nil
		}
		return dgram.Send(udp, peer, frame.Encode())
	}, asynctx.Hooks{
		OnError: func(err error) {
			metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrDatagramSend, err)))
			logging.L().Warn("datagram_send_error", "session", s.ID, "error", err)
		},
		OnAfter: metrics.IncFramesEmitted,
		OnDrop: func() error {
			metrics.IncError(mapErrToMetric(ErrDatagramSend))
			return nil
		},
	})
	s.mu.Unlock()

	s.streamWG.Add(1)
	go func() {
		defer s.streamWG.Done()
		lastSeen := math.Inf(-1)
		for {
			select {
			case <-stop:
				return
			default:
			}
			block, ok := sampler.Latest.Load()
			if !ok {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			last := block.LastTimestamp()
			if last == lastSeen {
				time.Sleep(2 * time.Millisecond)
				continue
			}
			lastSeen = last

			if s.Peer() == nil {
				continue
			}
			cfg := s.Config()
			frame := buildDataFrame(block, cfg.Channels, s.NextSeq())
			_ = s.tx.Send(frame)
		}
	}()
}

// stopStreamer signals the streamer to stop and joins it (spec §4.7 STOP).
func (s *ClientSession) stopStreamer() {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return
	}
	s.streaming = false
	close(s.streamStop)
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()
	s.streamWG.Wait()
	if tx != nil {
		tx.Close()
	}
}

// buildDataFrame projects block onto channels (time column always
// prepended) and assembles the wire frame.
func buildDataFrame(block telemetry.SampleBlock, channels telemetry.ChannelSet, seq uint32) wire.DataFrame {
	channelCount := 1 + channels.Len()
	values := make([]float64, 0, len(block.Samples)*channelCount)
	for _, sample := range block.Samples {
		values = append(values, sample.Time)
		values = append(values, channels.Project(sample.Channels)...)
	}
	return wire.DataFrame{
		SequenceID:      seq,
		SamplesPerBlock: uint16(len(block.Samples)),
		ChannelCount:    uint16(channelCount),
		Values:          values,
	}
}
