package emulator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/kstaniek/pedalnet/internal/slotcell"
	"github.com/kstaniek/pedalnet/internal/telemetry"
)

// Sampler is the independent synthetic data generator named in spec §4.7:
// it ticks at the configured block cadence and publishes the newest
// SampleBlock into a single-slot latest cell. Its lifetime spans the whole
// emulator process, not any one client session.
type Sampler struct {
	Latest slotcell.Cell[telemetry.SampleBlock]

	mu     sync.Mutex
	cfg    telemetry.StreamConfig
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime float64
}

// NewSampler builds a sampler with the given initial cadence and width.
func NewSampler(cfg telemetry.StreamConfig) *Sampler {
	return &Sampler{cfg: cfg}
}

// SetConfig updates the sampler's cadence/width for subsequent ticks; takes
// effect on the next tick boundary.
func (s *Sampler) SetConfig(cfg telemetry.StreamConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Sampler) config() telemetry.StreamConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start launches the tick loop. Safe to call once per Sampler lifetime.
func (s *Sampler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop cancels the tick loop and waits for it to exit.
func (s *Sampler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sampler) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		cfg := s.config()
		period := cfg.BlockPeriodSeconds()
		if period <= 0 {
			period = 0.2
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(period * float64(time.Second))):
		}
		s.Latest.Store(s.generateBlock(cfg))
	}
}

// generateBlock synthesizes one block of samples_per_block samples, each
// with a full-width MaxChannels vector (channel projection happens later,
// in the streamer), strictly increasing timestamps spaced by 1/frequency
// (spec §3 invariant).
func (s *Sampler) generateBlock(cfg telemetry.StreamConfig) telemetry.SampleBlock {
	n := cfg.SamplesPerBlock
	if n <= 0 {
		n = 1
	}
	freq := cfg.FrequencyHz
	if freq <= 0 {
		freq = 1
	}
	dt := 1.0 / float64(freq)
	samples := make([]telemetry.Sample, n)
	for i := 0; i < n; i++ {
		t := s.startTime
		s.startTime += dt
		channels := make([]float64, telemetry.MaxChannels)
		for c := range channels {
			channels[c] = math.Sin(t + float64(c))
		}
		samples[i] = telemetry.Sample{Time: t, Channels: channels}
	}
	return telemetry.SampleBlock{Samples: samples}
}
