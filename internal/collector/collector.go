// Package collector owns the accumulating time-series buffer fed by a
// client's single-slot "latest frame" cell (spec §4.8): an append-only
// matrix of (timestamp, c_0..c_{C-1}) rows, a start/stop switch for the
// appender worker, and a sliding-window snapshot for a live-view consumer.
// Grounded on the teacher's internal/hub mutex-guarded shared state,
// generalized from a client registry to a growable matrix.
package collector

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/pedalnet/internal/logging"
	"github.com/kstaniek/pedalnet/internal/metrics"
	"github.com/kstaniek/pedalnet/internal/slotcell"
	"github.com/kstaniek/pedalnet/internal/wire"
)

// ErrWidthMismatch is returned when a frame's row width does not match the
// buffer's column count fixed at start().
var ErrWidthMismatch = errors.New("collector: row width mismatch")

// Row is one (timestamp, channels...) entry of the buffer.
type Row struct {
	Time     float64
	Channels []float64
}

// Collector accumulates rows from a data source (a single-slot "latest
// frame" cell) into a growable buffer, guarded by one mutex per spec §5's
// shared-resource policy.
type Collector struct {
	mu      sync.Mutex
	rows    []Row
	cols    int // 1 + channel count, fixed once start() is called
	running bool

	pollInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup

	lastSeq    uint32
	hasLastSeq bool

	logger *slog.Logger
}

// Option configures a Collector at construction time, following the same
// functional-options shape as internal/emulator.Option.
type Option func(*Collector)

// WithLogger injects the log sink the appender worker reports through,
// instead of reaching for the package-global logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// New builds an idle Collector that polls its source at pollInterval once
// started.
func New(pollInterval time.Duration, opts ...Option) *Collector {
	c := &Collector{pollInterval: pollInterval, logger: logging.L()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start clears the buffer, fixes the column count, and launches the
// appender worker pulling from latest whenever it holds a frame not yet
// consumed (spec §4.8 start()).
func (c *Collector) Start(latest *slotcell.Cell[wire.DataFrame], cols int) {
	c.mu.Lock()
	c.rows = nil
	c.cols = cols
	c.running = true
	c.hasLastSeq = false
	c.stopCh = make(chan struct{})
	stop := c.stopCh
	c.mu.Unlock()

	metrics.SetBufferRows(0)
	c.wg.Add(1)
	go c.appendLoop(latest, stop)
}

// Stop disables the appender loop, leaving the buffer intact (spec §4.8
// stop()).
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Collector) appendLoop(latest *slotcell.Cell[wire.DataFrame], stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame, ok := latest.Load()
			if !ok {
				continue
			}
			if c.hasLastSeqUnchanged(frame.SequenceID) {
				continue
			}
			if err := c.appendFrame(frame); err != nil {
				c.logger.Warn("collector_append_error", "error", err)
			}
		}
	}
}

func (c *Collector) hasLastSeqUnchanged(seq uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasLastSeq && c.lastSeq == seq {
		return true
	}
	c.lastSeq = seq
	c.hasLastSeq = true
	return false
}

// appendFrame appends every sample of frame as one row, atomically under a
// single critical section, preserving within-block timestamp monotonicity
// (spec §4.8 append discipline).
func (c *Collector) appendFrame(frame wire.DataFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	width := int(frame.ChannelCount)
	if c.cols != 0 && width != c.cols {
		metrics.IncError(metrics.ErrDecode)
		return ErrWidthMismatch
	}
	n := int(frame.SamplesPerBlock)
	for i := 0; i < n; i++ {
		sample := frame.SampleAt(i)
		if len(sample) == 0 {
			continue
		}
		row := Row{Time: sample[0], Channels: append([]float64(nil), sample[1:]...)}
		c.rows = append(c.rows, row)
	}
	metrics.SetBufferRows(len(c.rows))
	return nil
}

// Len returns the current row count (spec §4.8 len()).
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

// Snapshot returns a copy of the last windowLen rows, or all rows if fewer
// exist (spec §4.8 snapshot(window_len)).
func (c *Collector) Snapshot(windowLen int) []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.rows)
	start := 0
	if windowLen > 0 && windowLen < n {
		start = n - windowLen
	}
	out := make([]Row, n-start)
	copy(out, c.rows[start:])
	return out
}
