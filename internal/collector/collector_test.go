package collector

import (
	"testing"
	"time"

	"github.com/kstaniek/pedalnet/internal/slotcell"
	"github.com/kstaniek/pedalnet/internal/wire"
)

func TestCollector_StartAppendsNewFrames(t *testing.T) {
	var latest slotcell.Cell[wire.DataFrame]
	c := New(5 * time.Millisecond)
	c.Start(&latest, 3) // time + 2 channels

	latest.Store(wire.DataFrame{
		SequenceID:      1,
		SamplesPerBlock: 2,
		ChannelCount:    3,
		Values:          []float64{0.0, 1, 2, 0.02, 3, 4},
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && c.Len() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	rows := c.Snapshot(10)
	if rows[0].Time != 0.0 || rows[1].Time != 0.02 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if len(rows[0].Channels) != 2 || rows[0].Channels[0] != 1 || rows[0].Channels[1] != 2 {
		t.Fatalf("unexpected channels: %+v", rows[0])
	}
}

func TestCollector_DuplicateSequenceNotReappended(t *testing.T) {
	var latest slotcell.Cell[wire.DataFrame]
	c := New(5 * time.Millisecond)
	c.Start(&latest, 2)

	frame := wire.DataFrame{SequenceID: 7, SamplesPerBlock: 1, ChannelCount: 2, Values: []float64{1.0, 9}}
	latest.Store(frame)
	time.Sleep(40 * time.Millisecond)
	latest.Store(frame) // same sequence id, must not be appended twice
	time.Sleep(40 * time.Millisecond)
	c.Stop()

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestCollector_Snapshot_WindowSmallerThanLen(t *testing.T) {
	var latest slotcell.Cell[wire.DataFrame]
	c := New(5 * time.Millisecond)
	c.Start(&latest, 2)

	for i := uint32(0); i < 5; i++ {
		latest.Store(wire.DataFrame{
			SequenceID: i, SamplesPerBlock: 1, ChannelCount: 2,
			Values: []float64{float64(i), float64(i) * 10},
		})
		time.Sleep(10 * time.Millisecond)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && c.Len() < 5 {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()

	window := c.Snapshot(2)
	if len(window) != 2 {
		t.Fatalf("Snapshot(2) returned %d rows, want 2", len(window))
	}
	if window[1].Time != 4.0 {
		t.Fatalf("last row time = %v, want 4.0", window[1].Time)
	}
}

func TestCollector_StopLeavesBufferIntact(t *testing.T) {
	var latest slotcell.Cell[wire.DataFrame]
	c := New(5 * time.Millisecond)
	c.Start(&latest, 2)
	latest.Store(wire.DataFrame{SequenceID: 1, SamplesPerBlock: 1, ChannelCount: 2, Values: []float64{1, 2}})
	time.Sleep(30 * time.Millisecond)
	c.Stop()
	n := c.Len()
	if n == 0 {
		t.Fatalf("expected at least one row before stop")
	}
	time.Sleep(30 * time.Millisecond)
	if c.Len() != n {
		t.Fatalf("buffer changed after Stop(): %d -> %d", n, c.Len())
	}
}
