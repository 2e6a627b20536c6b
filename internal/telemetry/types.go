// Package telemetry holds the data model shared by the client, the
// emulator, and the collector: samples, blocks of samples, channel
// selections, and the streaming configuration that governs them.
package telemetry

import "sort"

// MaxChannels is C_MAX: the number of channel indices the device exposes,
// in [0, MaxChannels).
const MaxChannels = 45

// Sample is one reading: a monotonic device timestamp (seconds) plus a
// fixed-width vector of channel values. Samples are never mutated after
// creation.
type Sample struct {
	Time     float64
	Channels []float64
}

// SampleBlock is N contiguous Samples with strictly increasing timestamps,
// produced atomically by the sampler and streamed as one frame.
type SampleBlock struct {
	Samples []Sample
}

// Len returns the number of samples in the block.
func (b SampleBlock) Len() int { return len(b.Samples) }

// LastTimestamp returns the timestamp of the block's final sample, or -1
// if the block is empty. Used by the streamer to detect a fresh block.
func (b SampleBlock) LastTimestamp() float64 {
	if len(b.Samples) == 0 {
		return -1
	}
	return b.Samples[len(b.Samples)-1].Time
}

// ChannelSet is an ordered, deduplicated subset of channel indices in
// [0, MaxChannels). It persists on a StreamConfig until the next
// SET_CONFIG.
type ChannelSet struct {
	indices []int
}

// NewChannelSet builds a ChannelSet from raw indices, deduplicating and
// sorting ascending. Out-of-range indices are dropped silently; the wire
// decoder does not range-check them.
func NewChannelSet(raw []int) ChannelSet {
	seen := make(map[int]struct{}, len(raw))
	out := make([]int, 0, len(raw))
	for _, idx := range raw {
		if idx < 0 || idx >= MaxChannels {
			continue
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return ChannelSet{indices: out}
}

// Indices returns the ordered channel indices. The returned slice must not
// be mutated by the caller.
func (c ChannelSet) Indices() []int { return c.indices }

// Len returns the number of selected channels.
func (c ChannelSet) Len() int { return len(c.indices) }

// Project selects this channel set's values out of a full channel vector
// (length MaxChannels), in channel-set order.
func (c ChannelSet) Project(full []float64) []float64 {
	out := make([]float64, len(c.indices))
	for i, idx := range c.indices {
		if idx < len(full) {
			out[i] = full[idx]
		}
	}
	return out
}

// DatagramTarget is the (host, port) the emulator streams data frames to.
type DatagramTarget struct {
	Host string
	Port int
}

// Valid reports whether the target has a usable host and port.
func (t DatagramTarget) Valid() bool {
	return t.Host != "" && t.Port > 0 && t.Port <= 65535
}

// StreamConfig is the server-side streaming configuration: sampling
// frequency, block size, selected channels, and the datagram target. It is
// overwritable at any time while not streaming, and applied field-by-field
// (SET_CONFIG only updates the fields present in its JSON payload).
type StreamConfig struct {
	FrequencyHz     int
	SamplesPerBlock int
	Channels        ChannelSet
	DatagramTarget  DatagramTarget
	ConfiguredOnce  bool
}

// DefaultStreamConfig mirrors the emulator's built-in defaults before any
// SET_CONFIG arrives.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		FrequencyHz:     50,
		SamplesPerBlock: 10,
		Channels:        NewChannelSet(allChannels()),
	}
}

func allChannels() []int {
	out := make([]int, MaxChannels)
	for i := range out {
		out[i] = i
	}
	return out
}

// BlockPeriodSeconds is the wall-clock interval between consecutive sampler
// ticks: samples_per_block / frequency seconds.
func (c StreamConfig) BlockPeriodSeconds() float64 {
	if c.FrequencyHz <= 0 {
		return 0
	}
	return float64(c.SamplesPerBlock) / float64(c.FrequencyHz)
}
