package wire

import (
	"encoding/binary"
	"math"
)

// DataMagic and DataVersion identify the data-plane frame; see spec §4.1
// and §6.
const (
	DataMagic   uint16 = 0xDA7A
	DataVersion uint16 = 1

	// DataHeaderLen is the fixed header size: magic(2) + version(2) +
	// sequence_id(4) + samples_per_block(2) + channel_count(2), followed by
	// 2 reserved bytes that Encode writes as zero and DecodeDataFrame skips.
	DataHeaderLen = 14

	// MaxDatagramSize bounds a whole received datagram (spec §4.3).
	MaxDatagramSize = 64 * 1024
)

// DataFrame is one block of samples on the wire: a fixed header followed
// by samples_per_block * channel_count big-endian float64 values in
// row-major sample-then-channel order. Channel 0 of each sample is the
// device timestamp. Lost frames are never retransmitted.
type DataFrame struct {
	SequenceID      uint32
	SamplesPerBlock uint16
	ChannelCount    uint16
	// Values holds SamplesPerBlock*ChannelCount float64s, sample-major.
	Values []float64
}

// Encode serializes the frame per spec §4.1/§6.
func (f DataFrame) Encode() []byte {
	n := int(f.SamplesPerBlock) * int(f.ChannelCount)
	out := make([]byte, DataHeaderLen+n*8)
	binary.BigEndian.PutUint16(out[0:2], DataMagic)
	binary.BigEndian.PutUint16(out[2:4], DataVersion)
	binary.BigEndian.PutUint32(out[4:8], f.SequenceID)
	binary.BigEndian.PutUint16(out[8:10], f.SamplesPerBlock)
	binary.BigEndian.PutUint16(out[10:12], f.ChannelCount)
	off := DataHeaderLen
	for i := 0; i < n && i < len(f.Values); i++ {
		binary.BigEndian.PutUint64(out[off:off+8], math.Float64bits(f.Values[i]))
		off += 8
	}
	return out
}

// DecodeDataFrame parses one whole datagram into a DataFrame.
func DecodeDataFrame(data []byte) (DataFrame, error) {
	if len(data) < DataHeaderLen {
		return DataFrame{}, ErrShortHeader
	}
	magic := binary.BigEndian.Uint16(data[0:2])
	version := binary.BigEndian.Uint16(data[2:4])
	if magic != DataMagic {
		return DataFrame{}, ErrBadMagic
	}
	if version != DataVersion {
		return DataFrame{}, ErrUnsupportedVersion
	}
	seq := binary.BigEndian.Uint32(data[4:8])
	spb := binary.BigEndian.Uint16(data[8:10])
	cc := binary.BigEndian.Uint16(data[10:12])

	want := int(spb) * int(cc)
	payload := data[DataHeaderLen:]
	if len(payload) != want*8 {
		return DataFrame{}, ErrBadShape
	}
	values := make([]float64, want)
	off := 0
	for i := range values {
		values[i] = math.Float64frombits(binary.BigEndian.Uint64(payload[off : off+8]))
		off += 8
	}
	return DataFrame{SequenceID: seq, SamplesPerBlock: spb, ChannelCount: cc, Values: values}, nil
}

// SampleAt returns the channel slice for sample index i (0-based).
func (f DataFrame) SampleAt(i int) []float64 {
	cc := int(f.ChannelCount)
	return f.Values[i*cc : (i+1)*cc]
}
