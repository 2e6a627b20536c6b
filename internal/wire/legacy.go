package wire

import (
	"encoding/binary"
	"math"
)

// LegacyRequest is the row-major matrix of small command codes the legacy
// client sends to enumerate the channels of interest. Layout: int32 BE
// total_len, then total_len unsigned bytes, rows*cols == total_len.
type LegacyRequest struct {
	rows, cols int
	flat       []byte
}

// NewLegacyRequest builds a request from a rectangular command matrix.
// Every row must have the same length (cols); an empty or ragged matrix is
// rejected at construction, the same constructor-side invariant spec §4.1
// requires.
func NewLegacyRequest(commands [][2]byte) (LegacyRequest, error) {
	if len(commands) == 0 {
		return LegacyRequest{}, ErrBadShape
	}
	const cols = 2
	flat := make([]byte, 0, len(commands)*cols)
	for _, row := range commands {
		flat = append(flat, row[0], row[1])
	}
	return LegacyRequest{rows: len(commands), cols: cols, flat: flat}, nil
}

// NormalRequest builds the default "NORMAL" request enumerating all 430
// commands, one (i, j) pair per row for i in 0..42 and j in 0..9 (a 430 x 2
// matrix, 860 bytes), per spec §4.4/§6. "FAST" produces the
// identical matrix (spec §9.ii open question, resolved as identical).
func NormalRequest() LegacyRequest {
	commands := make([][2]byte, 0, 430)
	for i := 0; i < 43; i++ {
		for j := 0; j < 10; j++ {
			commands = append(commands, [2]byte{byte(i), byte(j)})
		}
	}
	req, _ := NewLegacyRequest(commands)
	return req
}

// FastRequest is identical to NormalRequest; see spec §9.ii.
func FastRequest() LegacyRequest { return NormalRequest() }

// Encode serializes the request: int32 BE total_len, then the flat bytes.
func (r LegacyRequest) Encode() []byte {
	out := make([]byte, 4+len(r.flat))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(r.flat)))
	copy(out[4:], r.flat)
	return out
}

// DecodeLegacyRequest parses a full request frame (data includes the int32
// length prefix, which is read and checked against the body length here),
// reshaping the body into rows of cols bytes.
func DecodeLegacyRequest(data []byte, cols int) (LegacyRequest, error) {
	if len(data) < 4 {
		return LegacyRequest{}, ErrShortHeader
	}
	totalLen := binary.BigEndian.Uint32(data[0:4])
	body := data[4:]
	if uint32(len(body)) != totalLen {
		return LegacyRequest{}, ErrShortPayload
	}
	if cols <= 0 || int(totalLen)%cols != 0 {
		return LegacyRequest{}, ErrBadShape
	}
	flat := make([]byte, len(body))
	copy(flat, body)
	return LegacyRequest{rows: int(totalLen) / cols, cols: cols, flat: flat}, nil
}

// Rows returns the command matrix reshaped row-major as [][]byte.
func (r LegacyRequest) Rows() [][]byte {
	out := make([][]byte, r.rows)
	for i := 0; i < r.rows; i++ {
		out[i] = r.flat[i*r.cols : (i+1)*r.cols]
	}
	return out
}

// LegacyResponse is the transposed (time-row-first) channel matrix decoded
// from a legacy response frame: shape (10, samples) after transpose, where
// row 0 is time and rows 1..9 are the nine reported channels.
type LegacyResponse struct {
	// Columns holds one []float64 per output row (row 0 is time), each of
	// length sampleCount.
	Columns [][]float64
}

const legacyResponseCols = 10

// SampleCount returns the number of samples (time-column length).
func (r LegacyResponse) SampleCount() int {
	if len(r.Columns) == 0 {
		return 0
	}
	return len(r.Columns[0])
}

// FirstTimestamp and LastTimestamp read the time row's bounds; used by the
// legacy client's monotonicity guard (spec §4.4).
func (r LegacyResponse) FirstTimestamp() float64 { return r.Columns[0][0] }
func (r LegacyResponse) LastTimestamp() float64 {
	return r.Columns[0][len(r.Columns[0])-1]
}

// DecodeLegacyResponse decodes int32 BE double_count followed by
// double_count BE float64s, reshaping row-major into (double_count/10, 10)
// and transposing so row 0 is the time column (spec §4.1).
func DecodeLegacyResponse(header []byte, body []byte) (LegacyResponse, error) {
	if len(header) < 4 {
		return LegacyResponse{}, ErrShortHeader
	}
	doubleCount := binary.BigEndian.Uint32(header[0:4])
	if doubleCount%legacyResponseCols != 0 {
		return LegacyResponse{}, ErrBadShape
	}
	if uint32(len(body)) < doubleCount*8 {
		return LegacyResponse{}, ErrShortPayload
	}
	sampleCount := int(doubleCount) / legacyResponseCols
	cols := make([][]float64, legacyResponseCols)
	for c := range cols {
		cols[c] = make([]float64, sampleCount)
	}
	off := 0
	for row := 0; row < sampleCount; row++ {
		for c := 0; c < legacyResponseCols; c++ {
			cols[c][row] = math.Float64frombits(binary.BigEndian.Uint64(body[off : off+8]))
			off += 8
		}
	}
	return LegacyResponse{Columns: cols}, nil
}
