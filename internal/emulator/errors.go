package emulator

import (
	"errors"

	"github.com/kstaniek/pedalnet/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is,
// mirroring the teacher's internal/server error set.
var (
	ErrListen       = errors.New("listen")
	ErrAccept       = errors.New("accept")
	ErrHandshake    = errors.New("handshake")
	ErrConnRead     = errors.New("conn_read")
	ErrConnWrite    = errors.New("conn_write")
	ErrDatagramSend = errors.New("datagram_send")
	ErrContext      = errors.New("context_cancelled")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead):
		return metrics.ErrStreamRead
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrStreamWrite
	case errors.Is(err, ErrHandshake):
		return metrics.ErrHandshake
	case errors.Is(err, ErrDatagramSend):
		return metrics.ErrDatagramSend
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrStreamRead
	case errors.Is(err, ErrContext):
		return "context"
	default:
		return "other"
	}
}
