package client

import (
	"errors"

	"github.com/kstaniek/pedalnet/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is,
// generalized from the teacher's internal/server error set.
var (
	ErrDial      = errors.New("dial")
	ErrConnRead  = errors.New("conn_read")
	ErrConnWrite = errors.New("conn_write")
	ErrHandshake = errors.New("handshake")
	ErrNotReady  = errors.New("not_connected")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels, mirroring
// the teacher's internal/server.mapErrToMetric.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead):
		return metrics.ErrStreamRead
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrStreamWrite
	case errors.Is(err, ErrHandshake):
		return metrics.ErrHandshake
	case errors.Is(err, ErrDial):
		return metrics.ErrStreamRead
	default:
		return "other"
	}
}
