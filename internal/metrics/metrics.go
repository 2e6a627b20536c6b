package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/pedalnet/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	DataFramesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "data_frames_emitted_total",
		Help: "Total data frames sent by the emulator's streamer.",
	})
	DataFramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "data_frames_received_total",
		Help: "Total data frames accepted by a client's receiver.",
	})
	SequenceRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequence_rejected_total",
		Help: "Total data frames dropped by the sequence-id guard (duplicate or reorder).",
	})
	ControlAcks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_acks_total",
		Help: "Total ACK responses sent by the emulator's dispatcher.",
	})
	ControlErrs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_errs_total",
		Help: "Total ERR responses sent by the emulator's dispatcher.",
	})
	SessionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_accepted_total",
		Help: "Total client sessions accepted by the emulator.",
	})
	HandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handshake_failures_total",
		Help: "Total sessions ended by a protocol violation (bad magic/version/short read).",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_sessions",
		Help: "1 if a client session is currently active, 0 otherwise (at most one at a time).",
	})
	BufferRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collector_buffer_rows",
		Help: "Current row count of the collector's buffer.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (bad magic/version, short read, bad shape).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrStreamRead   = "stream_read"
	ErrStreamWrite  = "stream_write"
	ErrDatagramRead = "datagram_read"
	ErrDatagramSend = "datagram_send"
	ErrHandshake    = "handshake"
	ErrDecode       = "decode"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localFramesEmitted  uint64
	localFramesReceived uint64
	localSeqRejected    uint64
	localAcks           uint64
	localErrs           uint64
	localSessions       uint64
	localHandshakeFail  uint64
	localErrors         uint64
	localMalformed      uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	FramesEmitted   uint64
	FramesReceived  uint64
	SequenceDropped uint64
	Acks            uint64
	Errs            uint64
	Sessions        uint64
	HandshakeFail   uint64
	Errors          uint64 // sum across error labels
	Malformed       uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesEmitted:   atomic.LoadUint64(&localFramesEmitted),
		FramesReceived:  atomic.LoadUint64(&localFramesReceived),
		SequenceDropped: atomic.LoadUint64(&localSeqRejected),
		Acks:            atomic.LoadUint64(&localAcks),
		Errs:            atomic.LoadUint64(&localErrs),
		Sessions:        atomic.LoadUint64(&localSessions),
		HandshakeFail:   atomic.LoadUint64(&localHandshakeFail),
		Errors:          atomic.LoadUint64(&localErrors),
		Malformed:       atomic.LoadUint64(&localMalformed),
	}
}

// Wrapper helpers to keep call sites simple.
func IncFramesEmitted() {
	DataFramesEmitted.Inc()
	atomic.AddUint64(&localFramesEmitted, 1)
}

func IncFramesReceived() {
	DataFramesReceived.Inc()
	atomic.AddUint64(&localFramesReceived, 1)
}

func IncSequenceRejected() {
	SequenceRejected.Inc()
	atomic.AddUint64(&localSeqRejected, 1)
}

func IncAck() {
	ControlAcks.Inc()
	atomic.AddUint64(&localAcks, 1)
}

func IncErr() {
	ControlErrs.Inc()
	atomic.AddUint64(&localErrs, 1)
}

func IncSessionAccepted() {
	SessionsAccepted.Inc()
	atomic.AddUint64(&localSessions, 1)
}

func IncHandshakeFailure() {
	HandshakeFailures.Inc()
	atomic.AddUint64(&localHandshakeFail, 1)
}

// SetActiveSession reports whether a client session currently holds the
// (at most one) slot.
func SetActiveSession(active bool) {
	if active {
		ActiveSessions.Set(1)
	} else {
		ActiveSessions.Set(0)
	}
}

// SetBufferRows reports the collector buffer's current row count.
func SetBufferRows(n int) {
	BufferRows.Set(float64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{ErrStreamRead, ErrStreamWrite, ErrDatagramRead, ErrDatagramSend, ErrHandshake, ErrDecode} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
