// Package metrics exposes Prometheus counters/gauges for the MDFU host
// stack plus a small in-process snapshot used for periodic log lines.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/mchp/mdfu-host/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters/gauges.
var (
	PacketsTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdfu_packets_tx_total",
		Help: "Total MDFU command packets written to the transport.",
	})
	PacketsRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdfu_packets_rx_total",
		Help: "Total MDFU status packets read from the transport.",
	})
	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdfu_retries_total",
		Help: "Total send-and-receive attempts beyond the first for one exchange.",
	})
	Resends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdfu_resends_total",
		Help: "Total status responses with the resend flag set.",
	})
	ChecksumFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdfu_checksum_failures_total",
		Help: "Total frames rejected due to CRC mismatch.",
	})
	FramingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdfu_framing_errors_total",
		Help: "Total frames rejected due to an invalid escape sequence.",
	})
	BusyPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdfu_busy_polls_total",
		Help: "Total busy responses observed while polling SPI/I2C for a response.",
	})
	ChunksWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdfu_chunks_written_total",
		Help: "Total WRITE_CHUNK commands sent during image transfer.",
	})
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdfu_bytes_written_total",
		Help: "Total image bytes sent via WRITE_CHUNK payloads.",
	})
	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mdfu_update_duration_seconds",
		Help:    "Wall-clock duration of a complete run_update sequence.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdfu_errors_total",
		Help: "Error counters by subsystem/class.",
	}, []string{"where"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrTimeout         = "timeout"
	ErrChecksum        = "checksum"
	ErrFraming         = "framing"
	ErrFrameTooShort   = "frame_too_short"
	ErrBufferOverflow  = "buffer_overflow"
	ErrInvalidCommand  = "invalid_command"
	ErrInvalidStatus   = "invalid_status"
	ErrClientInfo      = "client_info_decode"
	ErrProtocol        = "protocol"
	ErrVersionMismatch = "version_mismatch"
	ErrBufferTooSmall  = "buffer_too_small"
	ErrIO              = "io"
)

// StartHTTP serves Prometheus metrics and a readiness probe on addr.
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
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters so a periodic log line doesn't need to scrape Prometheus.
var (
	localPacketsTx uint64
	localPacketsRx uint64
	localRetries   uint64
	localResends   uint64
	localChecksum  uint64
	localFraming   uint64
	localBusyPolls uint64
	localChunks    uint64
	localBytes     uint64
	localErrors    uint64
)

// Snapshot is a cheap copy of local counters for logging.
type Snapshot struct {
	PacketsTx uint64
	PacketsRx uint64
	Retries   uint64
	Resends   uint64
	Checksum  uint64
	Framing   uint64
	BusyPolls uint64
	Chunks    uint64
	Bytes     uint64
	Errors    uint64
}

func Snap() Snapshot {
	return Snapshot{
		PacketsTx: atomic.LoadUint64(&localPacketsTx),
		PacketsRx: atomic.LoadUint64(&localPacketsRx),
		Retries:   atomic.LoadUint64(&localRetries),
		Resends:   atomic.LoadUint64(&localResends),
		Checksum:  atomic.LoadUint64(&localChecksum),
		Framing:   atomic.LoadUint64(&localFraming),
		BusyPolls: atomic.LoadUint64(&localBusyPolls),
		Chunks:    atomic.LoadUint64(&localChunks),
		Bytes:     atomic.LoadUint64(&localBytes),
		Errors:    atomic.LoadUint64(&localErrors),
	}
}

func IncPacketsTx() { PacketsTx.Inc(); atomic.AddUint64(&localPacketsTx, 1) }
func IncPacketsRx() { PacketsRx.Inc(); atomic.AddUint64(&localPacketsRx, 1) }
func IncRetry()     { Retries.Inc(); atomic.AddUint64(&localRetries, 1) }
func IncResend()    { Resends.Inc(); atomic.AddUint64(&localResends, 1) }
func IncChecksumFailure() {
	ChecksumFailures.Inc()
	atomic.AddUint64(&localChecksum, 1)
}
func IncFramingError() {
	FramingErrors.Inc()
	atomic.AddUint64(&localFraming, 1)
}
func IncBusyPoll() { BusyPolls.Inc(); atomic.AddUint64(&localBusyPolls, 1) }
func AddChunk(bytesLen int) {
	ChunksWritten.Inc()
	BytesWritten.Add(float64(bytesLen))
	atomic.AddUint64(&localChunks, 1)
	atomic.AddUint64(&localBytes, uint64(bytesLen))
}
func ObserveUpdateDuration(seconds float64) { UpdateDuration.Observe(seconds) }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers error label series.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrTimeout, ErrChecksum, ErrFraming, ErrFrameTooShort, ErrBufferOverflow,
		ErrInvalidCommand, ErrInvalidStatus, ErrClientInfo, ErrProtocol,
		ErrVersionMismatch, ErrBufferTooSmall, ErrIO,
	} {
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
	if fn == nil {
		return true
	}
	return fn()
}
