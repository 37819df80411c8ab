package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/kstaniek/go-lcam-driver/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	CommandsTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccd_commands_tx_total",
		Help: "Total commands written to the sensor.",
	})
	ResponsesRx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccd_responses_rx_total",
		Help: "Total responses decoded, by response kind.",
	}, []string{"kind"})
	FramesRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccd_frames_rx_total",
		Help: "Total pixel frames delivered to callers.",
	})
	Resyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccd_resyncs_total",
		Help: "Total stream realignments after a misaligned buffer.",
	})
	MalformedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccd_malformed_responses_total",
		Help: "Total buffers rejected after alignment (bad opcode, scan size or terminator).",
	})
	CRCMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccd_crc_mismatch_total",
		Help: "Total pixel frames whose additive checksum did not match the wire value.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
)

// portReady flips when the serial port opens and back when it closes.
// /ready lets a scraper tell a wedged or missing port apart from a device
// that is merely quiet between frames.
var portReady atomic.Bool

// SetPortReady records whether the serial link is currently usable.
func SetPortReady(ok bool) { portReady.Store(ok) }

// PortReady reports the last recorded serial link state.
func PortReady() bool { return portReady.Load() }

// Error label constants (stable label values to bound cardinality)
const (
	ErrSerialRead     = "serial_read"
	ErrSerialWrite    = "serial_write"
	ErrDecode         = "decode"
	ErrPauseRead      = "pause_read"
	ErrUnexpectedResp = "unexpected_response"
	ErrReceiveTimeout = "receive_timeout"
)

// StartHTTP serves Prometheus metrics at /metrics on addr and a /ready
// probe backed by the serial link state. The listener runs in the
// background; the caller shuts the returned server down when done.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !PortReady() {
			http.Error(w, "serial port not open", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready\n"))
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

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localCommandsTx uint64
	localResponses  uint64
	localFrames     uint64
	localResyncs    uint64
	localMalformed  uint64
	localCRC        uint64
	localErrors     uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	CommandsTx  uint64
	ResponsesRx uint64
	FramesRx    uint64
	Resyncs     uint64
	Malformed   uint64
	CRCMismatch uint64
	Errors      uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		CommandsTx:  atomic.LoadUint64(&localCommandsTx),
		ResponsesRx: atomic.LoadUint64(&localResponses),
		FramesRx:    atomic.LoadUint64(&localFrames),
		Resyncs:     atomic.LoadUint64(&localResyncs),
		Malformed:   atomic.LoadUint64(&localMalformed),
		CRCMismatch: atomic.LoadUint64(&localCRC),
		Errors:      atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncCommandTx() {
	CommandsTx.Inc()
	atomic.AddUint64(&localCommandsTx, 1)
}

func IncResponseRx(kind string) {
	ResponsesRx.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localResponses, 1)
}

func IncFrameRx() {
	FramesRx.Inc()
	atomic.AddUint64(&localFrames, 1)
}

func IncResync() {
	Resyncs.Inc()
	atomic.AddUint64(&localResyncs, 1)
}

func IncMalformed() {
	MalformedResponses.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncCRCMismatch() {
	CRCMismatches.Inc()
	atomic.AddUint64(&localCRC, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrSerialRead, ErrSerialWrite, ErrDecode,
		ErrPauseRead, ErrUnexpectedResp, ErrReceiveTimeout,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

