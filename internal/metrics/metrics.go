package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/can-udp-bridge/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	UDPRxDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udp_rx_datagrams_total",
		Help: "Total UDP datagrams received on listen ports.",
	})
	UDPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udp_rx_frames_total",
		Help: "Total wire frames decoded from UDP datagrams.",
	})
	UDPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udp_tx_frames_total",
		Help: "Total wire frames sent to the remote UDP server.",
	})
	SocketCANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN frames read from channel interfaces.",
	})
	SocketCANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_tx_frames_total",
		Help: "Total CAN frames written to channel interfaces.",
	})
	PartialDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udp_partial_datagrams_total",
		Help: "Datagrams whose length was not a multiple of the wire frame size.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected wire frames (invalid length).",
	})
	RouteMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "route_miss_total",
		Help: "Frames whose identifier matched no channel range.",
	})
	RouteCrossPort = promauto.NewCounter(prometheus.CounterOpts{
		Name: "route_cross_port_total",
		Help: "Frames whose identifier resolved to a channel owned by another port.",
	})
	ActivePorts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_udp_ports",
		Help: "Number of UDP ports currently open.",
	})
	ActiveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_can_channels",
		Help: "Number of CAN channel sockets currently open.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrUDPRead        = "udp_read"
	ErrUDPWrite       = "udp_write"
	ErrSocketCANRead  = "socketcan_read"
	ErrSocketCANWrite = "socketcan_write"
	ErrPoll           = "poll"
)

var errorLabels = []string{ErrUDPRead, ErrUDPWrite, ErrSocketCANRead, ErrSocketCANWrite, ErrPoll}

// Pre-resolved children so the event loop never hashes label values.
var errorCounters = func() map[string]prometheus.Counter {
	m := make(map[string]prometheus.Counter, len(errorLabels))
	for _, lbl := range errorLabels {
		m[lbl] = Errors.WithLabelValues(lbl)
	}
	return m
}()

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
	localUDPRxDatagrams uint64
	localUDPRx          uint64
	localUDPTx          uint64
	localSocketCANRx    uint64
	localSocketCANTx    uint64
	localPartial        uint64
	localMalformed      uint64
	localRouteMiss      uint64
	localCrossPort      uint64
	localErrors         uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	UDPRxDatagrams uint64
	UDPRx          uint64
	UDPTx          uint64
	SocketCANRx    uint64
	SocketCANTx    uint64
	Partial        uint64
	Malformed      uint64
	RouteMiss      uint64
	CrossPort      uint64
	Errors         uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		UDPRxDatagrams: atomic.LoadUint64(&localUDPRxDatagrams),
		UDPRx:          atomic.LoadUint64(&localUDPRx),
		UDPTx:          atomic.LoadUint64(&localUDPTx),
		SocketCANRx:    atomic.LoadUint64(&localSocketCANRx),
		SocketCANTx:    atomic.LoadUint64(&localSocketCANTx),
		Partial:        atomic.LoadUint64(&localPartial),
		Malformed:      atomic.LoadUint64(&localMalformed),
		RouteMiss:      atomic.LoadUint64(&localRouteMiss),
		CrossPort:      atomic.LoadUint64(&localCrossPort),
		Errors:         atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncUDPRxDatagram() {
	UDPRxDatagrams.Inc()
	atomic.AddUint64(&localUDPRxDatagrams, 1)
}

func IncUDPRx() {
	UDPRxFrames.Inc()
	atomic.AddUint64(&localUDPRx, 1)
}

func IncUDPTx() {
	UDPTxFrames.Inc()
	atomic.AddUint64(&localUDPTx, 1)
}

// IncSocketCANRx increments SocketCAN receive counters.
func IncSocketCANRx() {
	SocketCANRxFrames.Inc()
	atomic.AddUint64(&localSocketCANRx, 1)
}

// IncSocketCANTx increments SocketCAN transmit counters.
func IncSocketCANTx() {
	SocketCANTxFrames.Inc()
	atomic.AddUint64(&localSocketCANTx, 1)
}

func IncPartial() {
	PartialDatagrams.Inc()
	atomic.AddUint64(&localPartial, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncRouteMiss() {
	RouteMisses.Inc()
	atomic.AddUint64(&localRouteMiss, 1)
}

func IncCrossPort() {
	RouteCrossPort.Inc()
	atomic.AddUint64(&localCrossPort, 1)
}

func IncError(label string) {
	if c, ok := errorCounters[label]; ok {
		c.Inc()
	} else {
		Errors.WithLabelValues(label).Inc()
	}
	atomic.AddUint64(&localErrors, 1)
}

// SetOpen records the number of live port and channel sockets.
func SetOpen(ports, channels int) {
	ActivePorts.Set(float64(ports))
	ActiveChannels.Set(float64(channels))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, c := range errorCounters {
		c.Add(0)
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
