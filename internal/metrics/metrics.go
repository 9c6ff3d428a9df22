package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all relay metrics
type Metrics struct {
	// Ingest counters
	FramesIngested atomic.Uint64
	IngestRejected atomic.Uint64 // client errors
	IngestFailed   atomic.Uint64 // internal errors
	DecodeErrors   atomic.Uint64

	// Push fan-out
	PushSent     atomic.Uint64
	PushDropped  atomic.Uint64
	ReplaysSent  atomic.Uint64
	BroadcastSub atomic.Int64
	StreamingSub atomic.Int64

	// Pull stream
	MJPEGActive   atomic.Int64
	MJPEGParts    atomic.Uint64
	MJPEGRejected atomic.Uint64

	// Latest frame
	LastFrameBytes   atomic.Uint64
	IngestLatencyUs  atomic.Uint64
	EventsPublished  atomic.Uint64
	EventPublishErrs atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	m.counter("relay_frames_ingested_total", "Frames accepted by /push_image", &m.FramesIngested)
	m.counter("relay_ingest_rejected_total", "Ingest requests rejected as malformed", &m.IngestRejected)
	m.counter("relay_ingest_failed_total", "Ingest requests that failed internally", &m.IngestFailed)
	m.counter("relay_decode_errors_total", "Frames kept text-only after a base64 decode failure", &m.DecodeErrors)

	m.counter("relay_push_messages_sent_total", "Frames delivered to websocket subscribers", &m.PushSent)
	m.counter("relay_push_subscribers_dropped_total", "Websocket subscribers dropped after a failed send", &m.PushDropped)
	m.counter("relay_push_replays_total", "Last-frame replays sent to new streaming subscribers", &m.ReplaysSent)
	m.gauge("relay_broadcast_subscribers", "Connected /ws/fire_image subscribers",
		func() float64 { return float64(m.BroadcastSub.Load()) })
	m.gauge("relay_streaming_subscribers", "Connected /ws/video_stream subscribers",
		func() float64 { return float64(m.StreamingSub.Load()) })

	m.gauge("relay_mjpeg_streams", "Open /mjpeg_stream responses",
		func() float64 { return float64(m.MJPEGActive.Load()) })
	m.counter("relay_mjpeg_parts_total", "Multipart JPEG parts written", &m.MJPEGParts)
	m.counter("relay_mjpeg_rejected_total", "MJPEG requests refused by the stream limit", &m.MJPEGRejected)

	m.gauge("relay_last_frame_bytes", "Decoded size of the latest frame",
		func() float64 { return float64(m.LastFrameBytes.Load()) })
	m.gauge("relay_ingest_latency_us", "Duration of the last ingest including fan-out, in microseconds",
		func() float64 { return float64(m.IngestLatencyUs.Load()) })
	m.counter("relay_events_published_total", "Events published to MQTT", &m.EventsPublished)
	m.counter("relay_event_publish_errors_total", "MQTT publish failures", &m.EventPublishErrs)
}

// UpdateSubscribers stores the current pool sizes
func (m *Metrics) UpdateSubscribers(broadcast, streaming int) {
	m.BroadcastSub.Store(int64(broadcast))
	m.StreamingSub.Store(int64(streaming))
}

// UpdateIngestLatency records how long the last ingest took
func (m *Metrics) UpdateIngestLatency(d time.Duration) {
	m.IngestLatencyUs.Store(uint64(d.Microseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on its own address
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
