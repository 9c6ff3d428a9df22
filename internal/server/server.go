// Package server exposes the relay hub over HTTP and WebSocket.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/firesight/frame-relay/internal/config"
	"github.com/firesight/frame-relay/internal/events"
	"github.com/firesight/frame-relay/internal/framegen"
	"github.com/firesight/frame-relay/internal/logger"
	"github.com/firesight/frame-relay/internal/metrics"
	"github.com/firesight/frame-relay/internal/relay"
)

var log = logger.Named("HTTP")

// Server serves the relay endpoints.
type Server struct {
	cfg       config.Config
	hub       *relay.Hub
	metrics   *metrics.Metrics
	events    events.Publisher
	upgrader  websocket.Upgrader
	streamer  relay.MJPEGStreamer
	serveProm bool
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records relay metrics into m. Without it a private
// registry is used.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithEvents publishes liveness transitions and frame notices to p.
func WithEvents(p events.Publisher) Option {
	return func(s *Server) { s.events = p }
}

// New returns a server for hub. Zero config fields take defaults.
func New(cfg config.Config, hub *relay.Hub, opts ...Option) *Server {
	cfg = cfg.WithDefaults()
	s := &Server{
		cfg:       cfg,
		hub:       hub,
		events:    events.Nop{},
		serveProm: cfg.MetricsAddr == "",
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.streamer = relay.MJPEGStreamer{
		Source:   hub,
		Clock:    hub.Clock(),
		Interval: cfg.MJPEGInterval,
		OnPart:   func(int) { s.metrics.MJPEGParts.Add(1) },
	}
	if cfg.MJPEGPlaceholder {
		if img, err := framegen.Placeholder(framegen.DefaultWidth, framegen.DefaultHeight, "Waiting for camera"); err == nil {
			s.streamer.Placeholder = img
		} else {
			log.Warn("MJPEG placeholder disabled: %v", err)
		}
	}
	return s
}

// Metrics returns the metrics the server records into.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/push_image", s.handlePushImage)
	mux.HandleFunc("/fire_status", s.handleFireStatus)
	mux.HandleFunc("/last_image", s.handleLastImage)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/stats/stream", s.handleStatsStream)
	mux.HandleFunc("/ws/fire_image", s.handleWS(relay.PoolBroadcast))
	mux.HandleFunc("/ws/video_stream", s.handleWS(relay.PoolStreaming))
	mux.HandleFunc("/mjpeg_stream", s.handleMJPEG)
	if s.serveProm {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return s.cors(mux)
}

// cors allows the dashboard to call the relay from any origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) syncSubscriberMetrics() {
	broadcast, streaming := s.hub.Counts()
	s.metrics.UpdateSubscribers(broadcast, streaming)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
