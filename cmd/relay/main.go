package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firesight/frame-relay/internal/config"
	"github.com/firesight/frame-relay/internal/events"
	"github.com/firesight/frame-relay/internal/logger"
	"github.com/firesight/frame-relay/internal/metrics"
	"github.com/firesight/frame-relay/internal/relay"
	"github.com/firesight/frame-relay/internal/server"
	"github.com/firesight/frame-relay/pkg/types"
)

func main() {
	cfg := config.DefaultConfig()

	var configPath string
	flag.StringVar(&configPath, "config", "", "YAML config file (flags override it)")
	flag.StringVar(&cfg.Addr, "http", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Separate metrics address (empty serves /metrics on -http)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&cfg.LogColor, "log-color", cfg.LogColor, "Enable colored log output")
	flag.StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "Access-Control-Allow-Origin value")
	flag.Int64Var(&cfg.MaxBodyBytes, "max-body", cfg.MaxBodyBytes, "Maximum /push_image body size in bytes")
	flag.DurationVar(&cfg.MJPEGInterval, "mjpeg-interval", cfg.MJPEGInterval, "Delay between MJPEG parts")
	flag.IntVar(&cfg.MJPEGMaxClients, "mjpeg-max-clients", cfg.MJPEGMaxClients, "Maximum concurrent MJPEG streams (0 = unbounded)")
	flag.BoolVar(&cfg.MJPEGPlaceholder, "mjpeg-placeholder", cfg.MJPEGPlaceholder, "Stream a placeholder image until the first frame")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Websocket write deadline")
	flag.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "Websocket keepalive ping interval (0 disables)")
	flag.StringVar(&cfg.MQTT.Broker, "mqtt-broker", cfg.MQTT.Broker, "MQTT broker host:port (empty disables events)")
	flag.StringVar(&cfg.MQTT.TopicPrefix, "mqtt-prefix", cfg.MQTT.TopicPrefix, "MQTT topic prefix")
	flag.BoolVar(&cfg.MQTT.FrameEvents, "mqtt-frame-events", cfg.MQTT.FrameEvents, "Publish a notice for every frame")
	flag.Parse()

	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		// flags given on the command line win over the file
		cfg = fileCfg
		flag.Parse()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.LogColor)

	logger.Info("Main", "Frame relay starting...")
	logger.Info("Main", "Log level: %s", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	pub := events.New(cfg.MQTT)
	defer pub.Close()
	if mp, ok := pub.(*events.MQTTPublisher); ok {
		mp.OnPublish = func(err error) {
			if err != nil {
				m.EventPublishErrs.Add(1)
				return
			}
			m.EventsPublished.Add(1)
		}
		logger.Info("Main", "Publishing events to %s under %s/", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	}
	pub.PublishStatus(types.FireStatus{Status: types.StatusWaiting})

	hub := relay.NewHub(nil)
	srv := server.New(cfg, hub, server.WithMetrics(m), server.WithEvents(pub))

	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Main", "Metrics server listening on %s", cfg.MetricsAddr)
			if err := m.StartServer(cfg.MetricsAddr); err != nil {
				logger.Error("Main", "Metrics server error: %v", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// streaming handlers end when the process is asked to stop
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Info("Main", "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Main", "Error during shutdown: %v", err)
		}
	}()

	logger.Info("Main", "Relay listening on %s", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	<-stopped
	logger.Info("Main", "Server stopped")
}
