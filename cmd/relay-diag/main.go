package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firesight/frame-relay/internal/diag"
	"github.com/firesight/frame-relay/internal/logger"
	"github.com/firesight/frame-relay/internal/relayclient"
)

func main() {
	var (
		relayURL string
		opts     diag.Options
		timeout  time.Duration
		logLevel string
	)
	flag.StringVar(&relayURL, "relay", "http://localhost:8010", "Relay base URL")
	flag.DurationVar(&opts.WatchFor, "watch", 30*time.Second, "How long to watch /ws/video_stream (0 skips)")
	flag.StringVar(&opts.SaveLastImage, "save-last", "last_image.jpg", "Where to save /last_image (empty skips)")
	flag.StringVar(&opts.SaveFirstSeen, "save-stream", "", "Where to save the first streamed frame (empty skips)")
	flag.DurationVar(&timeout, "timeout", 2*time.Second, "HTTP request timeout")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, silent)")
	flag.Parse()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := relayclient.New(relayURL, timeout)
	logger.Info("Main", "Diagnosing relay at %s", client.BaseURL())

	rep := diag.Run(ctx, client, opts)
	diag.Print(os.Stdout, rep)

	if !rep.Reachable {
		os.Exit(2)
	}
	if !rep.CameraActive() {
		os.Exit(1)
	}
}
