package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firesight/frame-relay/internal/framegen"
	"github.com/firesight/frame-relay/internal/logger"
	"github.com/firesight/frame-relay/internal/producer"
	"github.com/firesight/frame-relay/internal/relayclient"
)

func main() {
	var (
		relayURL string
		dir      string
		label    string
		fps      float64
		timeout  time.Duration
		count    int
		width    int
		height   int
		useCBOR  bool
		logLevel string
		logColor bool
	)
	flag.StringVar(&relayURL, "relay", "http://localhost:8010", "Relay base URL")
	flag.StringVar(&dir, "dir", "", "Directory of JPEG frames to cycle (empty renders synthetic frames)")
	flag.StringVar(&label, "label", "cam0", "Caption prefix for synthetic frames")
	flag.Float64Var(&fps, "fps", 15, "Maximum frames per second (0 = as fast as the relay accepts)")
	flag.DurationVar(&timeout, "timeout", relayclient.DefaultTimeout, "Per-frame POST timeout")
	flag.IntVar(&count, "count", 0, "Frames to send (0 = until interrupted)")
	flag.IntVar(&width, "width", framegen.DefaultWidth, "Synthetic frame width")
	flag.IntVar(&height, "height", framegen.DefaultHeight, "Synthetic frame height")
	flag.BoolVar(&useCBOR, "cbor", false, "Send CBOR bodies instead of JSON")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	var src producer.Source
	if dir != "" {
		ds, err := producer.NewDirSource(dir)
		if err != nil {
			log.Fatalf("Failed to open frame source: %v", err)
		}
		src = ds
		logger.Info("Main", "Cycling frames from %s", dir)
	} else {
		gen := framegen.New()
		gen.Width, gen.Height = width, height
		src = &producer.SyntheticSource{Gen: gen, Label: label}
		logger.Info("Main", "Rendering synthetic %dx%d frames", width, height)
	}

	client := relayclient.New(relayURL, timeout)
	client.UseCBOR = useCBOR

	var interval time.Duration
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	p := &producer.Producer{
		Client:   client,
		Source:   src,
		Interval: interval,
		Timeout:  timeout,
		Limit:    count,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Main", "Posting to %s/push_image (max %.1f fps, timeout %v)", client.BaseURL(), fps, timeout)
	start := time.Now()
	if err := p.Run(ctx); err != nil {
		logger.Error("Main", "Producer stopped: %v", err)
	}

	st := p.Stats()
	logger.Info("Main", "Sent %d frames, skipped %d in %s", st.Sent, st.Skipped, time.Since(start).Round(time.Millisecond))
}
