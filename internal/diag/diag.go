// Package diag checks a running relay end to end and explains what is
// wrong when the dashboard shows no video.
package diag

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/firesight/frame-relay/internal/relayclient"
	"github.com/firesight/frame-relay/pkg/types"
)

// minFrameChars is the shortest message that plausibly carries a JPEG.
const minFrameChars = 1000

// Options controls which checks run.
type Options struct {
	WatchFor      time.Duration // how long to watch /ws/video_stream; 0 skips
	SaveLastImage string        // path for the /last_image JPEG; empty skips
	SaveFirstSeen string        // path for the first streamed JPEG; empty skips
}

// Report is the outcome of a diagnostic run.
type Report struct {
	Reachable  bool
	Ping       types.Ping
	Stats      types.Stats
	StatsErr   error
	LastImage  bool
	LastErr    error
	Watched    bool
	Received   int
	Suspicious int
	WatchErr   error
	Elapsed    time.Duration
}

// CameraActive reports whether the relay is receiving frames.
func (r Report) CameraActive() bool {
	return r.StatsErr == nil && r.Stats.Status == types.StatusRunning
}

// Recommendations lists next steps for the problems found.
func (r Report) Recommendations() []string {
	if !r.Reachable {
		return []string{
			"Start the relay: frame-relay -http :8010",
			"Check the relay logs for startup errors.",
		}
	}
	var out []string
	if !r.CameraActive() {
		out = append(out,
			"Start the camera from the dashboard.",
			"Check that the detector is running and can reach /push_image.")
	}
	if r.StatsErr == nil && r.Stats.StreamingClients == 0 {
		out = append(out,
			"Open the dashboard page so it connects to /ws/video_stream.",
			"Refresh the page and check the browser console for websocket errors.")
	}
	if r.CameraActive() && r.Stats.ImagesReceived > 0 && !r.LastImage {
		out = append(out, "Frames arrive but /last_image fails: check the image data format.")
	}
	return out
}

// Run performs the checks in order: ping, stats, last image, stream watch.
func Run(ctx context.Context, c *relayclient.Client, opts Options) Report {
	start := time.Now()
	var rep Report

	ping, err := c.Ping(ctx)
	if err != nil {
		rep.Elapsed = time.Since(start)
		return rep
	}
	rep.Reachable = true
	rep.Ping = ping

	rep.Stats, rep.StatsErr = c.Stats(ctx)

	text, err := c.LastImage(ctx)
	switch {
	case err != nil:
		rep.LastErr = err
	default:
		rep.LastImage = true
		if opts.SaveLastImage != "" {
			rep.LastErr = saveB64(opts.SaveLastImage, text)
		}
	}

	if opts.WatchFor > 0 {
		rep.Watched = true
		watchCtx, cancel := context.WithTimeout(ctx, opts.WatchFor)
		rep.WatchErr = c.Watch(watchCtx, "/ws/video_stream", func(text string) error {
			if len(text) < minFrameChars {
				rep.Suspicious++
				return nil
			}
			rep.Received++
			if rep.Received == 1 && opts.SaveFirstSeen != "" {
				return saveB64(opts.SaveFirstSeen, text)
			}
			return nil
		})
		cancel()
	}

	rep.Elapsed = time.Since(start)
	return rep
}

func saveB64(path, text string) error {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Print writes a human readable summary of rep.
func Print(w io.Writer, rep Report) {
	mark := func(ok bool) string {
		if ok {
			return "OK  "
		}
		return "FAIL"
	}

	fmt.Fprintln(w, "===== Relay Diagnostic Summary =====")
	fmt.Fprintf(w, "[%s] Relay reachable\n", mark(rep.Reachable))
	if !rep.Reachable {
		printRecommendations(w, rep)
		return
	}

	if rep.StatsErr != nil {
		fmt.Fprintf(w, "[FAIL] Stats: %v\n", rep.StatsErr)
	} else {
		s := rep.Stats
		fmt.Fprintf(w, "       Status: %s, uptime %s, %.1f fps, %d frames total\n",
			s.Status, s.UptimeFormatted, s.FPS, s.FramesTotal)
		fmt.Fprintf(w, "       Clients: %d push (%d streaming, %d broadcast), %d mjpeg\n",
			s.ActiveClients, s.StreamingClients, s.BroadcastClients, s.MJPEGClients)
	}
	fmt.Fprintf(w, "[%s] Camera active\n", mark(rep.CameraActive()))

	lastDetail := ""
	if rep.LastErr != nil && !errors.Is(rep.LastErr, relayclient.ErrNoImage) {
		lastDetail = ": " + rep.LastErr.Error()
	}
	fmt.Fprintf(w, "[%s] Last image available%s\n", mark(rep.LastImage), lastDetail)

	if rep.Watched {
		fmt.Fprintf(w, "[%s] Stream delivered %d frames (%d suspicious)\n",
			mark(rep.Received > 0), rep.Received, rep.Suspicious)
		if rep.WatchErr != nil {
			fmt.Fprintf(w, "       Stream error: %v\n", rep.WatchErr)
		}
	}
	printRecommendations(w, rep)
}

func printRecommendations(w io.Writer, rep Report) {
	recs := rep.Recommendations()
	if len(recs) == 0 {
		return
	}
	fmt.Fprintln(w, "\n===== Recommendations =====")
	for i, r := range recs {
		fmt.Fprintf(w, "%d. %s\n", i+1, r)
	}
}
