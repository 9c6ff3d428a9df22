// Package producer posts annotated frames to the relay the way the
// detector does: one request per frame, a short timeout, and no retries.
package producer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/firesight/frame-relay/internal/framegen"
	"github.com/firesight/frame-relay/internal/logger"
	"github.com/firesight/frame-relay/internal/relayclient"
)

var log = logger.Named("Producer")

// Source yields JPEG frames.
type Source interface {
	Next() ([]byte, error)
}

// DirSource cycles through the JPEG files of a directory in name order.
type DirSource struct {
	files []string
	next  int
}

// NewDirSource lists *.jpg and *.jpeg files in dir.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no JPEG files in %s", dir)
	}
	sort.Strings(files)
	return &DirSource{files: files}, nil
}

// Next returns the next file's bytes, wrapping around at the end.
func (s *DirSource) Next() ([]byte, error) {
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	return os.ReadFile(path)
}

// SyntheticSource renders numbered frames with framegen.
type SyntheticSource struct {
	Gen   *framegen.Generator
	Label string
	n     int
}

// Next renders the next frame.
func (s *SyntheticSource) Next() ([]byte, error) {
	gen := s.Gen
	if gen == nil {
		gen = framegen.New()
	}
	n := s.n
	s.n++
	caption := fmt.Sprintf("%s #%d %s", s.Label, n, time.Now().Format("15:04:05.000"))
	return gen.Frame(n, caption)
}

// Stats counts the outcome of each attempted frame.
type Stats struct {
	Sent    uint64
	Skipped uint64
}

// Producer posts frames from Source at most once per Interval.
type Producer struct {
	Client   *relayclient.Client
	Source   Source
	Interval time.Duration // minimum spacing between frames
	Timeout  time.Duration // per-request budget
	Limit    int           // frames to attempt; 0 runs until ctx is done

	sent    atomic.Uint64
	skipped atomic.Uint64
}

// Stats returns the counters so far.
func (p *Producer) Stats() Stats {
	return Stats{Sent: p.sent.Load(), Skipped: p.skipped.Load()}
}

// Run posts frames until ctx is done or Limit frames were attempted. A
// failed post is logged and the frame is dropped. Source errors stop Run.
func (p *Producer) Run(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = relayclient.DefaultTimeout
	}

	var ticker *time.Ticker
	if p.Interval > 0 {
		ticker = time.NewTicker(p.Interval)
		defer ticker.Stop()
	}

	for attempted := 0; p.Limit == 0 || attempted < p.Limit; attempted++ {
		if ctx.Err() != nil {
			return nil
		}

		jpeg, err := p.Source.Next()
		if err != nil {
			return fmt.Errorf("next frame: %w", err)
		}
		p.post(ctx, base64.StdEncoding.EncodeToString(jpeg), timeout)

		if ticker == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func (p *Producer) post(ctx context.Context, text string, timeout time.Duration) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.Client.Push(reqCtx, text)
	if err == nil {
		p.sent.Add(1)
		log.Debug("Image sent to relay (%d chars)", len(text))
		return
	}
	p.skipped.Add(1)

	var statusErr *relayclient.StatusError
	var netErr net.Error
	switch {
	case ctx.Err() != nil:
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		log.Warn("Timeout sending image to relay (skip frame)")
	case errors.As(err, &statusErr):
		log.Error("Failed to send image: %v", statusErr)
	default:
		log.Error("Connection error sending image: %v. Is the relay running at %s?", err, p.Client.BaseURL())
	}
}
