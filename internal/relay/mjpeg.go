package relay

import (
	"context"
	"fmt"
	"io"
	"time"
)

const (
	// MJPEGBoundary separates parts of the multipart stream.
	MJPEGBoundary = "frame"
	// MJPEGContentType is the response content type of the pull stream.
	MJPEGContentType = "multipart/x-mixed-replace; boundary=" + MJPEGBoundary
	// DefaultMJPEGInterval targets ~30 parts per second.
	DefaultMJPEGInterval = 33 * time.Millisecond
)

// JPEGSource returns the current decoded frame.
type JPEGSource interface {
	CurrentJPEG() ([]byte, bool)
}

// MJPEGStreamer re-emits the current frame at a fixed cadence whether or
// not it changed.
type MJPEGStreamer struct {
	Source      JPEGSource
	Clock       Clock
	Interval    time.Duration
	Placeholder []byte    // written while no frame exists; nil writes nothing
	OnPart      func(int) // called with the JPEG size after each part
}

// WritePart writes one multipart part carrying jpeg.
func WritePart(w io.Writer, jpeg []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", MJPEGBoundary, len(jpeg))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// Stream writes parts to w until ctx is done or a write fails, calling
// flush after each part. It returns nil when ctx ends and the write error
// when the client went away. An empty store never ends the stream.
func (s *MJPEGStreamer) Stream(ctx context.Context, w io.Writer, flush func()) error {
	clock := s.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultMJPEGInterval
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		jpeg, ok := s.Source.CurrentJPEG()
		if !ok {
			jpeg = s.Placeholder
		}
		if len(jpeg) > 0 {
			if err := WritePart(w, jpeg); err != nil {
				return err
			}
			if flush != nil {
				flush()
			}
			if s.OnPart != nil {
				s.OnPart(len(jpeg))
			}
		}

		if err := clock.Sleep(ctx, interval); err != nil {
			return nil
		}
	}
}
