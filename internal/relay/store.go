package relay

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/firesight/frame-relay/pkg/types"
)

// FrameStore holds the most recent frame and the liveness flag.
// It is not safe for concurrent use; Hub serializes access.
type FrameStore struct {
	frame    types.Frame
	hasFrame bool
	liveness types.Liveness
	total    uint64
}

// Update replaces the retained frame with text. The binary form is
// decoded best-effort: on failure the text is still kept, the binary form
// is cleared and the decode error is returned for logging.
func (s *FrameStore) Update(text string, now time.Time) error {
	data, err := DecodeFrame(text)
	s.frame = types.Frame{
		Data:       data,
		Text:       text,
		ReceivedAt: now,
	}
	s.hasFrame = true
	s.total++
	return err
}

// Current returns the retained frame, if any.
func (s *FrameStore) Current() (types.Frame, bool) {
	return s.frame, s.hasFrame
}

// Liveness returns the last ingest status.
func (s *FrameStore) Liveness() types.Liveness {
	return s.liveness
}

// MarkHealthy records a successful ingest at now.
func (s *FrameStore) MarkHealthy(now time.Time) {
	s.liveness = types.Liveness{OK: true, LastTime: now}
}

// MarkUnhealthy flags the last ingest as failed, keeping its timestamp.
func (s *FrameStore) MarkUnhealthy() {
	s.liveness.OK = false
}

// Total is the number of frames accepted since start.
func (s *FrameStore) Total() uint64 {
	return s.total
}

// DecodeFrame decodes a base64 frame. A data URL prefix
// ("data:image/jpeg;base64,") and missing padding are tolerated.
func DecodeFrame(text string) ([]byte, error) {
	payload := text
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.IndexByte(payload, ','); idx >= 0 {
			payload = payload[idx+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		data = raw
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrDecode)
	}
	return data, nil
}
