package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/firesight/frame-relay/internal/logger"
	"github.com/firesight/frame-relay/pkg/types"
)

var log = logger.Named("Relay")

// rateWindow is the span over which Stats reports the ingest FPS.
const rateWindow = 5 * time.Second

// Hub owns the frame store and both subscriber pools. One mutex guards
// the combined state, so frame updates, pool changes and broadcasts are
// serialized and every subscriber sees frames in ingest order.
type Hub struct {
	mu       sync.Mutex
	store    FrameStore
	registry Registry
	recent   []time.Time // ingest times inside rateWindow
	replays  uint64

	clock   Clock
	started time.Time

	streamsMu sync.Mutex
	streams   int
}

// NewHub returns an empty hub. A nil clock means the system clock.
func NewHub(clock Clock) *Hub {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Hub{
		clock:   clock,
		started: clock.Now(),
	}
}

// Clock returns the hub's clock.
func (h *Hub) Clock() Clock {
	return h.clock
}

// IngestResult describes what one accepted frame did.
type IngestResult struct {
	ReceivedAt    time.Time
	Size          int   // decoded bytes, 0 on decode failure
	DecodeErr     error // non-nil when only the text form was kept
	Delivered     int   // successful sends across both pools
	Dropped       int   // subscribers removed after a failed send
	BecameHealthy bool  // liveness flipped from waiting/unhealthy to good
}

// Ingest stores text as the current frame, marks liveness healthy and
// broadcasts the frame to both pools before returning. Failed subscribers
// are closed and removed after each pool pass. A panic during processing
// is recovered, flips liveness to unhealthy and is returned as ErrInternal.
func (h *Hub) Ingest(text string) (res IngestResult, err error) {
	if text == "" {
		return res, ErrMissingImage
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			h.store.MarkUnhealthy()
			err = fmt.Errorf("%w: %v", ErrInternal, r)
			log.Error("Ingest failed: %v", err)
		}
	}()

	now := h.clock.Now()
	wasOK := h.store.Liveness().OK

	if decodeErr := h.store.Update(text, now); decodeErr != nil {
		res.DecodeErr = decodeErr
		log.Warn("Keeping text-only frame: %v", decodeErr)
	}
	h.store.MarkHealthy(now)
	h.trackRateLocked(now)

	frame, _ := h.store.Current()
	res.ReceivedAt = now
	res.Size = len(frame.Data)
	res.BecameHealthy = !wasOK

	for _, p := range []Pool{PoolBroadcast, PoolStreaming} {
		delivered, failed := h.registry.Broadcast(p, text)
		res.Delivered += delivered
		res.Dropped += len(failed)
		for _, d := range failed {
			log.Info("Dropping %s subscriber %s: %v", p, d.Sub.ID(), d.Err)
			_ = d.Sub.Close()
		}
	}

	log.Debug("Frame %s accepted (%d bytes, delivered=%d, dropped=%d)",
		types.FormatTimestamp(now), res.Size, res.Delivered, res.Dropped)
	return res, nil
}

// MarkUnhealthy flips liveness to unhealthy after a failure outside Ingest.
func (h *Hub) MarkUnhealthy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store.MarkUnhealthy()
}

// Attach registers sub in pool. For the streaming pool the current frame is
// replayed under the same lock, so the subscriber neither misses nor repeats
// a frame. A failed replay unregisters sub and returns the send error.
func (h *Hub) Attach(p Pool, sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registry.Register(p, sub)
	log.Info("%s subscriber %s connected (total: %d)", p, sub.ID(), h.registry.Len(p))

	if !p.Replays() {
		return nil
	}
	frame, ok := h.store.Current()
	if !ok {
		return nil
	}
	if err := sub.Send(frame.Text); err != nil {
		h.registry.Unregister(p, sub)
		return fmt.Errorf("replay last frame: %w", err)
	}
	h.replays++
	log.Debug("Replayed last frame to %s", sub.ID())
	return nil
}

// Detach unregisters sub from pool. It is safe to call after a broadcast
// already removed sub; the return value reports whether sub was present.
func (h *Hub) Detach(p Pool, sub Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := h.registry.Unregister(p, sub)
	if removed {
		log.Info("%s subscriber %s disconnected (remaining: %d)", p, sub.ID(), h.registry.Len(p))
	}
	return removed
}

// Current returns the retained frame.
func (h *Hub) Current() (types.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Current()
}

// CurrentJPEG returns the decoded bytes of the retained frame.
func (h *Hub) CurrentJPEG() ([]byte, bool) {
	frame, ok := h.Current()
	if !ok || !frame.HasData() {
		return nil, false
	}
	return frame.Data, true
}

// Liveness returns the last ingest status.
func (h *Hub) Liveness() types.Liveness {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Liveness()
}

// Replays returns how many last-frame replays have been sent.
func (h *Hub) Replays() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.replays
}

// Counts returns the broadcast and streaming pool sizes.
func (h *Hub) Counts() (broadcast, streaming int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Len(PoolBroadcast), h.registry.Len(PoolStreaming)
}

// Stats returns a read-only snapshot for /stats.
func (h *Hub) Stats() types.Stats {
	now := h.clock.Now()

	h.mu.Lock()
	liveness := h.store.Liveness()
	frame, hasFrame := h.store.Current()
	broadcast := h.registry.Len(PoolBroadcast)
	streaming := h.registry.Len(PoolStreaming)
	total := h.store.Total()
	h.pruneRateLocked(now)
	fps := float64(len(h.recent)) / rateWindow.Seconds()
	h.mu.Unlock()

	stats := types.Stats{
		Status:           types.StatusIdle,
		ActiveClients:    broadcast + streaming,
		StreamingClients: streaming,
		BroadcastClients: broadcast,
		FramesTotal:      total,
		MJPEGClients:     h.ActiveStreams(),
		FPS:              fps,
	}
	if liveness.OK {
		stats.Status = types.StatusRunning
	}
	if hasFrame && frame.HasData() {
		stats.ImagesReceived = 1
	}
	if !liveness.LastTime.IsZero() {
		ts := types.FormatTimestamp(liveness.LastTime)
		stats.LastImageTime = &ts
	}

	uptime := now.Sub(h.started)
	stats.UptimeSeconds = uptime.Seconds()
	stats.UptimeFormatted = types.FormatUptime(uptime)
	return stats
}

func (h *Hub) trackRateLocked(now time.Time) {
	h.recent = append(h.recent, now)
	h.pruneRateLocked(now)
}

func (h *Hub) pruneRateLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(h.recent) && !h.recent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		h.recent = append(h.recent[:0], h.recent[i:]...)
	}
}

// AcquireStream reserves an MJPEG stream slot. limit <= 0 means unbounded.
func (h *Hub) AcquireStream(limit int) error {
	h.streamsMu.Lock()
	defer h.streamsMu.Unlock()
	if limit > 0 && h.streams >= limit {
		return ErrStreamLimit
	}
	h.streams++
	return nil
}

// ReleaseStream frees a slot taken by AcquireStream.
func (h *Hub) ReleaseStream() {
	h.streamsMu.Lock()
	defer h.streamsMu.Unlock()
	if h.streams > 0 {
		h.streams--
	}
}

// ActiveStreams returns the number of open MJPEG streams.
func (h *Hub) ActiveStreams() int {
	h.streamsMu.Lock()
	defer h.streamsMu.Unlock()
	return h.streams
}

// IsClientError reports whether err should be answered with 400.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingImage) || errors.Is(err, ErrMalformedBody)
}
