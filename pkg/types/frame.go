package types

import (
	"fmt"
	"time"
)

// Frame is the single retained annotated frame.
type Frame struct {
	Data       []byte    // Decoded JPEG bytes; nil when the text form failed to decode
	Text       string    // Base64 text exactly as submitted by the producer
	ReceivedAt time.Time // Ingestion time
}

// HasData reports whether the binary form is available.
func (f Frame) HasData() bool {
	return len(f.Data) > 0
}

// Liveness tracks whether the most recent ingest succeeded.
type Liveness struct {
	OK       bool
	LastTime time.Time // zero until the first successful ingest
}

// PushRequest is the body of POST /push_image (JSON or CBOR).
type PushRequest struct {
	ImageB64 string `json:"image_b64" cbor:"image_b64"`
}

// PushResponse is returned by POST /push_image.
type PushResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// FireStatus is returned by GET /fire_status.
type FireStatus struct {
	Status   string `json:"status"`
	LastTime string `json:"last_time,omitempty"`
}

// LastImage is returned by GET /last_image.
type LastImage struct {
	ImageB64 string `json:"image_b64,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Ping is returned by GET /ping.
type Ping struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Stats is returned by GET /stats and streamed by /stats/stream.
//
// ImagesReceived is 0 or 1 (a decoded frame is held); FramesTotal is the
// cumulative count of accepted frames.
type Stats struct {
	Status           string  `json:"status"`
	ImagesReceived   int     `json:"images_received"`
	ActiveClients    int     `json:"active_clients"`
	StreamingClients int     `json:"streaming_clients"`
	BroadcastClients int     `json:"broadcast_clients"`
	LastImageTime    *string `json:"last_image_time"`
	FramesTotal      uint64  `json:"frames_total"`
	MJPEGClients     int     `json:"mjpeg_clients"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	UptimeFormatted  string  `json:"uptime_formatted"`
	FPS              float64 `json:"fps"`
}

// Status labels
const (
	StatusRunning = "running"
	StatusIdle    = "idle"
	StatusGood    = "good"
	StatusWaiting = "waiting"
	StatusOK      = "ok"
	StatusPingOK  = "OK"
	StatusError   = "error"
)

// FormatTimestamp renders t as YYYYMMDD_HHMMSS_ffffff, the layout the
// dashboard and producer expect for last_time fields.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// FormatUptime renders d as HH:MM:SS, with a day prefix past 24h.
func FormatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	h := (total % 86400) / 3600
	m := (total % 3600) / 60
	s := total % 60
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
