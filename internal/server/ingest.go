package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/firesight/frame-relay/internal/events"
	"github.com/firesight/frame-relay/internal/relay"
	"github.com/firesight/frame-relay/pkg/types"
)

const contentTypeCBOR = "application/cbor"

// missingImageDetail is the detail producers match on for a bad request.
const missingImageDetail = "No image_b64"

func (s *Server) handlePushImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	req, err := decodePushRequest(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes), r.Header.Get("Content-Type"))
	if err != nil {
		s.metrics.IngestRejected.Add(1)
		log.Error("Rejected /push_image: %v", err)
		writeJSONWithStatus(w, types.PushResponse{Status: types.StatusError, Detail: missingImageDetail}, http.StatusBadRequest)
		return
	}

	res, err := s.hub.Ingest(req.ImageB64)
	switch {
	case relay.IsClientError(err):
		s.metrics.IngestRejected.Add(1)
		log.Error("No image_b64 in request to /push_image")
		writeJSONWithStatus(w, types.PushResponse{Status: types.StatusError, Detail: missingImageDetail}, http.StatusBadRequest)
		return
	case err != nil:
		s.metrics.IngestFailed.Add(1)
		s.events.PublishStatus(types.FireStatus{Status: types.StatusWaiting})
		writeJSONWithStatus(w, types.PushResponse{Status: types.StatusError, Detail: err.Error()}, http.StatusInternalServerError)
		return
	}

	s.recordIngest(res, time.Since(start))
	writeJSON(w, types.PushResponse{Status: types.StatusOK})
}

func (s *Server) recordIngest(res relay.IngestResult, took time.Duration) {
	received := types.FormatTimestamp(res.ReceivedAt)

	s.metrics.FramesIngested.Add(1)
	if res.DecodeErr != nil {
		s.metrics.DecodeErrors.Add(1)
	}
	s.metrics.PushSent.Add(uint64(res.Delivered))
	s.metrics.PushDropped.Add(uint64(res.Dropped))
	s.metrics.LastFrameBytes.Store(uint64(res.Size))
	s.metrics.UpdateIngestLatency(took)
	s.syncSubscriberMetrics()

	if res.BecameHealthy {
		s.events.PublishStatus(types.FireStatus{Status: types.StatusGood, LastTime: received})
	}
	s.events.PublishFrame(events.FrameNotice{
		Size:      res.Size,
		Time:      received,
		Delivered: res.Delivered,
		Dropped:   res.Dropped,
	})
	log.Info("Image received via /push_image at %s", received)
}

// decodePushRequest parses a JSON body, or CBOR when the content type says
// so. Parse failures wrap relay.ErrMalformedBody.
func decodePushRequest(body io.Reader, contentType string) (types.PushRequest, error) {
	var req types.PushRequest

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == contentTypeCBOR {
		if err := cbor.NewDecoder(body).Decode(&req); err != nil {
			return req, fmt.Errorf("%w: %v", relay.ErrMalformedBody, err)
		}
		return req, nil
	}

	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, fmt.Errorf("%w: body exceeds %d bytes", relay.ErrMalformedBody, tooLarge.Limit)
		}
		return req, fmt.Errorf("%w: %v", relay.ErrMalformedBody, err)
	}
	return req, nil
}
