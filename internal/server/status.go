package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/firesight/frame-relay/pkg/types"
)

const contentTypeProtobuf = "application/protobuf"

func (s *Server) handleFireStatus(w http.ResponseWriter, r *http.Request) {
	liveness := s.hub.Liveness()
	if !liveness.OK {
		writeJSON(w, types.FireStatus{Status: types.StatusWaiting})
		return
	}
	writeJSON(w, types.FireStatus{
		Status:   types.StatusGood,
		LastTime: types.FormatTimestamp(liveness.LastTime),
	})
}

func (s *Server) handleLastImage(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.hub.Current()
	if !ok {
		log.Warn("No last image available for GET /last_image")
		writeJSONWithStatus(w, types.LastImage{Error: "No image available"}, http.StatusNotFound)
		return
	}
	writeJSON(w, types.LastImage{ImageB64: frame.Text})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.Ping{
		Status:    types.StatusPingOK,
		Message:   "Server is running",
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.hub.Stats()

	if !wantsProtobuf(r) {
		writeJSON(w, stats)
		return
	}

	data, err := marshalStatsProto(stats)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeProtobuf)
	_, _ = w.Write(data)
}

func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		if err := writeSSE(w, s.hub.Stats()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, contentTypeProtobuf) ||
		strings.Contains(accept, "application/x-protobuf")
}

// marshalStatsProto encodes stats as a google.protobuf.Struct carrying the
// same keys as the JSON form.
func marshalStatsProto(stats types.Stats) ([]byte, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	pb, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build stats struct: %w", err)
	}
	return proto.Marshal(pb)
}

func writeSSE(w http.ResponseWriter, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
