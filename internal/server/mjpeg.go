package server

import (
	"net/http"

	"github.com/firesight/frame-relay/internal/relay"
)

func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	if err := s.hub.AcquireStream(s.cfg.MJPEGMaxClients); err != nil {
		s.metrics.MJPEGRejected.Add(1)
		log.Warn("Refusing MJPEG client %s: %v", r.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.metrics.MJPEGActive.Store(int64(s.hub.ActiveStreams()))
	defer func() {
		s.hub.ReleaseStream()
		s.metrics.MJPEGActive.Store(int64(s.hub.ActiveStreams()))
	}()

	w.Header().Set("Content-Type", relay.MJPEGContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debug("MJPEG client %s connected", r.RemoteAddr)
	if err := s.streamer.Stream(r.Context(), w, flusher.Flush); err != nil {
		log.Debug("MJPEG client %s disconnected: %v", r.RemoteAddr, err)
	}
}
