package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/firesight/frame-relay/internal/relay"
)

// wsSubscriber adapts a websocket connection to relay.Subscriber. Writes
// come from the hub and the ping loop, so they share writeMu.
type wsSubscriber struct {
	id        string
	conn      *websocket.Conn
	writeMu   sync.Mutex
	writeWait time.Duration
	closeOnce sync.Once
}

func newWSSubscriber(conn *websocket.Conn, writeWait time.Duration) *wsSubscriber {
	return &wsSubscriber{
		id:        uuid.NewString(),
		conn:      conn,
		writeWait: writeWait,
	}
}

func (c *wsSubscriber) ID() string {
	return c.id
}

func (c *wsSubscriber) Send(text string) error {
	return c.write(websocket.TextMessage, []byte(text))
}

func (c *wsSubscriber) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}

func (c *wsSubscriber) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

// pingLoop keeps intermediaries from dropping idle connections. There is
// no read deadline, so a silent but healthy client is never disconnected.
func (c *wsSubscriber) pingLoop(every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// handleWS upgrades the request and attaches the connection to pool until
// the client goes away. Inbound messages are read and discarded.
func (s *Server) handleWS(pool relay.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("Upgrade failed on %s: %v", r.URL.Path, err)
			return
		}
		conn.SetReadLimit(s.cfg.ReadLimit)

		sub := newWSSubscriber(conn, s.cfg.WriteTimeout)
		if err := s.hub.Attach(pool, sub); err != nil {
			log.Error("Error sending initial image to %s subscriber %s: %v", pool, sub.ID(), err)
			_ = sub.Close()
			return
		}
		s.metrics.ReplaysSent.Store(s.hub.Replays())
		s.syncSubscriberMetrics()

		done := make(chan struct{})
		if s.cfg.PingInterval > 0 {
			go sub.pingLoop(s.cfg.PingInterval, done)
		}
		defer func() {
			close(done)
			s.hub.Detach(pool, sub)
			_ = sub.Close()
			s.syncSubscriberMetrics()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("%s subscriber %s read error: %v", pool, sub.ID(), err)
				}
				return
			}
			log.Debug("Ignoring message from %s subscriber %s", pool, sub.ID())
		}
	}
}
