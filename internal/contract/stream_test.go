package contract

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestRelayMJPEGStream(t *testing.T) {
	client := newRelayClient(t)
	client.pushUnique(t)

	resp := client.getResponse(t, "/mjpeg_stream")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /mjpeg_stream status = %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "multipart/x-mixed-replace") ||
		!strings.Contains(contentType, "boundary=frame") {
		t.Fatalf("GET /mjpeg_stream content-type = %q", contentType)
	}

	reader := bufio.NewReader(resp.Body)
	for _, want := range []string{"--frame", "Content-Type: image/jpeg", "Content-Length: "} {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read part header: %v", err)
		}
		if !strings.HasPrefix(line, want) {
			t.Fatalf("part header line %q, want prefix %q", line, want)
		}
	}
}

func TestRelayVideoStreamReplay(t *testing.T) {
	client := newRelayClient(t)
	text := client.pushUnique(t)

	conn, _, err := websocket.DefaultDialer.Dial(client.wsURL("/ws/video_stream"), nil)
	if err != nil {
		t.Fatalf("dial /ws/video_stream: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if string(data) != text {
		t.Fatalf("replayed frame differs from last push")
	}
}

func TestRelayBroadcastReceivesPush(t *testing.T) {
	client := newRelayClient(t)

	conn, _, err := websocket.DefaultDialer.Dial(client.wsURL("/ws/fire_image"), nil)
	if err != nil {
		t.Fatalf("dial /ws/fire_image: %v", err)
	}
	defer conn.Close()

	// registration completes after the handshake; give it a moment
	time.Sleep(100 * time.Millisecond)
	text := client.pushUnique(t)

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read broadcast: %v", err)
		}
		// other producers may be pushing to the same relay
		if string(data) == text {
			return
		}
	}
}
