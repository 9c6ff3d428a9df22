package contract

import (
	"net/http"
	"testing"
	"time"
)

func TestRelayPing(t *testing.T) {
	client := newRelayClient(t)
	resp, body := client.get(t, "/ping")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /ping status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if got := requireString(t, payload["status"], "status"); got != "OK" {
		t.Fatalf("status = %q", got)
	}
	if got := requireString(t, payload["message"], "message"); got != "Server is running" {
		t.Fatalf("message = %q", got)
	}
	requireString(t, payload["timestamp"], "timestamp")
}

func TestRelayStats(t *testing.T) {
	client := newRelayClient(t)
	resp, body := client.get(t, "/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /stats status = %d", resp.StatusCode)
	}
	assertStatsPayload(t, decodeJSONMap(t, body))
}

func TestRelayPushMissingImage(t *testing.T) {
	client := newRelayClient(t)
	resp, body := client.postJSON(t, "/push_image", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /push_image {} status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if requireString(t, payload["status"], "status") != "error" ||
		requireString(t, payload["detail"], "detail") != "No image_b64" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestRelayPushThenRead(t *testing.T) {
	client := newRelayClient(t)
	text := client.pushUnique(t)

	resp, body := client.get(t, "/last_image")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /last_image status = %d", resp.StatusCode)
	}
	if got := requireString(t, decodeJSONMap(t, body)["image_b64"], "image_b64"); got != text {
		t.Fatalf("last_image differs from pushed frame")
	}

	resp, body = client.get(t, "/fire_status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /fire_status status = %d", resp.StatusCode)
	}
	status := decodeJSONMap(t, body)
	if requireString(t, status["status"], "status") != "good" {
		t.Fatalf("fire_status = %v", status)
	}
	requireTimestamp(t, status["last_time"], "last_time")

	_, body = client.get(t, "/stats")
	stats := decodeJSONMap(t, body)
	assertStatsPayload(t, stats)
	if stats["status"] != "running" || stats["images_received"] != float64(1) {
		t.Fatalf("stats after push = %v", stats)
	}
}

func TestRelayStatsStream(t *testing.T) {
	client := newRelayClient(t)
	event, headers, err := readSSEEvent(client.baseURL+"/stats/stream", 3*time.Second)
	if err != nil {
		t.Skipf("stats stream unavailable: %v", err)
	}
	if got := headers.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("stats stream content-type = %q", got)
	}
	assertStatsPayload(t, parseSSEData(t, event))
}
