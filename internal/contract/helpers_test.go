package contract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"
)

const (
	defaultBaseURL        = "http://localhost:8010"
	defaultRequestTimeout = 2 * time.Second
)

var timestampPattern = regexp.MustCompile(`^\d{8}_\d{6}_\d{6}$`)

type relayClient struct {
	baseURL string
	client  *http.Client
}

func newRelayClient(t *testing.T) *relayClient {
	t.Helper()
	baseURL := os.Getenv("RELAY_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	client := &http.Client{Timeout: defaultRequestTimeout}

	if !isReachable(client, baseURL+"/ping") {
		t.Skipf("relay not reachable at %s (set RELAY_BASE_URL to run)", baseURL)
	}

	return &relayClient{
		baseURL: baseURL,
		client:  client,
	}
}

func isReachable(client *http.Client, url string) bool {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func (c *relayClient) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(c.baseURL, "http") + path
}

func (c *relayClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func (c *relayClient) getResponse(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func (c *relayClient) postJSON(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

// pushUnique posts a frame no other test run produced and returns its text.
func (c *relayClient) pushUnique(t *testing.T) string {
	t.Helper()
	payload := fmt.Sprintf("\xff\xd8contract-%d\xff\xd9", time.Now().UnixNano())
	text := base64.StdEncoding.EncodeToString([]byte(payload))
	resp, body := c.postJSON(t, "/push_image", map[string]any{"image_b64": text})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /push_image status = %d body=%s", resp.StatusCode, body)
	}
	if got := requireString(t, decodeJSONMap(t, body)["status"], "status"); got != "ok" {
		t.Fatalf("POST /push_image status field = %q", got)
	}
	return text
}

func readSSEEvent(url string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 256)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
				return string(buf[:idx]), resp.Header, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return "", nil, fmt.Errorf("sse stream closed before event")
			}
			return "", nil, fmt.Errorf("read sse: %w", readErr)
		}
	}
}

func parseSSEData(t *testing.T, event string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				t.Fatalf("empty sse data line")
			}
			return decodeJSONMap(t, []byte(payload))
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return nil
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected %s to be string, got %T", field, value)
	}
	return str
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func requireTimestamp(t *testing.T, value any, field string) {
	t.Helper()
	if ts := requireString(t, value, field); !timestampPattern.MatchString(ts) {
		t.Fatalf("%s = %q, want YYYYMMDD_HHMMSS_ffffff", field, ts)
	}
}

func assertStatsPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	status := requireString(t, payload["status"], "status")
	if status != "running" && status != "idle" {
		t.Fatalf("status = %q", status)
	}
	images := requireNumber(t, payload["images_received"], "images_received")
	if images != 0 && images != 1 {
		t.Fatalf("images_received = %v, want 0 or 1", images)
	}
	active := requireNumber(t, payload["active_clients"], "active_clients")
	streaming := requireNumber(t, payload["streaming_clients"], "streaming_clients")
	broadcast := requireNumber(t, payload["broadcast_clients"], "broadcast_clients")
	if active != streaming+broadcast {
		t.Fatalf("active_clients %v != streaming %v + broadcast %v", active, streaming, broadcast)
	}
	if _, ok := payload["last_image_time"]; !ok {
		t.Fatalf("last_image_time missing")
	}
	if payload["last_image_time"] != nil {
		requireTimestamp(t, payload["last_image_time"], "last_image_time")
	}
}
