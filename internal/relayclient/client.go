// Package relayclient is a typed client for the frame relay's HTTP and
// WebSocket endpoints.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/firesight/frame-relay/pkg/types"
)

// DefaultTimeout matches the producer's per-request budget.
const DefaultTimeout = 500 * time.Millisecond

// ErrNoImage is returned by LastImage when the relay holds no frame.
var ErrNoImage = errors.New("no image available")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("relay returned %d", e.Code)
	}
	return fmt.Sprintf("relay returned %d: %s", e.Code, e.Detail)
}

// Client talks to one relay.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer

	// UseCBOR sends push bodies as CBOR instead of JSON.
	UseCBOR bool
}

// New returns a client for baseURL (e.g. http://localhost:8010). A zero
// timeout means DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

// BaseURL returns the relay address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Push submits one base64 frame.
func (c *Client) Push(ctx context.Context, imageB64 string) error {
	req := types.PushRequest{ImageB64: imageB64}

	var (
		body        []byte
		err         error
		contentType string
	)
	if c.UseCBOR {
		body, err = cbor.Marshal(req)
		contentType = "application/cbor"
	} else {
		body, err = json.Marshal(req)
		contentType = "application/json"
	}
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/push_image", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out types.PushResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Detail: out.Detail}
	}
	return nil
}

// Ping calls /ping.
func (c *Client) Ping(ctx context.Context) (types.Ping, error) {
	var out types.Ping
	err := c.getJSON(ctx, "/ping", &out)
	return out, err
}

// Stats calls /stats.
func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var out types.Stats
	err := c.getJSON(ctx, "/stats", &out)
	return out, err
}

// FireStatus calls /fire_status.
func (c *Client) FireStatus(ctx context.Context) (types.FireStatus, error) {
	var out types.FireStatus
	err := c.getJSON(ctx, "/fire_status", &out)
	return out, err
}

// LastImage returns the base64 text of the retained frame, or ErrNoImage.
func (c *Client) LastImage(ctx context.Context) (string, error) {
	var out types.LastImage
	err := c.getJSON(ctx, "/last_image", &out)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return "", ErrNoImage
	}
	if err != nil {
		return "", err
	}
	return out.ImageB64, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var detail struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(body, &detail)
		msg := detail.Detail
		if msg == "" {
			msg = detail.Error
		}
		return &StatusError{Code: resp.StatusCode, Detail: msg}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Watch connects to a push endpoint ("/ws/video_stream" or
// "/ws/fire_image") and calls fn for every frame until ctx is done, fn
// returns an error, or the connection fails. A ctx-driven stop returns nil.
func (c *Client) Watch(ctx context.Context, path string, fn func(imageB64 string) error) error {
	wsURL, err := websocketURL(c.baseURL, path)
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := fn(string(data)); err != nil {
			return err
		}
	}
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
