package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"
)

var errPeerGone = errors.New("peer gone")

type fakeSub struct {
	id string

	mu     sync.Mutex
	msgs   []string
	fail   bool
	closed bool
}

func newFakeSub(id string) *fakeSub {
	return &fakeSub{id: id}
}

func (f *fakeSub) ID() string {
	return f.id
}

func (f *fakeSub) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errPeerGone
	}
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeSub) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSub) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeSub) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.msgs...)
}

func (f *fakeSub) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// stepClock only advances when the test says so.
type stepClock struct {
	mu    sync.Mutex
	now   time.Time
	slept chan time.Duration
	ticks chan struct{}
}

func newStepClock() *stepClock {
	return &stepClock{
		now:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		slept: make(chan time.Duration, 16),
		ticks: make(chan struct{}),
	}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	c.slept <- d
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ticks:
		return nil
	}
}

func (c *stepClock) Set(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Advance moves time forward and releases one pending Sleep.
func (c *stepClock) Advance(t *testing.T, d time.Duration) {
	t.Helper()
	c.Set(d)
	select {
	case c.ticks <- struct{}{}:
	case <-time.After(2 * time.Second):
		t.Fatalf("no sleeper to release")
	}
}

func (c *stepClock) waitSleep(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-c.slept:
		return d
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not sleep")
		return 0
	}
}

func encodeFrame(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
