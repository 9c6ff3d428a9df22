package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"Error":   ERROR,
		"none":    SILENT,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("Relay", "hidden %d", 1)
	l.Warn("Relay", "shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN] [Relay] shown 2") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestNamedUsesGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(DEBUG, &buf, false)
	defer Init(INFO, nil, false)

	Named("Ingest").Debug("frame %s", "ok")

	if !strings.Contains(buf.String(), "[DEBUG] [Ingest] frame ok") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestSilentWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, true)
	l.Error("Relay", "boom")
	if buf.Len() != 0 {
		t.Fatalf("silent logger wrote %q", buf.String())
	}
}
