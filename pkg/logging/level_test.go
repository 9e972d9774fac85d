package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		want    slog.Level
		wantErr bool
	}{
		{"", 0, slog.LevelInfo, false},
		{"", 1, slog.LevelDebug, false},
		{"", 3, LevelTrace, false},
		{"WARN", 2, slog.LevelWarn, false},
		{"error", 0, slog.LevelError, false},
		{"loud", 0, slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.name, tt.count)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q, %d) error = %v", tt.name, tt.count, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q, %d) = %v, want %v", tt.name, tt.count, got, tt.want)
		}
	}
}

func TestCompactHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	r := slog.NewRecord(time.Date(2025, 1, 2, 13, 4, 5, 0, time.UTC), slog.LevelInfo, "Node added", 0)
	r.AddAttrs(slog.Int64("nodeID", 4), slog.String("kind", "upload"), slog.String("requestID", "0123456789abcdef"))
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got := buf.String()
	want := "[INFO]  13:04:05 Node added | nodeID=4 kind=upload req=01234567\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if h.Enabled(context.Background(), LevelTrace) {
		t.Error("TRACE should be disabled at DEBUG")
	}
}

func TestCompactHandlerAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))

	l.With("op", "blend").WithGroup("node").Log(context.Background(), LevelTrace, "Backend call", "id", 3)
	got := buf.String()
	if !strings.HasPrefix(got, "[TRACE] ") {
		t.Errorf("Expected TRACE label, got %q", got)
	}
	if !strings.HasSuffix(got, "Backend call | op=blend node.id=3\n") {
		t.Errorf("Unexpected attrs in %q", got)
	}
}

func TestCompactHandlerShortensDataURIs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewCompactHandler(&buf, nil))

	uri := "data:image/png;base64," + strings.Repeat("A", 4096)
	l.Info("Image stored", "image", uri)
	if got := buf.String(); len(got) > 200 || !strings.Contains(got, "(4118 bytes)") {
		t.Errorf("Data URI not shortened: %q", got)
	}
}

func TestRequestLevel(t *testing.T) {
	if requestLevel("/api/pointer") != LevelTrace || requestLevel("/api/subscribe/scene") != LevelTrace {
		t.Error("Pointer and subscribe requests should log at TRACE")
	}
	if requestLevel("/api/nodes") != slog.LevelInfo {
		t.Error("Other requests should log at INFO")
	}
}
