package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func quietSpinner(ctx context.Context, msg string) (*Spinner, *bytes.Buffer) {
	s := newSpinner(ctx, msg)
	var buf bytes.Buffer
	s.out = &buf
	return s, &buf
}

func TestSpinner_DrawsAndClears(t *testing.T) {
	s, buf := quietSpinner(context.Background(), "Loading tree")
	s.Start()
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "Loading tree") {
		t.Errorf("spinner output %q lacks the message", out)
	}
	if !strings.HasSuffix(out, "\r") {
		t.Errorf("spinner output should end by clearing the line, got %q", out)
	}
}

func TestSpinner_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := quietSpinner(ctx, "Loading tree")
	s.Start()
	cancel()

	select {
	case <-s.stopped:
	case <-time.After(time.Second):
		t.Fatal("spinner did not stop after cancellation")
	}
	if !s.Cancelled() {
		t.Error("Cancelled() = false after context cancellation")
	}
}

func TestSpinner_StopIsIdempotent(t *testing.T) {
	s, _ := quietSpinner(context.Background(), "Rendering")
	s.Start()
	s.Stop()
	s.Stop()

	never, _ := quietSpinner(context.Background(), "never started")
	never.Stop()
}

func TestSpinner_StopWithStatus(t *testing.T) {
	old := stdout
	var buf bytes.Buffer
	stdout = &buf
	defer func() { stdout = old }()

	s, _ := quietSpinner(context.Background(), "Rendering")
	s.Start()
	s.StopWithSuccess("Rendered %d formats", 2)

	s, _ = quietSpinner(context.Background(), "Rendering")
	s.StopWithError("failed")

	out := buf.String()
	if !strings.Contains(out, "Rendered 2 formats") || !strings.Contains(out, "failed") {
		t.Errorf("status output = %q", out)
	}
}
