package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/snitchvis/backend/event"
)

func TestRequestPixels(t *testing.T) {
	r := Request{Size: 500, FPS: 20, Duration: 10 * time.Second}
	if got := r.Pixels(); got != 500*500*20*10 {
		t.Fatalf("Pixels = %d, want %d", got, 500*500*20*10)
	}
}

func TestDistinctUsersFirstSeenOrder(t *testing.T) {
	events := []event.Event{
		{Username: "bob"},
		{Username: "alice"},
		{Username: "bob"},
		{Username: "carol"},
	}
	got := distinctUsers(events)
	want := []string{"bob", "alice", "carol"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCommandRendererNoCommand(t *testing.T) {
	r := &CommandRenderer{DataDir: t.TempDir()}
	if _, err := r.Render(context.Background(), Job{}); err == nil {
		t.Fatal("expected error with no command configured")
	}
}

func TestCommandRendererRunsScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-renderer.sh")
	// copies the job file to the output path
	if err := os.WriteFile(script, []byte("#!/bin/sh\ncp \"$1\" \"$2\"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	r := &CommandRenderer{Command: script, DataDir: dir}
	out, err := r.Render(context.Background(), Job{GuildID: 1, Size: 100})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("output file is empty")
	}
}

func TestCommandRendererFailureIncludesStderr(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "broken-renderer.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho boom >&2\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	r := &CommandRenderer{Command: script, DataDir: dir}
	_, err := r.Render(context.Background(), Job{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error %q does not carry renderer stderr", err)
	}
}
