package libwatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sameehj/gridbridge/pkg/library"
)

func TestShouldReload(t *testing.T) {
	cases := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "a.star", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "a.star", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "a.star", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "a.txt", Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		if got := shouldReload(tc.event); got != tc.want {
			t.Fatalf("shouldReload(%v) = %v, want %v", tc.event, got, tc.want)
		}
	}
}

func TestWatcherReloadsChangedScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.star")
	if err := os.WriteFile(path, []byte("# one\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	registry := library.NewRegistry([]string{dir})
	if err := registry.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	reloaded := make(chan string, 4)
	w := New(registry, []string{dir, filepath.Join(dir, "missing")}, func(name string) { reloaded <- name })
	w.delay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		if err := os.WriteFile(path, []byte("# two\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		select {
		case name := <-reloaded:
			if name != "a.star" {
				t.Fatalf("unexpected reload name %q", name)
			}
			script, _ := registry.Get("a.star")
			if script.Description != "two" {
				t.Fatalf("expected reloaded content, got %q", script.Description)
			}
			cancel()
			<-done
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for reload")
		}
	}
}
