package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRegistryLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clean.star"), "# Trim whitespace\n\ndef clean(s):\n    return s.strip()\n")
	writeFile(t, filepath.Join(dir, "lib", "dates.star"), "def parse(s):\n    return s\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".git", "hook.star"), "ignored")

	r := NewRegistry([]string{dir, filepath.Join(dir, "missing")})
	if err := r.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 scripts, got %d", len(list))
	}
	if list[0].Name != "clean.star" || list[1].Name != "lib/dates.star" {
		t.Fatalf("unexpected order %q %q", list[0].Name, list[1].Name)
	}
	if list[0].Description != "Trim whitespace" {
		t.Fatalf("unexpected description %q", list[0].Description)
	}
	if list[1].Description != "" {
		t.Fatalf("expected no description, got %q", list[1].Description)
	}
	src, version, ok := r.Source("lib/dates.star")
	if !ok || len(src) == 0 || version == "" {
		t.Fatalf("expected source for lib/dates.star")
	}
}

func TestRegistryEarlierPathWins(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(first, "a.star"), "# first\n")
	writeFile(t, filepath.Join(second, "a.star"), "# second\n")
	r := NewRegistry([]string{first, second})
	if err := r.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	script, ok := r.Get("a.star")
	if !ok || script.Description != "first" {
		t.Fatalf("expected first path to win, got %+v", script)
	}
}

func TestRegistryCreate(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry([]string{dir})
	script, err := r.Create("totals", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if script.Name != "totals.star" || script.Description != "totals" {
		t.Fatalf("unexpected script %+v", script)
	}
	if _, err := os.Stat(filepath.Join(dir, "totals.star")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if _, err := r.Create("totals.star", ""); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := r.Create("../escape", ""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestRegistryReloadScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.star")
	writeFile(t, path, "x = 1\n")
	r := NewRegistry([]string{dir})
	if err := r.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before, _ := r.Get("a.star")

	writeFile(t, path, "x = 2\n")
	name, err := r.ReloadScript(path)
	if err != nil || name != "a.star" {
		t.Fatalf("ReloadScript: %q %v", name, err)
	}
	after, _ := r.Get("a.star")
	if after.Version == before.Version {
		t.Fatalf("expected version to change")
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := r.ReloadScript(path); err != nil {
		t.Fatalf("ReloadScript after remove: %v", err)
	}
	if _, ok := r.Get("a.star"); ok {
		t.Fatalf("expected script to be dropped")
	}

	if _, err := r.ReloadScript(filepath.Join(t.TempDir(), "b.star")); err == nil {
		t.Fatalf("expected error for path outside library")
	}
}
