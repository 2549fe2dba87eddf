package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestDefaultHasRenderWidget(t *testing.T) {
	a, err := Default().Asset(context.Background(), "render.html")
	if err != nil {
		t.Fatalf("render.html: %v", err)
	}
	if a.MimeType != "text/html+skybridge" {
		t.Fatalf("mime = %q", a.MimeType)
	}
	if !strings.Contains(a.Text(), "<html") {
		t.Fatalf("unexpected body: %q", a.Text())
	}
}

func TestFSRejectsPaths(t *testing.T) {
	p := NewFS(fstest.MapFS{
		"a.html":     {Data: []byte("a")},
		"sub/b.html": {Data: []byte("b")},
		".hidden":    {Data: []byte("h")},
	})
	for _, name := range []string{"sub/b.html", "../a.html", ".hidden", "", "missing.html"} {
		if _, err := p.Asset(context.Background(), name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: expected ErrNotFound, got %v", name, err)
		}
	}
	names, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "a.html" {
		t.Fatalf("list = %v", names)
	}
}

func TestApplyPolicy(t *testing.T) {
	ctx := context.Background()
	empty := NewFS(fstest.MapFS{})

	t.Run("placeholder", func(t *testing.T) {
		p, err := Apply(ctx, PolicyPlaceholder, empty, "render.html")
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		a, err := p.Asset(ctx, "render.html")
		if err != nil {
			t.Fatalf("asset: %v", err)
		}
		if !a.Placeholder || !strings.Contains(a.Text(), "render.html") {
			t.Fatalf("expected placeholder, got %+v", a)
		}
	})

	t.Run("required", func(t *testing.T) {
		if _, err := Apply(ctx, PolicyRequired, empty, "render.html"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := Apply(ctx, PolicyRequired, Default(), "render.html"); err != nil {
			t.Fatalf("default assets should satisfy required policy: %v", err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := ParsePolicy("sometimes"); err == nil {
			t.Fatalf("expected error")
		}
		if p, err := ParsePolicy(""); err != nil || p != PolicyPlaceholder {
			t.Fatalf("empty policy: %v %v", p, err)
		}
	})
}

func TestDirPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "render.html")
	if err := os.WriteFile(file, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := OpenDir(ctx, dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	a, err := d.Asset(ctx, "render.html")
	if err != nil || a.Text() != "v1" {
		t.Fatalf("first read: %q %v", a.Text(), err)
	}

	if err := os.WriteFile(file, []byte("v2"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		a, err = d.Asset(ctx, "render.html")
		if err == nil && a.Text() == "v2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("change not observed: %q %v", a.Text(), err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestOpenDirRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "x")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := OpenDir(context.Background(), f); err == nil {
		t.Fatalf("expected error for non-directory")
	}
}

func TestDirDoesNotCacheReadOverlappingChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "render.html")
	if err := os.WriteFile(file, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := OpenDir(ctx, dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	if d.watcher == nil {
		t.Skip("fsnotify unavailable; cache disabled")
	}

	// The file changes after the first read but before its result is stored.
	changed := false
	d.afterRead = func(name string) {
		if changed {
			return
		}
		changed = true
		if err := os.WriteFile(file, []byte("v2"), 0o644); err != nil {
			t.Errorf("rewrite: %v", err)
		}
		d.invalidate(name)
	}

	a, err := d.Asset(ctx, "render.html")
	if err != nil || a.Text() != "v1" {
		t.Fatalf("first read: %q %v", a.Text(), err)
	}
	a, err = d.Asset(ctx, "render.html")
	if err != nil || a.Text() != "v2" {
		t.Fatalf("second read served stale content: %q %v", a.Text(), err)
	}
}
