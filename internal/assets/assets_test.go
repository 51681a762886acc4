package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Faultbox/daeprim/pkg/prim"
)

// document returns a one-geometry COLLADA file with the given polygon
// vertex count.
func document(vcount int) string {
	indices := ""
	for i := 0; i < vcount; i++ {
		indices += fmt.Sprintf("%d ", i%3)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<COLLADA xmlns="http://www.collada.org/2005/11/COLLADASchema" version="1.4.1">
  <asset><up_axis>Z_UP</up_axis></asset>
  <library_geometries>
    <geometry id="Tri-mesh">
      <mesh>
        <source id="pos"><float_array id="pos-array" count="9">0 0 0 1 0 0 0 1 0</float_array></source>
        <vertices id="verts"><input semantic="POSITION" source="#pos"/></vertices>
        <polylist count="1">
          <input semantic="VERTEX" source="#verts" offset="0"/>
          <vcount>%d</vcount>
          <p>%s</p>
        </polylist>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`, vcount, indices)
}

func writeDocument(t *testing.T, dir, name string, vcount int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(document(vcount)), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestManagerLoadCaches(t *testing.T) {
	path := writeDocument(t, t.TempDir(), "tri.dae", 3)
	m := NewManager(nil, 1, nil)

	first, err := m.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("got %d primitives, want 1", len(first))
	}

	second, err := m.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if &first[0] != &second[0] {
		t.Error("second load did not come from the cache")
	}

	if hits, misses := m.Stats(); hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses; want 1, 1", hits, misses)
	}

	m.Invalidate(path)
	if _, err := m.Load(path); err != nil {
		t.Fatal(err)
	}
	if _, misses := m.Stats(); misses != 2 {
		t.Errorf("invalidated entry still cached (%d misses)", misses)
	}
}

func TestManagerDoesNotCacheFailures(t *testing.T) {
	path := writeDocument(t, t.TempDir(), "quad.dae", 4)
	m := NewManager(nil, 1, nil)

	for i := 0; i < 2; i++ {
		if _, err := m.Load(path); !errors.Is(err, prim.ErrUnsupportedFormat) {
			t.Fatalf("attempt %d: error = %v", i, err)
		}
	}
	if m.cache.Len() != 0 {
		t.Errorf("failed import was cached")
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeDocument(t, dir, "a.dae", 3),
		writeDocument(t, dir, "quad.dae", 4),
		writeDocument(t, dir, "b.dae", 3),
		filepath.Join(dir, "missing.dae"),
		writeDocument(t, dir, "c.dae", 3),
	}

	m := NewManager(prim.NewLoader(), 3, nil)
	results, err := m.LoadAll(context.Background(), paths)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(results) != len(paths) {
		t.Fatalf("got %d results, want %d", len(results), len(paths))
	}

	for i, r := range results {
		if r.Path != paths[i] {
			t.Errorf("result %d path = %s, want %s", i, r.Path, paths[i])
		}
	}

	for _, i := range []int{0, 2, 4} {
		if results[i].Err != nil || len(results[i].Primitives) != 1 {
			t.Errorf("%s: %d primitives, err %v", results[i].Path, len(results[i].Primitives), results[i].Err)
		}
	}
	if !errors.Is(results[1].Err, prim.ErrUnsupportedFormat) {
		t.Errorf("quad error = %v", results[1].Err)
	}
	// Unreadable documents are recovered into an empty result.
	if results[3].Err != nil || len(results[3].Primitives) != 0 {
		t.Errorf("missing file: %v, %v", results[3].Primitives, results[3].Err)
	}
}

func TestLoadAllCancelled(t *testing.T) {
	path := writeDocument(t, t.TempDir(), "tri.dae", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(nil, 2, nil)
	if _, err := m.LoadAll(ctx, []string{path, path}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCache(t *testing.T) {
	c := NewCache()
	prims := []*prim.Primitive{{ID: "a"}}

	if _, ok := c.Get("a"); ok {
		t.Error("empty cache returned a hit")
	}
	c.Set("a", prims)
	if got, ok := c.Get("a"); !ok || got[0].ID != "a" {
		t.Errorf("Get = %v, %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d", c.Len())
	}

	c.Delete("a")
	if c.Len() != 0 {
		t.Errorf("Len after Delete = %d", c.Len())
	}

	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("stats = %d, %d; want 1, 1", hits, misses)
	}
}

type reimport struct {
	path  string
	prims []*prim.Primitive
	err   error
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, 1, nil)

	events := make(chan reimport, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Watch(ctx, dir, 20*time.Millisecond, func(path string, prims []*prim.Primitive, err error) {
			select {
			case events <- reimport{path, prims, err}:
			case <-ctx.Done():
			}
		})
	}()

	// Keep writing until the watcher is up and reports a matching import.
	waitFor := func(vcount int, match func(reimport) bool) reimport {
		t.Helper()
		deadline := time.After(5 * time.Second)
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()
		for {
			writeDocument(t, dir, "chair.dae", vcount)
			select {
			case ev := <-events:
				if match(ev) {
					return ev
				}
			case <-tick.C:
			case <-deadline:
				t.Fatal("no matching re-import event")
			}
		}
	}

	// Non-documents are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ev := waitFor(3, func(ev reimport) bool { return len(ev.prims) == 1 })
	if filepath.Base(ev.path) != "chair.dae" || ev.err != nil {
		t.Errorf("first event = %+v", ev)
	}

	ev = waitFor(4, func(ev reimport) bool { return ev.err != nil })
	if !errors.Is(ev.err, prim.ErrUnsupportedFormat) {
		t.Errorf("second event error = %v", ev.err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop")
	}
}

func TestWatchMissingDir(t *testing.T) {
	m := NewManager(nil, 1, nil)
	err := m.Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Millisecond, func(string, []*prim.Primitive, error) {})
	if err == nil {
		t.Error("watching a missing directory succeeded")
	}
}

func TestIsDocument(t *testing.T) {
	for path, want := range map[string]bool{
		"chair.dae":     true,
		"CHAIR.DAE":     true,
		"chair.dae.bak": false,
		"chair.glb":     false,
	} {
		if got := IsDocument(path); got != want {
			t.Errorf("IsDocument(%q) = %v, want %v", path, got, want)
		}
	}
}
