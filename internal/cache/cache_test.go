package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/vocabhive/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testCache(t *testing.T, path string, clock *fakeClock) *Cache {
	t.Helper()
	c, err := Open(path, 16, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMetadataRoundTrip(t *testing.T) {
	c := testCache(t, filepath.Join(t.TempDir(), "cache.db"), newClock())
	ctx := context.Background()

	want := models.LevelMetadata{Level: models.LevelMiddle, TotalWords: 1000, TotalChunks: 10, WordsPerChunk: 100}
	if err := c.SetMetadata(ctx, "level-middle", want); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	var got models.LevelMetadata
	if !c.GetMetadata(ctx, "level-middle", &got) {
		t.Fatal("GetMetadata missed a fresh entry")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	clock := newClock()
	c := testCache(t, filepath.Join(t.TempDir(), "cache.db"), clock)
	ctx := context.Background()

	if err := c.SetMetadata(ctx, "x", map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(DefaultExpiry + time.Second)

	var got map[string]int
	if c.GetMetadata(ctx, "x", &got) {
		t.Errorf("expired entry returned %v", got)
	}

	// A write after expiry refreshes the entry.
	if err := c.SetMetadata(ctx, "x", map[string]int{"a": 2}); err != nil {
		t.Fatal(err)
	}
	if !c.GetMetadata(ctx, "x", &got) || got["a"] != 2 {
		t.Errorf("after rewrite got %v", got)
	}
}

func TestPersistentTierSurvivesRestart(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	words := []models.WordEntry{{ID: "w1", Word: "apple", Meaning: "fruit", Tags: []models.Tag{}}}

	first, err := Open(path, 16, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	if err := first.SetChunk(ctx, "middle-0", words); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := testCache(t, path, clock)
	if second.mem.Len() != 0 {
		t.Fatalf("new memory tier should start empty, has %d", second.mem.Len())
	}
	got, ok := second.GetChunk(ctx, "middle-0")
	if !ok || len(got) != 1 || got[0].Word != "apple" {
		t.Fatalf("GetChunk = %v, %v", got, ok)
	}
	if !second.mem.Contains(memKey(NamespaceChunks, "middle-0")) {
		t.Error("tier-2 hit was not promoted into memory")
	}
}

func TestPromotionKeepsOriginalTimestamp(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	first, err := Open(path, 16, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	if err := first.SetMetadata(ctx, "global", "v1"); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := testCache(t, path, clock)
	clock.Advance(30 * time.Minute)
	var s string
	if !second.GetMetadata(ctx, "global", &s) {
		t.Fatal("expected hit after 30m")
	}
	clock.Advance(31 * time.Minute)
	if second.GetMetadata(ctx, "global", &s) {
		t.Error("promoted entry outlived the original expiry window")
	}
}

func TestClearKey(t *testing.T) {
	c := testCache(t, filepath.Join(t.TempDir(), "cache.db"), newClock())
	ctx := context.Background()

	if err := c.SetMetadata(ctx, "k", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.SetChunk(ctx, "k", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.SetMetadata(ctx, "other", 2); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(ctx, "k"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	var n int
	if c.GetMetadata(ctx, "k", &n) {
		t.Error("metadata k survived Clear")
	}
	if _, ok := c.GetChunk(ctx, "k"); ok {
		t.Error("chunk k survived Clear")
	}
	if !c.GetMetadata(ctx, "other", &n) || n != 2 {
		t.Error("Clear removed an unrelated key")
	}
}

func TestClearNamespaceAndAll(t *testing.T) {
	c := testCache(t, filepath.Join(t.TempDir(), "cache.db"), newClock())
	ctx := context.Background()

	_ = c.SetMetadata(ctx, "m", 1)
	_ = c.SetChunk(ctx, "c", []models.WordEntry{{ID: "w"}})

	if err := c.ClearNamespace(ctx, NamespaceChunks); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.GetChunk(ctx, "c"); ok {
		t.Error("chunk survived ClearNamespace")
	}
	var n int
	if !c.GetMetadata(ctx, "m", &n) {
		t.Error("metadata removed by chunk namespace clear")
	}

	if err := c.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if c.GetMetadata(ctx, "m", &n) {
		t.Error("metadata survived ClearAll")
	}
}

func TestOpenBadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(filepath.Join(blocker, "cache.db"), 0); err == nil {
		t.Error("expected error opening cache under a regular file")
	}
}
