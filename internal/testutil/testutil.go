// Package testutil provides shared test helpers for stores, caches and a fake chunk origin.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/vocabhive/internal/cache"
	"github.com/starford/vocabhive/internal/models"
	"github.com/starford/vocabhive/internal/vocabdb"
)

// TestStore creates a temporary word store that is automatically cleaned up.
func TestStore(t *testing.T) *vocabdb.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "vocabhive-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := vocabdb.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCache creates a temporary two-tier cache.
func TestCache(t *testing.T, opts ...cache.Option) *cache.Cache {
	t.Helper()
	c, err := cache.Open(t.TempDir()+"/cache.db", 64, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// Origin is a fake static chunk origin backed by an in-memory file map.
type Origin struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	failures map[string]int
	hits     map[string]int
}

// NewOrigin starts a fake origin that is closed on test cleanup.
func NewOrigin(t *testing.T) *Origin {
	t.Helper()
	o := &Origin{
		files:    make(map[string][]byte),
		failures: make(map[string]int),
		hits:     make(map[string]int),
	}
	o.Server = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(o.Close)
	return o
}

func (o *Origin) serve(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.hits[r.URL.Path]++
	if n := o.failures[r.URL.Path]; n != 0 {
		if n > 0 {
			o.failures[r.URL.Path] = n - 1
		}
		o.mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	body, ok := o.files[r.URL.Path]
	o.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Put publishes v as JSON at path.
func (o *Origin) Put(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	o.PutRaw(path, data)
}

// PutRaw publishes raw bytes at path.
func (o *Origin) PutRaw(path string, data []byte) {
	o.mu.Lock()
	o.files[path] = data
	o.mu.Unlock()
}

// Fail makes the next n requests for path answer 503. A negative n fails forever.
func (o *Origin) Fail(path string, n int) {
	o.mu.Lock()
	o.failures[path] = n
	o.mu.Unlock()
}

// Heal clears any pending failures for path.
func (o *Origin) Heal(path string) { o.Fail(path, 0) }

// Hits returns how many requests path has received.
func (o *Origin) Hits(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

// ChunkPath mirrors the origin's 1-based chunk file naming.
func ChunkPath(level models.Level, index int) string {
	return fmt.Sprintf("/word-chunks/%s/chunk-%d.json", level, index+1)
}

// PublishLevel splits words into chunks of perChunk and publishes the level
// metadata and every chunk file. It returns the published metadata.
func (o *Origin) PublishLevel(level models.Level, words []models.WordEntry, perChunk int) models.LevelMetadata {
	total := (len(words) + perChunk - 1) / perChunk
	meta := models.LevelMetadata{
		Level:         level,
		TotalWords:    len(words),
		TotalChunks:   total,
		WordsPerChunk: perChunk,
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	o.Put(fmt.Sprintf("/word-chunks/%s/metadata.json", level), meta)

	for i := 0; i < total; i++ {
		start := i * perChunk
		end := min(start+perChunk, len(words))
		o.Put(ChunkPath(level, i), models.Chunk{
			Meta: models.ChunkMeta{
				Level:       level,
				ChunkID:     i + 1,
				TotalChunks: total,
				WordCount:   end - start,
				StartIndex:  start,
				EndIndex:    end - 1,
			},
			Words: words[start:end],
		})
	}
	return meta
}

// PublishGlobal publishes global metadata.
func (o *Origin) PublishGlobal(m models.GlobalMetadata) {
	o.Put("/word-chunks/metadata.json", m)
}

// Words generates n entries for level with ids "<level>-<i>" and increasing dates.
func Words(level models.Level, n int) []models.WordEntry {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.WordEntry, n)
	for i := range out {
		out[i] = models.WordEntry{
			ID:         fmt.Sprintf("%s-%04d", level, i),
			Word:       fmt.Sprintf("%s word %04d", level, i),
			Meaning:    fmt.Sprintf("meaning %d", i),
			Tags:       []models.Tag{},
			DateAdded:  base.Add(time.Duration(i) * time.Hour),
			Difficulty: level.Difficulty(),
		}
	}
	return out
}

// Eventually polls cond until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
