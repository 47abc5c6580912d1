// Package chunkloader maps page requests onto remote chunk fetches, feeds
// fetched words into the word store and cache, and sweeps whole levels in the
// background.
//
// Chunk indices are 0-based; page numbers are 1-based.
package chunkloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/starford/vocabhive/internal/apperr"
	"github.com/starford/vocabhive/internal/models"
	"github.com/starford/vocabhive/internal/origin"
)

// Defaults for the background sweep.
const (
	DefaultBatchSize  = 3
	DefaultSweepDelay = time.Second
)

const globalKey = "global"

// Store is the subset of the word store the loader writes to.
type Store interface {
	BulkUpsertWords(ctx context.Context, entries []models.WordEntry) error
	BulkUpsertTags(ctx context.Context, tags []models.Tag) error
}

// Cache is the subset of the two-tier cache the loader uses.
type Cache interface {
	GetMetadata(ctx context.Context, key string, dst any) bool
	SetMetadata(ctx context.Context, key string, v any) error
	GetChunk(ctx context.Context, key string) ([]models.WordEntry, bool)
	SetChunk(ctx context.Context, key string, words []models.WordEntry) error
}

// ChunkEvent describes a chunk that was fetched and stored.
type ChunkEvent struct {
	Level    models.Level `json:"level"`
	Index    int          `json:"chunk"`
	Words    int          `json:"words"`
	Progress float64      `json:"progress"`
}

// Loader tracks loaded chunks per level. It is safe for concurrent use;
// construct one per process with New.
type Loader struct {
	origin    origin.Fetcher
	store     Store
	cache     Cache
	logger    *slog.Logger
	batchSize int
	delay     time.Duration
	onChunk   func(ChunkEvent)

	fetches singleflight.Group

	mu       sync.Mutex
	global   *models.GlobalMetadata
	levels   map[models.Level]*models.LevelMetadata
	loaded   map[models.Level]map[int]struct{}
	sweeping map[models.Level]bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithBatchSize sets how many chunks a sweep fetches concurrently.
func WithBatchSize(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.batchSize = n
		}
	}
}

// WithSweepDelay sets the pause between sweep batches.
func WithSweepDelay(d time.Duration) Option {
	return func(ld *Loader) {
		if d >= 0 {
			ld.delay = d
		}
	}
}

// WithOnChunkLoaded registers a callback invoked after each successful chunk load.
func WithOnChunkLoaded(fn func(ChunkEvent)) Option {
	return func(ld *Loader) { ld.onChunk = fn }
}

// New creates a Loader.
func New(f origin.Fetcher, store Store, cache Cache, opts ...Option) *Loader {
	l := &Loader{
		origin:    f,
		store:     store,
		cache:     cache,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		delay:     DefaultSweepDelay,
		levels:    make(map[models.Level]*models.LevelMetadata),
		loaded:    make(map[models.Level]map[int]struct{}),
		sweeping:  make(map[models.Level]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func levelKey(level models.Level) string { return "level-" + string(level) }

func chunkKey(level models.Level, index int) string {
	return fmt.Sprintf("%s-%d", level, index)
}

// LoadGlobalMetadata returns the global metadata. After the first success the
// copy is held in memory for the lifetime of the Loader. Its tags are upserted
// into the store at that point.
func (l *Loader) LoadGlobalMetadata(ctx context.Context) (*models.GlobalMetadata, error) {
	l.mu.Lock()
	g := l.global
	l.mu.Unlock()
	if g != nil {
		return g, nil
	}

	var m models.GlobalMetadata
	if !l.cache.GetMetadata(ctx, globalKey, &m) {
		v, err, _ := l.fetches.Do(globalKey, func() (any, error) {
			return l.origin.GlobalMetadata(context.WithoutCancel(ctx))
		})
		if err != nil {
			return nil, &apperr.MetadataError{Key: globalKey, Err: err}
		}
		m = *v.(*models.GlobalMetadata)
		if err := l.cache.SetMetadata(ctx, globalKey, m); err != nil {
			l.logger.Warn("loader: cache global metadata failed", slog.String("error", err.Error()))
		}
	}

	if len(m.Tags) > 0 {
		if err := l.store.BulkUpsertTags(ctx, m.Tags); err != nil {
			l.logger.Warn("loader: upsert metadata tags failed", slog.String("error", err.Error()))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global == nil {
		l.global = &m
	}
	return l.global, nil
}

// LoadLevelMetadata returns the metadata of level via the cache, falling back
// to the origin. When the origin fails, the last copy seen by this Loader is
// used if there is one.
func (l *Loader) LoadLevelMetadata(ctx context.Context, level models.Level) (*models.LevelMetadata, error) {
	key := levelKey(level)
	var m models.LevelMetadata
	if l.cache.GetMetadata(ctx, key, &m) {
		l.remember(level, &m)
		return &m, nil
	}

	v, err, _ := l.fetches.Do(key, func() (any, error) {
		return l.origin.LevelMetadata(context.WithoutCancel(ctx), level)
	})
	if err != nil {
		l.mu.Lock()
		last := l.levels[level]
		l.mu.Unlock()
		if last != nil {
			l.logger.Warn("loader: level metadata refresh failed, using last known copy",
				slog.String("level", string(level)),
				slog.String("error", err.Error()))
			cp := *last
			return &cp, nil
		}
		return nil, &apperr.MetadataError{Key: key, Err: err}
	}
	m = *v.(*models.LevelMetadata)
	if err := l.cache.SetMetadata(ctx, key, m); err != nil {
		l.logger.Warn("loader: cache level metadata failed",
			slog.String("level", string(level)),
			slog.String("error", err.Error()))
	}
	l.remember(level, &m)
	return &m, nil
}

func (l *Loader) remember(level models.Level, m *models.LevelMetadata) {
	cp := *m
	l.mu.Lock()
	l.levels[level] = &cp
	l.mu.Unlock()
}

// ChunkIndex returns the 0-based chunk holding the record at offset
// (page-1)*pageSize, clamped to [0, TotalChunks-1].
func ChunkIndex(meta models.LevelMetadata, page, pageSize int) int {
	if meta.TotalChunks <= 0 || meta.WordsPerChunk <= 0 {
		return 0
	}
	off, err := Offset(page, pageSize)
	if err != nil {
		if page > 1 {
			return meta.TotalChunks - 1
		}
		return 0
	}
	return max(0, min(off/meta.WordsPerChunk, meta.TotalChunks-1))
}

// Offset returns the level position page starts at. Pages whose offset does
// not fit in an int are rejected.
func Offset(page, pageSize int) (int, error) {
	if err := validatePage(page, pageSize); err != nil {
		return 0, err
	}
	return (page - 1) * pageSize, nil
}

func validatePage(page, pageSize int) error {
	if page < 1 {
		return fmt.Errorf("page %d must be >= 1: %w", page, apperr.ErrInvalidArgument)
	}
	if pageSize < 1 {
		return fmt.Errorf("page size %d must be > 0: %w", pageSize, apperr.ErrInvalidArgument)
	}
	if page-1 > math.MaxInt/pageSize {
		return fmt.Errorf("page %d of size %d is out of range: %w", page, pageSize, apperr.ErrInvalidArgument)
	}
	return nil
}

// ComputeRequiredChunk returns the chunk index a page of level starts in.
func (l *Loader) ComputeRequiredChunk(ctx context.Context, level models.Level, page, pageSize int) (int, error) {
	if err := validatePage(page, pageSize); err != nil {
		return 0, err
	}
	meta, err := l.LoadLevelMetadata(ctx, level)
	if err != nil {
		return 0, err
	}
	return ChunkIndex(*meta, page, pageSize), nil
}

// LoadChunk returns the words of chunk index of level. An already loaded chunk
// is served from the cache; otherwise, or on a cache miss, the chunk is
// fetched, upserted into the store, cached and marked loaded. A failed fetch
// returns a *apperr.ChunkLoadError and leaves the chunk unmarked.
//
// Concurrent loads of the same chunk share one fetch. A fetch that has started
// runs to completion even if ctx is canceled.
func (l *Loader) LoadChunk(ctx context.Context, level models.Level, index int) ([]models.WordEntry, error) {
	if index < 0 {
		return nil, fmt.Errorf("chunk index %d: %w", index, apperr.ErrInvalidArgument)
	}
	l.mu.Lock()
	meta := l.levels[level]
	l.mu.Unlock()
	if meta != nil && meta.TotalChunks > 0 && index >= meta.TotalChunks {
		return nil, fmt.Errorf("chunk index %d of %d: %w", index, meta.TotalChunks, apperr.ErrInvalidArgument)
	}

	key := chunkKey(level, index)
	if l.IsLoaded(level, index) {
		if words, ok := l.cache.GetChunk(ctx, key); ok {
			return words, nil
		}
		l.logger.Debug("loader: loaded chunk missing from cache, refetching",
			slog.String("level", string(level)),
			slog.Int("chunk", index))
	}

	v, err, _ := l.fetches.Do(key, func() (any, error) {
		return l.fetchChunk(context.WithoutCancel(ctx), level, index)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.WordEntry), nil
}

func (l *Loader) fetchChunk(ctx context.Context, level models.Level, index int) ([]models.WordEntry, error) {
	chunk, err := l.origin.Chunk(ctx, level, index)
	if err != nil {
		return nil, &apperr.ChunkLoadError{Level: string(level), Index: index, Err: err}
	}

	words := chunk.Words
	if words == nil {
		words = []models.WordEntry{}
	}
	diff := level.Difficulty()
	for i := range words {
		if words[i].Difficulty == "" {
			words[i].Difficulty = diff
		}
		if words[i].Tags == nil {
			words[i].Tags = []models.Tag{}
		}
	}

	if err := l.store.BulkUpsertWords(ctx, words); err != nil {
		if !errors.Is(err, apperr.ErrStorage) {
			err = apperr.Storage("upsert chunk words", err)
		}
		return nil, err
	}
	if err := l.cache.SetChunk(ctx, chunkKey(level, index), words); err != nil {
		l.logger.Warn("loader: cache chunk failed",
			slog.String("level", string(level)),
			slog.Int("chunk", index),
			slog.String("error", err.Error()))
	}

	l.mu.Lock()
	set, ok := l.loaded[level]
	if !ok {
		set = make(map[int]struct{})
		l.loaded[level] = set
	}
	set[index] = struct{}{}
	progress := l.progressLocked(level)
	l.mu.Unlock()

	l.logger.Info("loader: chunk loaded",
		slog.String("level", string(level)),
		slog.Int("chunk", index),
		slog.Int("words", len(words)))
	if l.onChunk != nil {
		l.onChunk(ChunkEvent{Level: level, Index: index, Words: len(words), Progress: progress})
	}
	return words, nil
}

// LoadRequiredChunk ensures the chunk that page of level starts in is loaded.
func (l *Loader) LoadRequiredChunk(ctx context.Context, level models.Level, page, pageSize int) error {
	if err := validatePage(page, pageSize); err != nil {
		return err
	}
	meta, err := l.LoadLevelMetadata(ctx, level)
	if err != nil {
		return err
	}
	if meta.TotalChunks <= 0 {
		return nil
	}
	_, err = l.LoadChunk(ctx, level, ChunkIndex(*meta, page, pageSize))
	return err
}

// LoadAllChunksForLevel loads every chunk of level not yet loaded, batchSize at
// a time with a pause between batches. Per-chunk failures are logged and
// skipped. Only metadata failures and ctx cancellation end the sweep early.
// A sweep already running for level makes this call a no-op.
func (l *Loader) LoadAllChunksForLevel(ctx context.Context, level models.Level) error {
	l.mu.Lock()
	if l.sweeping[level] {
		l.mu.Unlock()
		return nil
	}
	l.sweeping[level] = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.sweeping, level)
		l.mu.Unlock()
	}()

	meta, err := l.LoadLevelMetadata(ctx, level)
	if err != nil {
		return err
	}

	var pending []int
	for i := 0; i < meta.TotalChunks; i++ {
		if !l.IsLoaded(level, i) {
			pending = append(pending, i)
		}
	}
	l.logger.Info("loader: sweep started",
		slog.String("level", string(level)),
		slog.Int("pending", len(pending)))

	failed := 0
	var fmu sync.Mutex
	for start := 0; start < len(pending); start += l.batchSize {
		if start > 0 && l.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var g errgroup.Group
		for _, idx := range pending[start:min(start+l.batchSize, len(pending))] {
			g.Go(func() error {
				if _, err := l.LoadChunk(ctx, level, idx); err != nil {
					l.logger.Warn("loader: sweep chunk failed",
						slog.String("level", string(level)),
						slog.Int("chunk", idx),
						slog.String("error", err.Error()))
					fmu.Lock()
					failed++
					fmu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	l.logger.Info("loader: sweep finished",
		slog.String("level", string(level)),
		slog.Int("failed", failed),
		slog.Float64("progress", l.Progress(level)))
	return nil
}

// IsLoaded reports whether chunk index of level is marked loaded.
func (l *Loader) IsLoaded(level models.Level, index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.loaded[level][index]
	return ok
}

// LoadedChunks returns the sorted loaded chunk indices of level.
func (l *Loader) LoadedChunks(level models.Level) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, 0, len(l.loaded[level]))
	for i := range l.loaded[level] {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Progress returns the loaded percentage of level in [0,100], or 0 when the
// level's metadata has not been seen yet.
func (l *Loader) Progress(level models.Level) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progressLocked(level)
}

func (l *Loader) progressLocked(level models.Level) float64 {
	meta := l.levels[level]
	if meta == nil || meta.TotalChunks <= 0 {
		return 0
	}
	return min(100, float64(len(l.loaded[level]))/float64(meta.TotalChunks)*100)
}

// TotalLoadProgress returns the loaded percentage across every level listed
// in global metadata, or 0 before global metadata is loaded.
func (l *Loader) TotalLoadProgress() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global == nil {
		return 0
	}
	var loaded, total int
	for _, s := range l.global.Levels {
		total += s.ChunkCount
		loaded += min(len(l.loaded[s.Level]), s.ChunkCount)
	}
	if total == 0 {
		return 0
	}
	return float64(loaded) / float64(total) * 100
}

// LevelWordCount returns the word count of level from global metadata.
func (l *Loader) LevelWordCount(ctx context.Context, level models.Level) (int, error) {
	g, err := l.LoadGlobalMetadata(ctx)
	if err != nil {
		return 0, err
	}
	s, ok := g.Level(level)
	if !ok {
		return 0, fmt.Errorf("level %s not in metadata: %w", level, apperr.ErrNotFound)
	}
	return s.WordCount, nil
}

// Reset forgets every loaded chunk and all in-memory metadata. Call it after
// the word store has been cleared.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.global = nil
	l.levels = make(map[models.Level]*models.LevelMetadata)
	l.loaded = make(map[models.Level]map[int]struct{})
}
