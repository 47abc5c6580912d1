// Package wordservice is the read-side contract used by UI clients: level
// pagination on top of the chunk loader, plus search, filtering, bookmarking,
// imports and sample seeding against the word store.
package wordservice

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/starford/vocabhive/internal/apperr"
	"github.com/starford/vocabhive/internal/chunkloader"
	"github.com/starford/vocabhive/internal/importer"
	"github.com/starford/vocabhive/internal/models"
	"github.com/starford/vocabhive/internal/vocabdb"
)

// Ranking translates a UI sort option into a store ordering.
type Ranking func(models.SortOption) (models.SortField, models.SortDirection)

// DefaultRanking orders "popular" bookmarked-first, the only popularity
// signal available.
func DefaultRanking(o models.SortOption) (models.SortField, models.SortDirection) {
	switch o {
	case models.SortOldest:
		return models.SortByDateAdded, models.Ascending
	case models.SortAlphabetical:
		return models.SortByWord, models.Ascending
	case models.SortPopular:
		return models.SortByIsBookmarked, models.Descending
	default:
		return models.SortByDateAdded, models.Descending
	}
}

// CacheAdmin clears cached metadata and chunks.
type CacheAdmin interface {
	Clear(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
}

// SampleSource provides the raw bulk sample dataset.
type SampleSource interface {
	SampleDataset(ctx context.Context) ([]byte, error)
}

// Events receives import notifications.
type Events interface {
	PublishImport(source string, words, tags int)
}

// Page is one page of a level.
type Page struct {
	Level    models.Level       `json:"level"`
	Words    []models.WordEntry `json:"words"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
	Pending  bool               `json:"pending"`
}

// Progress reports how much of a level has been loaded.
type Progress struct {
	Level        models.Level `json:"level"`
	Progress     float64      `json:"progress"`
	LoadedChunks []int        `json:"loadedChunks"`
	TotalChunks  int          `json:"totalChunks"`
}

// ImportSummary is the outcome of an import or seed.
type ImportSummary struct {
	Source  string `json:"source"`
	Words   int    `json:"words"`
	Tags    int    `json:"tags"`
	Skipped int    `json:"skipped"`
}

// Service coordinates the loader and the word store.
type Service struct {
	store    vocabdb.WordStore
	loader   *chunkloader.Loader
	cache    CacheAdmin
	samples  SampleSource
	importer *importer.Importer
	ranking  Ranking
	events   Events
	logger   *slog.Logger

	bg     context.Context
	sweeps sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithRanking replaces DefaultRanking.
func WithRanking(r Ranking) Option {
	return func(s *Service) { s.ranking = r }
}

// WithImporter replaces the default importer.
func WithImporter(im *importer.Importer) Option {
	return func(s *Service) { s.importer = im }
}

// WithEvents sets the import notification sink.
func WithEvents(e Events) Option {
	return func(s *Service) { s.events = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBackgroundContext sets the context background sweeps run under.
func WithBackgroundContext(ctx context.Context) Option {
	return func(s *Service) { s.bg = ctx }
}

// NewService creates a Service.
func NewService(store vocabdb.WordStore, loader *chunkloader.Loader, cache CacheAdmin, samples SampleSource, opts ...Option) *Service {
	s := &Service{
		store:    store,
		loader:   loader,
		cache:    cache,
		samples:  samples,
		importer: importer.New(),
		ranking:  DefaultRanking,
		logger:   slog.Default(),
		bg:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WordsByLevel returns one page of level. The page is the window
// [(page-1)*pageSize, page*pageSize) of the level in origin order; every chunk
// the window overlaps is loaded, and the window's words are then ordered by
// sort. Sorting never moves a word across pages. Bookmark state comes from the
// store. Total is the level's word count from metadata. A page with a chunk
// that failed to load is marked Pending and carries the words that did load.
func (s *Service) WordsByLevel(ctx context.Context, level models.Level, page, pageSize int, sort models.SortOption) (*Page, error) {
	start, err := chunkloader.Offset(page, pageSize)
	if err != nil {
		return nil, err
	}
	meta, err := s.loader.LoadLevelMetadata(ctx, level)
	if err != nil {
		return nil, err
	}

	out := &Page{Level: level, Words: []models.WordEntry{}, Total: meta.TotalWords, Page: page, PageSize: pageSize}
	if start >= meta.TotalWords || meta.TotalChunks <= 0 || meta.WordsPerChunk <= 0 {
		return out, nil
	}
	end := start + min(pageSize, meta.TotalWords-start)

	first := start / meta.WordsPerChunk
	last := min((end-1)/meta.WordsPerChunk, meta.TotalChunks-1)
	for idx := first; idx <= last; idx++ {
		words, err := s.loader.LoadChunk(ctx, level, idx)
		if err != nil {
			if !errors.Is(err, apperr.ErrChunkLoad) {
				return nil, err
			}
			s.logger.Warn("wordservice: required chunk unavailable",
				slog.String("level", string(level)),
				slog.Int("page", page),
				slog.Int("chunk", idx),
				slog.String("error", err.Error()))
			out.Pending = true
			continue
		}
		base := idx * meta.WordsPerChunk
		lo := max(start-base, 0)
		hi := min(end-base, len(words))
		if lo < hi {
			out.Words = append(out.Words, words[lo:hi]...)
		}
	}

	if err := s.overlayBookmarks(ctx, out.Words); err != nil {
		return nil, err
	}
	field, dir := s.ranking(sort)
	sortWindow(out.Words, field, dir)
	return out, nil
}

func (s *Service) overlayBookmarks(ctx context.Context, words []models.WordEntry) error {
	if len(words) == 0 {
		return nil
	}
	marked, err := s.store.FilterWords(ctx, models.WordFilter{BookmarkedOnly: true})
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(marked))
	for _, w := range marked {
		set[w.ID] = struct{}{}
	}
	for i := range words {
		_, words[i].IsBookmarked = set[words[i].ID]
	}
	return nil
}

// sortWindow orders words the way the store orders a page: by field, then by
// id in the same direction.
func sortWindow(words []models.WordEntry, field models.SortField, dir models.SortDirection) {
	slices.SortStableFunc(words, func(a, b models.WordEntry) int {
		var c int
		switch field {
		case models.SortByWord:
			c = strings.Compare(strings.ToLower(a.Word), strings.ToLower(b.Word))
		case models.SortByDifficulty:
			c = cmp.Compare(a.Difficulty.Rank(), b.Difficulty.Rank())
		case models.SortByIsBookmarked:
			c = cmp.Compare(boolRank(a.IsBookmarked), boolRank(b.IsBookmarked))
		default:
			c = a.DateAdded.Compare(b.DateAdded)
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if dir == models.Descending {
			return -c
		}
		return c
	})
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// QueryPage reads a page straight from the store.
func (s *Service) QueryPage(ctx context.Context, q vocabdb.PageQuery) (vocabdb.PageResult, error) {
	return s.store.QueryPage(ctx, q)
}

// Search matches query as a case-insensitive substring. A blank query matches nothing.
func (s *Service) Search(ctx context.Context, query string) ([]models.WordEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.WordEntry{}, nil
	}
	return s.store.SearchWords(ctx, query)
}

// Filter returns entries matching every criterion of f.
func (s *Service) Filter(ctx context.Context, f models.WordFilter) ([]models.WordEntry, error) {
	return s.store.FilterWords(ctx, f)
}

// Word returns one entry.
func (s *Service) Word(ctx context.Context, id string) (*models.WordEntry, error) {
	return s.store.GetWord(ctx, id)
}

// SetBookmark sets or clears an entry's bookmark.
func (s *Service) SetBookmark(ctx context.Context, id string, bookmarked bool) error {
	return s.store.SetBookmark(ctx, id, bookmarked)
}

// Tags lists every stored tag.
func (s *Service) Tags(ctx context.Context) ([]models.Tag, error) {
	return s.store.ListTags(ctx)
}

// Metadata returns the global metadata.
func (s *Service) Metadata(ctx context.Context) (*models.GlobalMetadata, error) {
	return s.loader.LoadGlobalMetadata(ctx)
}

// LoadProgress reports the loaded share of level. Progress is 0 while the
// level's metadata is unavailable.
func (s *Service) LoadProgress(ctx context.Context, level models.Level) Progress {
	p := Progress{Level: level}
	if meta, err := s.loader.LoadLevelMetadata(ctx, level); err == nil {
		p.TotalChunks = meta.TotalChunks
	} else {
		s.logger.Debug("wordservice: progress without metadata",
			slog.String("level", string(level)),
			slog.String("error", err.Error()))
	}
	p.Progress = s.loader.Progress(level)
	p.LoadedChunks = s.loader.LoadedChunks(level)
	return p
}

// TotalLoadProgress reports the loaded share across all levels.
func (s *Service) TotalLoadProgress() float64 {
	return s.loader.TotalLoadProgress()
}

// StartSweep loads every remaining chunk of level in the background.
func (s *Service) StartSweep(level models.Level) {
	s.sweeps.Add(1)
	go func() {
		defer s.sweeps.Done()
		if err := s.loader.LoadAllChunksForLevel(s.bg, level); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("wordservice: sweep aborted",
				slog.String("level", string(level)),
				slog.String("error", err.Error()))
		}
	}()
}

// WaitSweeps blocks until every sweep started by StartSweep has returned.
func (s *Service) WaitSweeps() {
	s.sweeps.Wait()
}

// ClearCache clears key from the cache, or everything when key is empty.
func (s *Service) ClearCache(ctx context.Context, key string) error {
	if key == "" {
		return s.cache.ClearAll(ctx)
	}
	return s.cache.Clear(ctx, key)
}

// Import parses r and upserts its tags and words. Malformed input imports
// nothing and is not an error.
func (s *Service) Import(ctx context.Context, source string, format importer.Format, r io.Reader) (ImportSummary, error) {
	known, err := s.store.ListTags(ctx)
	if err != nil {
		return ImportSummary{}, err
	}
	res, err := s.importer.Parse(format, r, known)
	if err != nil {
		if errors.Is(err, apperr.ErrParse) {
			s.logger.Warn("wordservice: nothing imported",
				slog.String("source", source),
				slog.String("error", err.Error()))
			return ImportSummary{Source: source}, nil
		}
		return ImportSummary{}, err
	}

	if err := s.store.BulkUpsertTags(ctx, res.Tags); err != nil {
		return ImportSummary{}, err
	}
	if err := s.store.BulkUpsertWords(ctx, res.Words); err != nil {
		return ImportSummary{}, err
	}
	sum := ImportSummary{Source: source, Words: len(res.Words), Tags: len(res.Tags), Skipped: res.Skipped}
	s.logger.Info("wordservice: import completed",
		slog.String("source", source),
		slog.Int("words", sum.Words),
		slog.Int("tags", sum.Tags),
		slog.Int("skipped", sum.Skipped))
	if s.events != nil {
		s.events.PublishImport(source, sum.Words, sum.Tags)
	}
	return sum, nil
}

// Seed replaces the store contents with the origin's sample dataset and
// forgets every loaded chunk.
func (s *Service) Seed(ctx context.Context) (ImportSummary, error) {
	data, err := s.samples.SampleDataset(ctx)
	if err != nil {
		return ImportSummary{}, &apperr.MetadataError{Key: "sample", Err: err}
	}
	res, err := s.importer.ParseJSON(data, nil)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("wordservice: sample dataset: %w", err)
	}
	if err := s.store.ResetWithSeed(ctx, res.Words, res.Tags); err != nil {
		return ImportSummary{}, err
	}
	s.loader.Reset()

	const source = "sample"
	sum := ImportSummary{Source: source, Words: len(res.Words), Tags: len(res.Tags), Skipped: res.Skipped}
	s.logger.Info("wordservice: seeded",
		slog.Int("words", sum.Words),
		slog.Int("tags", sum.Tags))
	if s.events != nil {
		s.events.PublishImport(source, sum.Words, sum.Tags)
	}
	return sum, nil
}
