package vocabdb

import (
	"context"

	"github.com/starford/vocabhive/internal/models"
)

// WordStore defines the persistent store operations used by the loader and
// query layers. Consumers depend on this interface rather than *DB.
type WordStore interface {
	BulkUpsertWords(ctx context.Context, entries []models.WordEntry) error
	BulkUpsertTags(ctx context.Context, tags []models.Tag) error
	CountWords(ctx context.Context) (int, error)
	QueryPage(ctx context.Context, q PageQuery) (PageResult, error)
	SearchWords(ctx context.Context, query string) ([]models.WordEntry, error)
	FilterWords(ctx context.Context, f models.WordFilter) ([]models.WordEntry, error)
	ResetWithSeed(ctx context.Context, words []models.WordEntry, tags []models.Tag) error
	GetWord(ctx context.Context, id string) (*models.WordEntry, error)
	SetBookmark(ctx context.Context, id string, bookmarked bool) error
	ListTags(ctx context.Context) ([]models.Tag, error)
	ImportChecksum(ctx context.Context, source string) (string, error)
	RecordImport(ctx context.Context, source, checksum string) error
	Close() error
}

// Verify *DB satisfies WordStore at compile time.
var _ WordStore = (*DB)(nil)
