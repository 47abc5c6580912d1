//go:build !sqlite_fts5

package vocabdb

import (
	"context"
	"database/sql"

	"github.com/starford/vocabhive/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search scans the words table with casefold.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _ models.WordEntry) error { return nil }

func ftsClear(_ context.Context, _ *sql.Tx) error { return nil }

// SearchWords matches query as a substring of word, meaning or translation.
func (db *DB) SearchWords(ctx context.Context, query string) ([]models.WordEntry, error) {
	return db.likeSearch(ctx, query)
}
