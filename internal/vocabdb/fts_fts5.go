//go:build sqlite_fts5

package vocabdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/starford/vocabhive/internal/apperr"
	"github.com/starford/vocabhive/internal/models"
)

// The trigram tokenizer needs at least three characters. Shorter queries, and
// queries outside ASCII, use the casefold scan.
const minTrigramQuery = 3

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS words_fts USING fts5(
			id UNINDEXED,
			word,
			meaning,
			translation,
			tokenize = 'trigram'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, w models.WordEntry) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM words_fts WHERE id = ?`, w.ID)
	_, err := tx.ExecContext(ctx, `INSERT INTO words_fts (id, word, meaning, translation) VALUES (?, ?, ?, ?)`,
		w.ID, w.Word, w.Meaning, w.Translation)
	if err != nil {
		return fmt.Errorf("upsert fts %s: %w", w.ID, err)
	}
	return nil
}

func ftsClear(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM words_fts`)
	return err
}

// SearchWords matches query as a substring of word, meaning or translation.
func (db *DB) SearchWords(ctx context.Context, query string) ([]models.WordEntry, error) {
	if utf8.RuneCountInString(query) < minTrigramQuery || !isASCII(query) {
		return db.likeSearch(ctx, query)
	}
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+prefixed("w.", wordColumns)+`
		FROM words_fts f
		JOIN words w ON w.id = f.id
		WHERE words_fts MATCH ?
		ORDER BY w.word COLLATE NOCASE, w.id
	`, phrase)
	if err != nil {
		return nil, apperr.Storage("search words", err)
	}
	entries, err := scanWords(rows)
	if err != nil {
		return nil, apperr.Storage("scan search", err)
	}
	return entries, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
