package vocabdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/starford/vocabhive/internal/apperr"
	"github.com/starford/vocabhive/internal/models"
)

const wordColumns = `id, word, meaning, translation, example, pronunciation, notes, audio,
	tags, submitted_by, date_added, is_bookmarked, difficulty`

// PageQuery selects one page of entries. Page is 1-based.
type PageQuery struct {
	Page      int
	PageSize  int
	Field     models.SortField
	Direction models.SortDirection
	Filter    models.WordFilter
}

// PageResult is a page of entries plus the number of entries matching the filter.
type PageResult struct {
	Entries []models.WordEntry
	Total   int
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// BulkUpsertWords writes every entry keyed by id in a single transaction.
// Either all entries commit or none do.
func (db *DB) BulkUpsertWords(ctx context.Context, entries []models.WordEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin upsert words", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := upsertWords(ctx, tx, entries); err != nil {
		return apperr.Storage("upsert words", err)
	}
	return apperr.Storage("commit upsert words", tx.Commit())
}

// BulkUpsertTags writes every tag keyed by id in a single transaction.
func (db *DB) BulkUpsertTags(ctx context.Context, tags []models.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin upsert tags", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertTags(ctx, tx, tags); err != nil {
		return apperr.Storage("upsert tags", err)
	}
	return apperr.Storage("commit upsert tags", tx.Commit())
}

// ResetWithSeed clears words and tags and inserts the seed in one transaction,
// so readers observe either the old collections or the new ones.
func (db *DB) ResetWithSeed(ctx context.Context, words []models.WordEntry, tags []models.Tag) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin reset", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{`DELETE FROM word_tags`, `DELETE FROM words`, `DELETE FROM tags`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperr.Storage("reset clear", err)
		}
	}
	if err := ftsClear(ctx, tx); err != nil {
		return apperr.Storage("reset clear fts", err)
	}
	if err := upsertTags(ctx, tx, tags); err != nil {
		return apperr.Storage("reset tags", err)
	}
	if err := upsertWords(ctx, tx, words); err != nil {
		return apperr.Storage("reset words", err)
	}
	return apperr.Storage("commit reset", tx.Commit())
}

func upsertWords(ctx context.Context, tx *sql.Tx, entries []models.WordEntry) error {
	wordStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO words (`+wordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			word          = excluded.word,
			meaning       = excluded.meaning,
			translation   = excluded.translation,
			example       = excluded.example,
			pronunciation = excluded.pronunciation,
			notes         = excluded.notes,
			audio         = excluded.audio,
			tags          = excluded.tags,
			submitted_by  = excluded.submitted_by,
			date_added    = excluded.date_added,
			is_bookmarked = excluded.is_bookmarked,
			difficulty    = excluded.difficulty
	`)
	if err != nil {
		return fmt.Errorf("prepare word upsert: %w", err)
	}
	defer wordStmt.Close()

	clearTags, err := tx.PrepareContext(ctx, `DELETE FROM word_tags WHERE word_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare tag clear: %w", err)
	}
	defer clearTags.Close()

	linkTag, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO word_tags (word_id, tag_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tag link: %w", err)
	}
	defer linkTag.Close()

	for _, w := range entries {
		if w.ID == "" {
			return fmt.Errorf("word %q has empty id", w.Word)
		}
		tags := w.Tags
		if tags == nil {
			tags = []models.Tag{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("encode tags for %s: %w", w.ID, err)
		}
		if _, err := wordStmt.ExecContext(ctx,
			w.ID, w.Word, w.Meaning, w.Translation, w.Example, w.Pronunciation, w.Notes, w.Audio,
			string(tagsJSON), w.SubmittedBy, encodeTime(w.DateAdded), boolInt(w.IsBookmarked), string(w.Difficulty),
		); err != nil {
			return fmt.Errorf("upsert word %s: %w", w.ID, err)
		}

		// Replace tag links: delete old then insert.
		if _, err := clearTags.ExecContext(ctx, w.ID); err != nil {
			return fmt.Errorf("clear tags for %s: %w", w.ID, err)
		}
		for _, t := range tags {
			if _, err := linkTag.ExecContext(ctx, w.ID, t.ID); err != nil {
				return fmt.Errorf("link tag %s to %s: %w", t.ID, w.ID, err)
			}
		}

		if err := ftsUpsert(ctx, tx, w); err != nil {
			return err
		}
	}
	return nil
}

func upsertTags(ctx context.Context, tx execer, tags []models.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tags (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`)
	if err != nil {
		return fmt.Errorf("prepare tag upsert: %w", err)
	}
	defer stmt.Close()
	for _, t := range tags {
		if t.ID == "" {
			return fmt.Errorf("tag %q has empty id", t.Name)
		}
		if _, err := stmt.ExecContext(ctx, t.ID, t.Name); err != nil {
			return fmt.Errorf("upsert tag %s: %w", t.ID, err)
		}
	}
	return nil
}

// CountWords returns the number of stored entries.
func (db *DB) CountWords(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM words`).Scan(&n); err != nil {
		return 0, apperr.Storage("count words", err)
	}
	return n, nil
}

// QueryPage returns up to PageSize entries starting at (Page-1)*PageSize under
// the requested order. An offset past the end yields an empty page, not an error.
func (db *DB) QueryPage(ctx context.Context, q PageQuery) (PageResult, error) {
	if q.Page < 1 || q.PageSize <= 0 || q.Page-1 > math.MaxInt/q.PageSize {
		return PageResult{}, fmt.Errorf("vocabdb: page %d size %d: %w", q.Page, q.PageSize, apperr.ErrInvalidArgument)
	}
	orderBy, err := orderClause(q.Field, q.Direction)
	if err != nil {
		return PageResult{}, err
	}
	where, args := filterClause(q.Filter)

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM words`+where, args...).Scan(&total); err != nil {
		return PageResult{}, apperr.Storage("count page", err)
	}
	offset := (q.Page - 1) * q.PageSize
	if offset >= total {
		return PageResult{Entries: []models.WordEntry{}, Total: total}, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+wordColumns+` FROM words`+where+` ORDER BY `+orderBy+` LIMIT ? OFFSET ?`,
		append(args, q.PageSize, offset)...)
	if err != nil {
		return PageResult{}, apperr.Storage("query page", err)
	}
	entries, err := scanWords(rows)
	if err != nil {
		return PageResult{}, apperr.Storage("scan page", err)
	}
	return PageResult{Entries: entries, Total: total}, nil
}

// FilterWords returns every entry satisfying all criteria of f, in key order.
func (db *DB) FilterWords(ctx context.Context, f models.WordFilter) ([]models.WordEntry, error) {
	where, args := filterClause(f)
	rows, err := db.conn.QueryContext(ctx, `SELECT `+wordColumns+` FROM words`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, apperr.Storage("filter words", err)
	}
	entries, err := scanWords(rows)
	if err != nil {
		return nil, apperr.Storage("scan filter", err)
	}
	return entries, nil
}

// GetWord returns a single entry or apperr.ErrNotFound.
func (db *DB) GetWord(ctx context.Context, id string) (*models.WordEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+wordColumns+` FROM words WHERE id = ?`, id)
	if err != nil {
		return nil, apperr.Storage("get word", err)
	}
	entries, err := scanWords(rows)
	if err != nil {
		return nil, apperr.Storage("scan word", err)
	}
	if len(entries) == 0 {
		return nil, apperr.ErrNotFound
	}
	return &entries[0], nil
}

// SetBookmark sets the bookmark flag of one entry.
func (db *DB) SetBookmark(ctx context.Context, id string, bookmarked bool) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE words SET is_bookmarked = ? WHERE id = ?`, boolInt(bookmarked), id)
	if err != nil {
		return apperr.Storage("set bookmark", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("set bookmark", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ListTags returns all tags ordered by name.
func (db *DB) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name, id`)
	if err != nil {
		return nil, apperr.Storage("list tags", err)
	}
	defer rows.Close()
	out := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, apperr.Storage("scan tag", err)
		}
		out = append(out, t)
	}
	return out, apperr.Storage("list tags", rows.Err())
}

// ImportChecksum returns the checksum recorded for source, or "" if never imported.
func (db *DB) ImportChecksum(ctx context.Context, source string) (string, error) {
	var cs string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM imports WHERE source = ?`, source).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Storage("import checksum", err)
	}
	return cs, nil
}

// RecordImport stores the checksum of an imported source.
func (db *DB) RecordImport(ctx context.Context, source, checksum string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO imports (source, checksum, imported_at) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			checksum    = excluded.checksum,
			imported_at = excluded.imported_at
	`, source, checksum, time.Now().UTC())
	return apperr.Storage("record import", err)
}

// likeSearch matches query as a substring of word, meaning or translation,
// ignoring case under Unicode rules.
func (db *DB) likeSearch(ctx context.Context, query string) ([]models.WordEntry, error) {
	needle := casefold(query)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+wordColumns+`
		FROM words
		WHERE instr(casefold(word), ?1) > 0
			OR instr(casefold(meaning), ?1) > 0
			OR instr(casefold(translation), ?1) > 0
		ORDER BY word COLLATE NOCASE, id
	`, needle)
	if err != nil {
		return nil, apperr.Storage("search words", err)
	}
	entries, err := scanWords(rows)
	if err != nil {
		return nil, apperr.Storage("scan search", err)
	}
	return entries, nil
}

func orderClause(field models.SortField, dir models.SortDirection) (string, error) {
	var expr string
	switch field {
	case models.SortByDateAdded, "":
		expr = "date_added"
	case models.SortByWord:
		expr = "word COLLATE NOCASE"
	case models.SortByDifficulty:
		expr = "CASE difficulty WHEN 'beginner' THEN 1 WHEN 'intermediate' THEN 2 WHEN 'advanced' THEN 3 ELSE 0 END"
	case models.SortByIsBookmarked:
		expr = "is_bookmarked"
	default:
		return "", fmt.Errorf("vocabdb: sort field %q: %w", field, apperr.ErrInvalidArgument)
	}
	switch dir {
	case models.Ascending, "":
		return expr + " ASC, id ASC", nil
	case models.Descending:
		return expr + " DESC, id DESC", nil
	}
	return "", fmt.Errorf("vocabdb: sort direction %q: %w", dir, apperr.ErrInvalidArgument)
}

func filterClause(f models.WordFilter) (string, []any) {
	var conds []string
	var args []any
	if len(f.TagIDs) > 0 {
		conds = append(conds, `id IN (SELECT word_id FROM word_tags WHERE tag_id IN (?`+strings.Repeat(", ?", len(f.TagIDs)-1)+`))`)
		for _, id := range f.TagIDs {
			args = append(args, id)
		}
	}
	if f.Difficulty != "" {
		conds = append(conds, `difficulty = ?`)
		args = append(args, string(f.Difficulty))
	}
	if f.BookmarkedOnly {
		conds = append(conds, `is_bookmarked = 1`)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanWords(rows *sql.Rows) ([]models.WordEntry, error) {
	defer rows.Close()
	out := []models.WordEntry{}
	for rows.Next() {
		var (
			w          models.WordEntry
			tagsJSON   string
			dateAdded  int64
			bookmarked int
			difficulty string
		)
		if err := rows.Scan(&w.ID, &w.Word, &w.Meaning, &w.Translation, &w.Example, &w.Pronunciation,
			&w.Notes, &w.Audio, &tagsJSON, &w.SubmittedBy, &dateAdded, &bookmarked, &difficulty); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tagsJSON), &w.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", w.ID, err)
		}
		if w.Tags == nil {
			w.Tags = []models.Tag{}
		}
		w.DateAdded = decodeTime(dateAdded)
		w.IsBookmarked = bookmarked != 0
		w.Difficulty = models.Difficulty(difficulty)
		out = append(out, w)
	}
	return out, rows.Err()
}

// encodeTime stores timestamps as UTC unix nanoseconds; the zero time maps to 0.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

