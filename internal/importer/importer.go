// Package importer turns CSV and JSON word lists into entries and tags ready
// for the word store.
package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/vocabhive/internal/apperr"
	"github.com/starford/vocabhive/internal/models"
)

// Format is an import file format.
type Format string

// Formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates s as a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown import format %q: %w", s, apperr.ErrInvalidArgument)
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, true
	case ".json":
		return FormatJSON, true
	}
	return "", false
}

// Result is the outcome of one import. Skipped counts rows without a word or meaning.
type Result struct {
	Words   []models.WordEntry `json:"words"`
	Tags    []models.Tag       `json:"tags"`
	Skipped int                `json:"skipped"`
}

func emptyResult() Result {
	return Result{Words: []models.WordEntry{}, Tags: []models.Tag{}}
}

// Importer parses import files. The zero value is not usable; call New.
type Importer struct {
	now   func() time.Time
	newID func() string
}

// Option configures an Importer.
type Option func(*Importer)

// WithClock sets the time used for entries without a dateAdded.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// WithIDGenerator replaces uuid generation.
func WithIDGenerator(fn func() string) Option {
	return func(im *Importer) { im.newID = fn }
}

// New creates an Importer.
func New(opts ...Option) *Importer {
	im := &Importer{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Parse reads r in the given format. Tag names and ids are resolved against
// known first so re-imports reuse existing tags. Malformed input yields an
// empty Result and a *apperr.ParseError.
func (im *Importer) Parse(format Format, r io.Reader, known []models.Tag) (Result, error) {
	switch format {
	case FormatCSV:
		return im.ParseCSV(r, known)
	case FormatJSON:
		data, err := io.ReadAll(r)
		if err != nil {
			return emptyResult(), &apperr.ParseError{Format: string(format), Err: err}
		}
		return im.ParseJSON(data, known)
	}
	return emptyResult(), fmt.Errorf("unknown import format %q: %w", format, apperr.ErrInvalidArgument)
}

// tagSet resolves tag references and remembers which tags the import touched.
type tagSet struct {
	byID   map[string]models.Tag
	byName map[string]models.Tag
	used   []models.Tag
	seen   map[string]bool
	newID  func() string
}

func newTagSet(known []models.Tag, newID func() string) *tagSet {
	ts := &tagSet{
		byID:   make(map[string]models.Tag),
		byName: make(map[string]models.Tag),
		seen:   make(map[string]bool),
		newID:  newID,
	}
	for _, t := range known {
		ts.add(t, false)
	}
	return ts
}

func (ts *tagSet) add(t models.Tag, use bool) models.Tag {
	ts.byID[t.ID] = t
	if _, ok := ts.byName[strings.ToLower(t.Name)]; !ok {
		ts.byName[strings.ToLower(t.Name)] = t
	}
	if use {
		ts.use(t)
	}
	return t
}

func (ts *tagSet) use(t models.Tag) {
	if !ts.seen[t.ID] {
		ts.seen[t.ID] = true
		ts.used = append(ts.used, t)
	}
}

// resolve looks ref up by id, then by case-insensitive name, else creates a tag named ref.
func (ts *tagSet) resolve(ref string) (models.Tag, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Tag{}, false
	}
	if t, ok := ts.byID[ref]; ok {
		ts.use(t)
		return t, true
	}
	if t, ok := ts.byName[strings.ToLower(ref)]; ok {
		ts.use(t)
		return t, true
	}
	return ts.add(models.Tag{ID: ts.newID(), Name: ref}, true), true
}

func (ts *tagSet) tags() []models.Tag {
	if ts.used == nil {
		return []models.Tag{}
	}
	return ts.used
}

func validateEntry(w *models.WordEntry) error {
	return validation.ValidateStruct(w,
		validation.Field(&w.Word, validation.Required),
		validation.Field(&w.Meaning, validation.Required),
	)
}

func normalizeDifficulty(s string) models.Difficulty {
	d := models.Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if d.Valid() {
		return d
	}
	return ""
}

var csvColumns = []string{"word", "meaning", "translation", "example", "pronunciation", "difficulty", "tags"}

// ParseCSV reads a CSV file whose header names at least the word and meaning
// columns. Tags are ';'-separated names.
func (im *Importer) ParseCSV(r io.Reader, known []models.Tag) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("missing header row")
		}
		return emptyResult(), &apperr.ParseError{Format: string(FormatCSV), Err: err}
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	for _, req := range csvColumns[:2] {
		if _, ok := cols[req]; !ok {
			return emptyResult(), &apperr.ParseError{Format: string(FormatCSV), Err: fmt.Errorf("header lacks %q column", req)}
		}
	}

	ts := newTagSet(known, im.newID)
	res := emptyResult()
	now := im.now()
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return emptyResult(), &apperr.ParseError{Format: string(FormatCSV), Err: err}
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		w := models.WordEntry{
			ID:            im.newID(),
			Word:          field("word"),
			Meaning:       field("meaning"),
			Translation:   field("translation"),
			Example:       field("example"),
			Pronunciation: field("pronunciation"),
			Difficulty:    normalizeDifficulty(field("difficulty")),
			Tags:          []models.Tag{},
			DateAdded:     now,
		}
		if err := validateEntry(&w); err != nil {
			res.Skipped++
			continue
		}
		for _, name := range strings.Split(field("tags"), ";") {
			if t, ok := ts.resolve(name); ok {
				w.Tags = appendTag(w.Tags, t)
			}
		}
		res.Words = append(res.Words, w)
	}
	res.Tags = ts.tags()
	return res, nil
}

func appendTag(tags []models.Tag, t models.Tag) []models.Tag {
	for _, have := range tags {
		if have.ID == t.ID {
			return tags
		}
	}
	return append(tags, t)
}

// tagRef is a word's tag reference: a bare id or name, or a tag object.
type tagRef struct {
	ID   string
	Name string
	bare bool
}

func (r *tagRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.ID, r.Name, r.bare = s, s, true
		return nil
	}
	var t models.Tag
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("tag reference must be a string or {id,name}: %w", err)
	}
	r.ID, r.Name = t.ID, t.Name
	return nil
}

type jsonWord struct {
	ID            string   `json:"id"`
	Word          string   `json:"word"`
	Meaning       string   `json:"meaning"`
	Translation   string   `json:"translation"`
	Example       string   `json:"example"`
	Pronunciation string   `json:"pronunciation"`
	Notes         string   `json:"notes"`
	Audio         string   `json:"audio"`
	Tags          []tagRef `json:"tags"`
	SubmittedBy   string   `json:"submittedBy"`
	DateAdded     string   `json:"dateAdded"`
	IsBookmarked  bool     `json:"isBookmarked"`
	Difficulty    string   `json:"difficulty"`
}

type jsonDataset struct {
	Meta  *models.SampleMeta `json:"meta"`
	Tags  []models.Tag       `json:"tags"`
	Words []jsonWord         `json:"words"`
}

// ParseJSON reads the bulk dataset shape {meta?, tags?, words} or a bare
// array of words. Word tag references resolve by id, then by name, else a new
// tag is created.
func (im *Importer) ParseJSON(data []byte, known []models.Tag) (Result, error) {
	var ds jsonDataset
	trimmed := bytes.TrimSpace(data)
	var err error
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &ds.Words)
	} else {
		err = json.Unmarshal(trimmed, &ds)
	}
	if err != nil {
		return emptyResult(), &apperr.ParseError{Format: string(FormatJSON), Err: err}
	}

	ts := newTagSet(known, im.newID)
	for _, t := range ds.Tags {
		if t.ID == "" || t.Name == "" {
			continue
		}
		ts.add(t, true)
	}

	res := emptyResult()
	now := im.now()
	for _, jw := range ds.Words {
		w := models.WordEntry{
			ID:            strings.TrimSpace(jw.ID),
			Word:          strings.TrimSpace(jw.Word),
			Meaning:       strings.TrimSpace(jw.Meaning),
			Translation:   jw.Translation,
			Example:       jw.Example,
			Pronunciation: jw.Pronunciation,
			Notes:         jw.Notes,
			Audio:         jw.Audio,
			SubmittedBy:   jw.SubmittedBy,
			IsBookmarked:  jw.IsBookmarked,
			Difficulty:    normalizeDifficulty(jw.Difficulty),
			Tags:          []models.Tag{},
			DateAdded:     parseDate(jw.DateAdded, now),
		}
		if err := validateEntry(&w); err != nil {
			res.Skipped++
			continue
		}
		if w.ID == "" {
			w.ID = im.newID()
		}
		for _, ref := range jw.Tags {
			var (
				t  models.Tag
				ok bool
			)
			if !ref.bare && ref.ID != "" && ref.Name != "" {
				if t, ok = ts.byID[ref.ID]; ok {
					ts.use(t)
				} else {
					t, ok = ts.add(models.Tag{ID: ref.ID, Name: ref.Name}, true), true
				}
			} else if ref.ID != "" {
				t, ok = ts.resolve(ref.ID)
			} else {
				t, ok = ts.resolve(ref.Name)
			}
			if ok {
				w.Tags = appendTag(w.Tags, t)
			}
		}
		res.Words = append(res.Words, w)
	}
	res.Tags = ts.tags()
	return res, nil
}

func parseDate(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
