// Package models defines the domain types for vocabhive.
package models

import (
	"fmt"
	"time"
)

// Tag is a label attached to word entries. Entries carry copies of their tags.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Difficulty is the per-word difficulty tier.
type Difficulty string

// Difficulties.
const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Rank orders difficulties from easiest (1) to hardest (3); unknown values rank 0.
func (d Difficulty) Rank() int {
	switch d {
	case DifficultyBeginner:
		return 1
	case DifficultyIntermediate:
		return 2
	case DifficultyAdvanced:
		return 3
	}
	return 0
}

// WordEntry is a single vocabulary record.
type WordEntry struct {
	ID            string     `json:"id"`
	Word          string     `json:"word"`
	Meaning       string     `json:"meaning"`
	Translation   string     `json:"translation,omitempty"`
	Example       string     `json:"example,omitempty"`
	Pronunciation string     `json:"pronunciation,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Audio         string     `json:"audio,omitempty"`
	Tags          []Tag      `json:"tags"`
	SubmittedBy   string     `json:"submittedBy,omitempty"`
	DateAdded     time.Time  `json:"dateAdded"`
	IsBookmarked  bool       `json:"isBookmarked,omitempty"`
	Difficulty    Difficulty `json:"difficulty,omitempty"`
}

// HasAnyTag reports whether the entry carries at least one tag whose id is in ids.
func (w WordEntry) HasAnyTag(ids []string) bool {
	for _, t := range w.Tags {
		for _, id := range ids {
			if t.ID == id {
				return true
			}
		}
	}
	return false
}

// WordFilter selects entries matching all supplied criteria. Zero value matches everything.
type WordFilter struct {
	TagIDs         []string   `json:"tagIds,omitempty"`
	Difficulty     Difficulty `json:"difficulty,omitempty"`
	BookmarkedOnly bool       `json:"bookmarkedOnly,omitempty"`
}

// Empty reports whether no criteria are set.
func (f WordFilter) Empty() bool {
	return len(f.TagIDs) == 0 && f.Difficulty == "" && !f.BookmarkedOnly
}

// Match reports whether w satisfies every criterion of f.
func (f WordFilter) Match(w WordEntry) bool {
	if len(f.TagIDs) > 0 && !w.HasAnyTag(f.TagIDs) {
		return false
	}
	if f.Difficulty != "" && w.Difficulty != f.Difficulty {
		return false
	}
	if f.BookmarkedOnly && !w.IsBookmarked {
		return false
	}
	return true
}

// SortField is a column the store can order by.
type SortField string

// Sort fields.
const (
	SortByDateAdded    SortField = "dateAdded"
	SortByWord         SortField = "word"
	SortByDifficulty   SortField = "difficulty"
	SortByIsBookmarked SortField = "isBookmarked"
)

// ParseSortField validates s as a SortField.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(s); f {
	case SortByDateAdded, SortByWord, SortByDifficulty, SortByIsBookmarked:
		return f, nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

// SortDirection is ascending or descending.
type SortDirection string

// Sort directions.
const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// ParseSortDirection validates s as a SortDirection. Empty means ascending.
func ParseSortDirection(s string) (SortDirection, error) {
	switch s {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return "", fmt.Errorf("unknown sort direction %q", s)
}

// SortOption is the UI-level ordering choice.
type SortOption string

// Sort options.
const (
	SortNewest       SortOption = "newest"
	SortOldest       SortOption = "oldest"
	SortAlphabetical SortOption = "alphabetical"
	SortPopular      SortOption = "popular"
)

// ParseSortOption validates s as a SortOption. Empty means newest.
func ParseSortOption(s string) (SortOption, error) {
	switch o := SortOption(s); o {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortAlphabetical, SortPopular:
		return o, nil
	}
	return "", fmt.Errorf("unknown sort option %q", s)
}
