package api

import (
	"github.com/starford/vocabhive/internal/models"
	"github.com/starford/vocabhive/internal/wordservice"
)

// BookmarkRequest is the request body for PUT /words/{id}/bookmark.
type BookmarkRequest struct {
	Bookmarked bool `json:"bookmarked" example:"true"`
}

// LevelPage is one page of a level (aliased from the domain layer).
type LevelPage = wordservice.Page

// LoadProgress is a level's load progress (aliased from the domain layer).
type LoadProgress = wordservice.Progress

// ImportSummary is the outcome of an import or seed (aliased from the domain layer).
type ImportSummary = wordservice.ImportSummary

// WordPageResponse is a page read straight from the store.
type WordPageResponse struct {
	Words    []models.WordEntry `json:"words" validate:"required"`
	Total    int                `json:"total" example:"42" validate:"required"`
	Page     int                `json:"page" example:"1"`
	PageSize int                `json:"pageSize" example:"20"`
}

// WordListResponse wraps unpaginated word results.
type WordListResponse struct {
	Words []models.WordEntry `json:"words" validate:"required"`
}

// TagListResponse wraps the tag list.
type TagListResponse struct {
	Tags []models.Tag `json:"tags" validate:"required"`
}
