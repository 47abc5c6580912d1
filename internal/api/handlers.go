package api

import (
	"encoding/json"
	"fmt"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vocabhive/internal/apperr"
	"github.com/starford/vocabhive/internal/importer"
	"github.com/starford/vocabhive/internal/models"
	"github.com/starford/vocabhive/internal/vocabdb"
	"github.com/starford/vocabhive/internal/wordservice"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxImportBytes  = 10 << 20
)

// Handler holds API route handlers.
type Handler struct {
	svc *wordservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *wordservice.Service) *Handler {
	return &Handler{svc: svc}
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, apperr.ErrInvalidArgument)
	}
	return n, nil
}

func pageParams(q url.Values) (page, size int, err error) {
	if page, err = intParam(q, "page", 1); err != nil {
		return 0, 0, err
	}
	if size, err = intParam(q, "pageSize", defaultPageSize); err != nil {
		return 0, 0, err
	}
	if page < 1 || size < 1 || size > maxPageSize {
		return 0, 0, fmt.Errorf("page must be >= 1 and pageSize in [1,%d]: %w", maxPageSize, apperr.ErrInvalidArgument)
	}
	if page-1 > math.MaxInt/size {
		return 0, 0, fmt.Errorf("page %d is out of range: %w", page, apperr.ErrInvalidArgument)
	}
	return page, size, nil
}

func levelParam(r *http.Request) (models.Level, error) {
	l, err := models.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, apperr.ErrInvalidArgument)
	}
	return l, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Metadata handles GET /api/metadata.
//
//	@Summary		Global dataset metadata
//	@Tags			levels
//	@Produce		json
//	@Success		200	{object}	models.GlobalMetadata
//	@Failure		502	{object}	errResponse
//	@Router			/metadata [get]
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Metadata(r.Context())
	if err != nil {
		writeError(w, "metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// LevelWords handles GET /api/levels/{level}/words.
//
//	@Summary		One page of a level, loading its chunk on demand
//	@Tags			levels
//	@Produce		json
//	@Param			level		path		string	true	"Level"	Enums(elementary, middle, high)
//	@Param			page		query		int		false	"1-based page"
//	@Param			pageSize	query		int		false	"Page size"
//	@Param			sort		query		string	false	"Sort option"	Enums(newest, oldest, alphabetical, popular)
//	@Success		200			{object}	LevelPage
//	@Failure		400			{object}	errResponse
//	@Failure		502			{object}	errResponse
//	@Router			/levels/{level}/words [get]
func (h *Handler) LevelWords(w http.ResponseWriter, r *http.Request) {
	level, err := levelParam(r)
	if err != nil {
		writeError(w, "level words", err)
		return
	}
	q := r.URL.Query()
	page, size, err := pageParams(q)
	if err != nil {
		writeError(w, "level words", err)
		return
	}
	sort, err := models.ParseSortOption(q.Get("sort"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	p, err := h.svc.WordsByLevel(r.Context(), level, page, size, sort)
	if err != nil {
		writeError(w, "level words", err)
		return
	}
	p.Words = nonNil(p.Words)
	writeJSON(w, http.StatusOK, p)
}

// LevelProgress handles GET /api/levels/{level}/progress.
//
//	@Summary		Chunk load progress of a level
//	@Tags			levels
//	@Produce		json
//	@Param			level	path		string	true	"Level"
//	@Success		200		{object}	LoadProgress
//	@Router			/levels/{level}/progress [get]
func (h *Handler) LevelProgress(w http.ResponseWriter, r *http.Request) {
	level, err := levelParam(r)
	if err != nil {
		writeError(w, "level progress", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.LoadProgress(r.Context(), level))
}

// StartSweep handles POST /api/levels/{level}/sweep.
//
//	@Summary		Start loading every remaining chunk of a level
//	@Tags			levels
//	@Param			level	path	string	true	"Level"
//	@Success		202		"Sweep started"
//	@Router			/levels/{level}/sweep [post]
func (h *Handler) StartSweep(w http.ResponseWriter, r *http.Request) {
	level, err := levelParam(r)
	if err != nil {
		writeError(w, "start sweep", err)
		return
	}
	h.svc.StartSweep(level)
	writeJSON(w, http.StatusAccepted, map[string]string{"level": string(level), "status": "started"})
}

// ListWords handles GET /api/words.
//
//	@Summary		Page through stored words
//	@Tags			words
//	@Produce		json
//	@Param			page			query		int		false	"1-based page"
//	@Param			pageSize		query		int		false	"Page size"
//	@Param			sortField		query		string	false	"Sort field"	Enums(dateAdded, word, difficulty, isBookmarked)
//	@Param			sortDirection	query		string	false	"Sort direction"	Enums(asc, desc)
//	@Success		200				{object}	WordPageResponse
//	@Failure		400				{object}	errResponse
//	@Router			/words [get]
func (h *Handler) ListWords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := pageParams(q)
	if err != nil {
		writeError(w, "list words", err)
		return
	}
	field := models.SortByDateAdded
	if raw := q.Get("sortField"); raw != "" {
		if field, err = models.ParseSortField(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}
	dir := models.Descending
	if raw := q.Get("sortDirection"); raw != "" {
		if dir, err = models.ParseSortDirection(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}

	res, err := h.svc.QueryPage(r.Context(), vocabdb.PageQuery{Page: page, PageSize: size, Field: field, Direction: dir})
	if err != nil {
		writeError(w, "list words", err)
		return
	}
	writeJSON(w, http.StatusOK, WordPageResponse{
		Words:    nonNil(res.Entries),
		Total:    res.Total,
		Page:     page,
		PageSize: size,
	})
}

// FilterWords handles GET /api/words/filter.
//
//	@Summary		Words matching every supplied criterion
//	@Tags			words
//	@Produce		json
//	@Param			tag			query		[]string	false	"Tag id (repeatable, any match)"
//	@Param			difficulty	query		string		false	"Difficulty"	Enums(beginner, intermediate, advanced)
//	@Param			bookmarked	query		bool		false	"Bookmarked only"
//	@Success		200			{object}	WordListResponse
//	@Failure		400			{object}	errResponse
//	@Router			/words/filter [get]
func (h *Handler) FilterWords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.WordFilter{}
	for _, raw := range q["tag"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				f.TagIDs = append(f.TagIDs, id)
			}
		}
	}
	if raw := q.Get("difficulty"); raw != "" {
		f.Difficulty = models.Difficulty(raw)
		if !f.Difficulty.Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown difficulty %q", raw)))
			return
		}
	}
	if raw := q.Get("bookmarked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("bookmarked must be a boolean"))
			return
		}
		f.BookmarkedOnly = b
	}

	words, err := h.svc.Filter(r.Context(), f)
	if err != nil {
		writeError(w, "filter words", err)
		return
	}
	writeJSON(w, http.StatusOK, WordListResponse{Words: nonNil(words)})
}

// GetWord handles GET /api/words/{id}.
//
//	@Summary		A single word
//	@Tags			words
//	@Produce		json
//	@Param			id	path		string	true	"Word id"
//	@Success		200	{object}	models.WordEntry
//	@Failure		404	{object}	errResponse
//	@Router			/words/{id} [get]
func (h *Handler) GetWord(w http.ResponseWriter, r *http.Request) {
	word, err := h.svc.Word(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get word", err)
		return
	}
	writeJSON(w, http.StatusOK, word)
}

// SetBookmark handles PUT /api/words/{id}/bookmark.
//
//	@Summary		Set or clear a bookmark
//	@Tags			words
//	@Accept			json
//	@Param			id		path	string			true	"Word id"
//	@Param			body	body	BookmarkRequest	true	"Bookmark state"
//	@Success		204		"Bookmark updated"
//	@Failure		404		{object}	errResponse
//	@Router			/words/{id}/bookmark [put]
func (h *Handler) SetBookmark(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<10)
	var req BookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.SetBookmark(r.Context(), chi.URLParam(r, "id"), req.Bookmarked); err != nil {
		writeError(w, "set bookmark", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Case-insensitive substring search over word, meaning and translation
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	WordListResponse
//	@Failure		400	{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	words, err := h.svc.Search(r.Context(), q)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, WordListResponse{Words: nonNil(words)})
}

// Tags handles GET /api/tags.
//
//	@Summary		All tags
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagListResponse
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		writeError(w, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: nonNil(tags)})
}

// importFormat picks the format from ?format= or the Content-Type header.
func importFormat(r *http.Request) (importer.Format, error) {
	if raw := r.URL.Query().Get("format"); raw != "" {
		return importer.ParseFormat(raw)
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "text/csv":
		return importer.FormatCSV, nil
	case "application/json":
		return importer.FormatJSON, nil
	}
	return "", fmt.Errorf("format query parameter or a csv/json Content-Type is required: %w", apperr.ErrInvalidArgument)
}

// Import handles POST /api/import.
//
//	@Summary		Import a CSV or JSON word list
//	@Tags			import
//	@Accept			plain
//	@Produce		json
//	@Param			format	query		string	false	"Input format"	Enums(csv, json)
//	@Success		200		{object}	ImportSummary
//	@Failure		400		{object}	errResponse
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	format, err := importFormat(r)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload." + string(format)
	}
	sum, err := h.svc.Import(r.Context(), source, format, r.Body)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Seed handles POST /api/seed.
//
//	@Summary		Replace all words with the sample dataset
//	@Tags			import
//	@Produce		json
//	@Success		200	{object}	ImportSummary
//	@Failure		502	{object}	errResponse
//	@Router			/seed [post]
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Seed(r.Context())
	if err != nil {
		writeError(w, "seed", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ClearCache handles DELETE /api/cache.
//
//	@Summary		Clear one cache key, or the whole cache
//	@Tags			cache
//	@Param			key	query	string	false	"Cache key"
//	@Success		204	"Cache cleared"
//	@Router			/cache [delete]
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCache(r.Context(), r.URL.Query().Get("key")); err != nil {
		writeError(w, "clear cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
