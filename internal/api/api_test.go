package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/vocabhive/internal/chunkloader"
	"github.com/starford/vocabhive/internal/models"
	"github.com/starford/vocabhive/internal/origin"
	"github.com/starford/vocabhive/internal/testutil"
	"github.com/starford/vocabhive/internal/vocabdb"
	"github.com/starford/vocabhive/internal/wordservice"
)

type env struct {
	origin *testutil.Origin
	store  *vocabdb.DB
	svc    *wordservice.Service
	router http.Handler
}

// testEnv wires an in-process origin, a temp SQLite store and cache, the
// service and the router.
func testEnv(t *testing.T, sseHandler http.Handler) *env {
	t.Helper()
	e := &env{
		origin: testutil.NewOrigin(t),
		store:  testutil.TestStore(t),
	}
	c := testutil.TestCache(t)
	client := origin.New(origin.Config{BaseURL: e.origin.URL, Timeout: 2 * time.Second})
	loader := chunkloader.New(client, e.store, c, chunkloader.WithSweepDelay(0))
	e.svc = wordservice.NewService(e.store, loader, c, client)
	e.router = NewRouter(e.svc, sseHandler)
	return e
}

func (e *env) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestLevelWords_LoadsChunkOnDemand(t *testing.T) {
	e := testEnv(t, nil)
	e.origin.PublishLevel(models.LevelMiddle, testutil.Words(models.LevelMiddle, 25), 10)

	w := e.do(t, http.MethodGet, "/levels/middle/words?page=2&pageSize=10&sort=oldest", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	page := decode[LevelPage](t, w)
	if page.Total != 25 {
		t.Errorf("total = %d, want 25", page.Total)
	}
	if len(page.Words) != 10 {
		t.Fatalf("words = %d, want 10", len(page.Words))
	}
	if page.Words[0].ID != "middle-0010" {
		t.Errorf("first = %s, want middle-0010", page.Words[0].ID)
	}
	if page.Pending {
		t.Error("page should not be pending")
	}
	for _, idx := range []int{0, 2} {
		if hits := e.origin.Hits(testutil.ChunkPath(models.LevelMiddle, idx)); hits != 0 {
			t.Errorf("chunk %d fetched %d times, want 0", idx, hits)
		}
	}
}

func TestLevelWords_ChunkFailureIsPending(t *testing.T) {
	e := testEnv(t, nil)
	e.origin.PublishLevel(models.LevelHigh, testutil.Words(models.LevelHigh, 20), 10)
	e.origin.Fail(testutil.ChunkPath(models.LevelHigh, 0), -1)

	w := e.do(t, http.MethodGet, "/levels/high/words", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	page := decode[LevelPage](t, w)
	if !page.Pending {
		t.Error("expected pending page")
	}
	if page.Words == nil {
		t.Error("words should encode as [] not null")
	}
}

func TestLevelWords_BadParams(t *testing.T) {
	e := testEnv(t, nil)
	for _, target := range []string{
		"/levels/college/words",
		"/levels/middle/words?page=0",
		"/levels/middle/words?page=x",
		"/levels/middle/words?page=9223372036854775807&pageSize=2",
		"/levels/middle/words?pageSize=1000",
		"/levels/middle/words?sort=random",
	} {
		if w := e.do(t, http.MethodGet, target, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", target, w.Code)
		}
	}
}

func TestLevelWords_MetadataUnavailable(t *testing.T) {
	e := testEnv(t, nil)
	w := e.do(t, http.MethodGet, "/levels/middle/words", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502, body = %s", w.Code, w.Body.String())
	}
}

func TestSweepAndProgress(t *testing.T) {
	e := testEnv(t, nil)
	e.origin.PublishLevel(models.LevelElementary, testutil.Words(models.LevelElementary, 30), 10)

	if w := e.do(t, http.MethodPost, "/levels/elementary/sweep", nil); w.Code != http.StatusAccepted {
		t.Fatalf("sweep = %d", w.Code)
	}
	e.svc.WaitSweeps()

	w := e.do(t, http.MethodGet, "/levels/elementary/progress", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("progress = %d", w.Code)
	}
	p := decode[LoadProgress](t, w)
	if p.Progress != 100 || p.TotalChunks != 3 || len(p.LoadedChunks) != 3 {
		t.Errorf("progress = %+v", p)
	}
}

func TestListWords(t *testing.T) {
	e := testEnv(t, nil)
	if err := e.store.BulkUpsertWords(context.Background(), testutil.Words(models.LevelMiddle, 5)); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodGet, "/words?page=1&pageSize=2&sortField=word&sortDirection=asc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[WordPageResponse](t, w)
	if resp.Total != 5 || len(resp.Words) != 2 {
		t.Errorf("total = %d, len = %d", resp.Total, len(resp.Words))
	}
	if resp.Words[0].ID != "middle-0000" {
		t.Errorf("first = %s", resp.Words[0].ID)
	}

	if w := e.do(t, http.MethodGet, "/words?sortField=popularity", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad sort field = %d, want 400", w.Code)
	}
}

func TestGetWordAndBookmark(t *testing.T) {
	e := testEnv(t, nil)
	if err := e.store.BulkUpsertWords(context.Background(), testutil.Words(models.LevelHigh, 2)); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(BookmarkRequest{Bookmarked: true})
	if w := e.do(t, http.MethodPut, "/words/high-0001/bookmark", body); w.Code != http.StatusNoContent {
		t.Fatalf("bookmark = %d, body = %s", w.Code, w.Body.String())
	}

	w := e.do(t, http.MethodGet, "/words/high-0001", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if got := decode[models.WordEntry](t, w); !got.IsBookmarked {
		t.Error("word should be bookmarked")
	}

	w = e.do(t, http.MethodGet, "/words/filter?bookmarked=true", nil)
	list := decode[WordListResponse](t, w)
	if len(list.Words) != 1 || list.Words[0].ID != "high-0001" {
		t.Errorf("bookmarked filter = %+v", list.Words)
	}
}

func TestGetWord_NotFound(t *testing.T) {
	e := testEnv(t, nil)
	if w := e.do(t, http.MethodGet, "/words/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
	body, _ := json.Marshal(BookmarkRequest{Bookmarked: true})
	if w := e.do(t, http.MethodPut, "/words/missing/bookmark", body); w.Code != http.StatusNotFound {
		t.Errorf("bookmark missing = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/words/missing/bookmark", []byte("{")); w.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", w.Code)
	}
}

func TestFilter_BadParams(t *testing.T) {
	e := testEnv(t, nil)
	if w := e.do(t, http.MethodGet, "/words/filter?difficulty=expert", nil); w.Code != http.StatusBadRequest {
		t.Errorf("difficulty = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/words/filter?bookmarked=maybe", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bookmarked = %d, want 400", w.Code)
	}
}

func TestImportSearchAndTags(t *testing.T) {
	e := testEnv(t, nil)
	csv := "word,meaning,translation,tags\nephemeral,lasting a short time,kurzlebig,Academic\nabundant,plentiful,reichlich,Academic;Nature\n"

	w := e.do(t, http.MethodPost, "/import?format=csv", []byte(csv))
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	sum := decode[ImportSummary](t, w)
	if sum.Words != 2 || sum.Tags != 2 {
		t.Errorf("summary = %+v", sum)
	}

	w = e.do(t, http.MethodGet, "/search?q=KURZ", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	if list := decode[WordListResponse](t, w); len(list.Words) != 1 || list.Words[0].Word != "ephemeral" {
		t.Errorf("search = %+v", list.Words)
	}

	w = e.do(t, http.MethodGet, "/tags", nil)
	tags := decode[TagListResponse](t, w)
	if len(tags.Tags) != 2 {
		t.Errorf("tags = %+v", tags.Tags)
	}
}

func TestImport_ContentTypeAndMalformed(t *testing.T) {
	e := testEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/import", strings.NewReader(`[{"word":"a","meaning":"b"}]`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("json import = %d, body = %s", w.Code, w.Body.String())
	}
	if sum := decode[ImportSummary](t, w); sum.Words != 1 {
		t.Errorf("words = %d, want 1", sum.Words)
	}

	w = e.do(t, http.MethodPost, "/import?format=json", []byte("not json"))
	if w.Code != http.StatusOK {
		t.Fatalf("malformed import = %d", w.Code)
	}
	if sum := decode[ImportSummary](t, w); sum.Words != 0 {
		t.Errorf("malformed import stored %d words", sum.Words)
	}

	if w := e.do(t, http.MethodPost, "/import", []byte("x")); w.Code != http.StatusBadRequest {
		t.Errorf("no format = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/import?format=xml", []byte("x")); w.Code != http.StatusBadRequest {
		t.Errorf("xml = %d, want 400", w.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := testEnv(t, nil)
	if w := e.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", w.Code)
	}
}

func TestSeed(t *testing.T) {
	e := testEnv(t, nil)
	if w := e.do(t, http.MethodPost, "/seed", nil); w.Code != http.StatusBadGateway {
		t.Errorf("seed without dataset = %d, want 502", w.Code)
	}

	e.origin.PutRaw(origin.SampleDatasetPath, []byte(`{
		"meta": {"version": "1", "source": "sample", "count": 1},
		"tags": [{"id": "t1", "name": "Travel"}],
		"words": [{"id": "w1", "word": "journey", "meaning": "a trip", "tags": ["t1"]}]
	}`))
	w := e.do(t, http.MethodPost, "/seed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("seed = %d, body = %s", w.Code, w.Body.String())
	}
	if sum := decode[ImportSummary](t, w); sum.Words != 1 || sum.Source != "sample" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestClearCache(t *testing.T) {
	e := testEnv(t, nil)
	if w := e.do(t, http.MethodDelete, "/cache?key=global", nil); w.Code != http.StatusNoContent {
		t.Errorf("clear key = %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/cache", nil); w.Code != http.StatusNoContent {
		t.Errorf("clear all = %d", w.Code)
	}
}

func TestMetadata(t *testing.T) {
	e := testEnv(t, nil)
	e.origin.PublishGlobal(models.GlobalMetadata{
		Version:    "2",
		TotalWords: 3,
		Levels:     []models.LevelSummary{{Level: models.LevelHigh, WordCount: 3, ChunkCount: 1}},
	})
	w := e.do(t, http.MethodGet, "/metadata", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metadata = %d", w.Code)
	}
	if m := decode[models.GlobalMetadata](t, w); m.Version != "2" || m.TotalWords != 3 {
		t.Errorf("metadata = %+v", m)
	}
}

func TestSSEEventsMounted(t *testing.T) {
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	e := testEnv(t, sseHandler)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("events = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}

func TestSSEEventsNotMounted(t *testing.T) {
	e := testEnv(t, nil)
	if w := e.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusNotFound {
		t.Errorf("events without broker = %d, want 404", w.Code)
	}
}
