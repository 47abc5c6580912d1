package importer

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/starford/vocabhive/internal/apperr"
	"github.com/starford/vocabhive/internal/models"
)

func testImporter() *Importer {
	n := 0
	return New(
		WithClock(func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("gen-%d", n) }),
	)
}

func TestParseCSV(t *testing.T) {
	in := "word,meaning,translation,difficulty,tags\n" +
		"apple,a fruit,사과,Beginner,food; daily\n" +
		"\"run, fast\",to move quickly,,expert,daily\n" +
		",no word,,,\n" +
		"\n"
	res, err := testImporter().ParseCSV(strings.NewReader(in), nil)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(res.Words) != 2 || res.Skipped != 1 {
		t.Fatalf("words=%d skipped=%d", len(res.Words), res.Skipped)
	}

	apple := res.Words[0]
	if apple.Word != "apple" || apple.Translation != "사과" || apple.Difficulty != models.DifficultyBeginner {
		t.Errorf("apple = %+v", apple)
	}
	if len(apple.Tags) != 2 || apple.Tags[0].Name != "food" || apple.Tags[1].Name != "daily" {
		t.Errorf("apple tags = %+v", apple.Tags)
	}
	if !apple.DateAdded.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("dateAdded = %v", apple.DateAdded)
	}

	run := res.Words[1]
	if run.Word != "run, fast" {
		t.Errorf("quoted field = %q", run.Word)
	}
	if run.Difficulty != "" {
		t.Errorf("unknown difficulty kept: %q", run.Difficulty)
	}
	if len(run.Tags) != 1 || run.Tags[0].ID != apple.Tags[1].ID {
		t.Errorf("shared tag not reused: %+v vs %+v", run.Tags, apple.Tags)
	}
	if len(res.Tags) != 2 {
		t.Errorf("tags = %+v", res.Tags)
	}
	if apple.ID == "" || apple.ID == run.ID {
		t.Errorf("ids = %q, %q", apple.ID, run.ID)
	}
}

func TestParseCSV_ReusesKnownTags(t *testing.T) {
	known := []models.Tag{{ID: "t-biz", Name: "Business"}}
	res, err := testImporter().ParseCSV(strings.NewReader("meaning,word,tags\nmeeting,agenda,business\n"), known)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Words) != 1 || res.Words[0].Word != "agenda" {
		t.Fatalf("words = %+v", res.Words)
	}
	if got := res.Words[0].Tags; len(got) != 1 || got[0].ID != "t-biz" {
		t.Errorf("tags = %+v", got)
	}
}

func TestParseCSV_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"missing column": "word,translation\napple,사과\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := testImporter().ParseCSV(strings.NewReader(in), nil)
			if !errors.Is(err, apperr.ErrParse) {
				t.Errorf("err = %v, want parse error", err)
			}
			if len(res.Words) != 0 || res.Words == nil {
				t.Errorf("words = %v, want empty non-nil", res.Words)
			}
		})
	}
}

func TestParseJSON_SampleDataset(t *testing.T) {
	in := `{
		"meta": {"version": "1.0", "source": "sample", "createDate": "2024-01-01", "count": 3},
		"tags": [{"id": "t1", "name": "Business"}, {"id": "t2", "name": "Travel"}],
		"words": [
			{"id": "w1", "word": "agenda", "meaning": "list", "tags": ["t1"], "dateAdded": "2023-05-01T10:00:00Z", "difficulty": "intermediate", "isBookmarked": true},
			{"word": "passport", "meaning": "travel document", "tags": ["Travel", "airport"]},
			{"id": "w3", "word": "", "meaning": "skipped"}
		]
	}`
	res, err := testImporter().ParseJSON([]byte(in), nil)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(res.Words) != 2 || res.Skipped != 1 {
		t.Fatalf("words=%d skipped=%d", len(res.Words), res.Skipped)
	}

	agenda := res.Words[0]
	if agenda.ID != "w1" || !agenda.IsBookmarked || agenda.Difficulty != models.DifficultyIntermediate {
		t.Errorf("agenda = %+v", agenda)
	}
	if len(agenda.Tags) != 1 || agenda.Tags[0] != (models.Tag{ID: "t1", Name: "Business"}) {
		t.Errorf("agenda tags = %+v", agenda.Tags)
	}
	if !agenda.DateAdded.Equal(time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("dateAdded = %v", agenda.DateAdded)
	}

	passport := res.Words[1]
	if passport.ID == "" {
		t.Error("missing id not generated")
	}
	if len(passport.Tags) != 2 || passport.Tags[0].ID != "t2" || passport.Tags[1].Name != "airport" {
		t.Errorf("passport tags = %+v", passport.Tags)
	}
	if len(res.Tags) != 3 {
		t.Errorf("tags = %+v", res.Tags)
	}
}

func TestParseJSON_BareArrayAndTagObjects(t *testing.T) {
	in := `[{"id": "a", "word": "alpha", "meaning": "first", "tags": [{"id": "x", "name": "Greek"}]}]`
	res, err := testImporter().ParseJSON([]byte(in), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Words) != 1 || len(res.Words[0].Tags) != 1 || res.Words[0].Tags[0].ID != "x" {
		t.Errorf("result = %+v", res)
	}
}

func TestParseJSON_Malformed(t *testing.T) {
	res, err := testImporter().ParseJSON([]byte(`{"words": [`), nil)
	var pe *apperr.ParseError
	if !errors.As(err, &pe) || pe.Format != "json" {
		t.Fatalf("err = %v", err)
	}
	if len(res.Words) != 0 || len(res.Tags) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(" CSV "); err != nil || f != FormatCSV {
		t.Errorf("ParseFormat(CSV) = %q, %v", f, err)
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("xml err = %v", err)
	}
	if f, ok := FormatFromPath("/inbox/words.JSON"); !ok || f != FormatJSON {
		t.Errorf("FormatFromPath = %q, %v", f, ok)
	}
	if _, ok := FormatFromPath("notes.txt"); ok {
		t.Error("txt accepted")
	}
}
