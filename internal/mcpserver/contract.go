package mcpserver

const importFormatURI = "vocabhive://import-format"

// ImportFormatContract describes the word list formats accepted by
// POST /api/import and the inbox directory.
const ImportFormatContract = `# vocabhive Import Format

Word lists are imported as CSV or JSON. Rows without a ` + "`word`" + ` or
` + "`meaning`" + ` are skipped. Input that cannot be parsed imports nothing.

## CSV

The first row is a header. ` + "`word`" + ` and ` + "`meaning`" + ` columns are required;
` + "`translation`, `example`, `pronunciation`, `difficulty`" + ` and ` + "`tags`" + ` are optional.
Tags are tag names separated by ` + "`;`" + `.

` + "```" + `csv
word,meaning,translation,difficulty,tags
ephemeral,lasting a very short time,kurzlebig,advanced,Academic;Literature
harbor,a sheltered port,Hafen,beginner,Travel
` + "```" + `

## JSON

Either a bare array of words or a dataset object:

` + "```" + `json
{
  "meta": {"version": "1.0", "source": "my list", "count": 1},
  "tags": [{"id": "t-travel", "name": "Travel"}],
  "words": [
    {"word": "harbor", "meaning": "a sheltered port", "tags": ["t-travel"]}
  ]
}
` + "```" + `

Word tag references are tag ids or names, or ` + "`{\"id\", \"name\"}`" + ` objects.
They resolve by id first, then by case-insensitive name; unknown names
create a new tag.

## Fields

- ` + "`difficulty`" + `: beginner, intermediate or advanced.
- ` + "`dateAdded`" + `: RFC 3339 timestamp; defaults to the import time.
- ` + "`id`" + `: optional; generated when absent. Re-importing an id replaces the word.
`
