// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes vocabhive query tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vocabhive/internal/models"
	"github.com/starford/vocabhive/internal/wordservice"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Server wraps the MCP server with vocabhive tools.
type Server struct {
	mcp *server.MCPServer
	svc *wordservice.Service
}

// New creates a new MCP server with all vocabhive tools registered.
func New(svc *wordservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"vocabhive",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_words",
		mcp.WithDescription("Case-insensitive substring search over word, meaning and translation."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
	), s.searchWords)

	s.mcp.AddTool(mcp.NewTool("words_by_level",
		mcp.WithDescription("One page of a level's words. The chunk holding the page is fetched on demand; "+
			"a page whose chunk is still unavailable is returned with pending=true."),
		mcp.WithString("level", mcp.Required(), mcp.Description("Level"),
			mcp.Enum(string(models.LevelElementary), string(models.LevelMiddle), string(models.LevelHigh))),
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
		mcp.WithNumber("page_size", mcp.Description("Words per page (default 20, max 100)")),
		mcp.WithString("sort", mcp.Description("Ordering"),
			mcp.Enum(string(models.SortNewest), string(models.SortOldest), string(models.SortAlphabetical), string(models.SortPopular))),
	), s.wordsByLevel)

	s.mcp.AddTool(mcp.NewTool("filter_words",
		mcp.WithDescription("Stored words matching every supplied criterion."),
		mcp.WithString("tags", mcp.Description("Comma-separated tag ids; a word matches if it has any of them")),
		mcp.WithString("difficulty", mcp.Description("Difficulty"),
			mcp.Enum(string(models.DifficultyBeginner), string(models.DifficultyIntermediate), string(models.DifficultyAdvanced))),
		mcp.WithBoolean("bookmarked_only", mcp.Description("Only bookmarked words")),
	), s.filterWords)

	s.mcp.AddTool(mcp.NewTool("load_progress",
		mcp.WithDescription("Percentage of a level's chunks loaded into the local store."),
		mcp.WithString("level", mcp.Required(), mcp.Description("Level")),
	), s.loadProgress)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("All known tags."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("get_import_format",
		mcp.WithDescription("Returns the CSV and JSON formats accepted by the import endpoint and the inbox directory."),
	), s.getImportFormat)

	s.mcp.AddResource(
		mcp.NewResource(importFormatURI, "Import Format",
			mcp.WithResourceDescription("CSV and JSON word list formats accepted by vocabhive imports."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readImportFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchWords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	words, err := s.svc.Search(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(words) == 0 {
		return mcp.NewToolResultText("no words found"), nil
	}
	return jsonResult(words), nil
}

func (s *Server) wordsByLevel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("level")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	level, err := models.ParseLevel(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page := req.GetInt("page", 1)
	size := req.GetInt("page_size", defaultPageSize)
	if page < 1 || size < 1 || size > maxPageSize {
		return mcp.NewToolResultError(fmt.Sprintf("page must be >= 1 and page_size in [1,%d]", maxPageSize)), nil
	}
	if page-1 > math.MaxInt/size {
		return mcp.NewToolResultError(fmt.Sprintf("page %d is out of range", page)), nil
	}
	sort, err := models.ParseSortOption(req.GetString("sort", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, err := s.svc.WordsByLevel(ctx, level, page, size, sort)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(p), nil
}

func (s *Server) filterWords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var f models.WordFilter
	for _, id := range strings.Split(req.GetString("tags", ""), ",") {
		if id = strings.TrimSpace(id); id != "" {
			f.TagIDs = append(f.TagIDs, id)
		}
	}
	if d := req.GetString("difficulty", ""); d != "" {
		f.Difficulty = models.Difficulty(d)
		if !f.Difficulty.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown difficulty %q", d)), nil
		}
	}
	f.BookmarkedOnly = req.GetBool("bookmarked_only", false)

	words, err := s.svc.Filter(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(words) == 0 {
		return mcp.NewToolResultText("no words found"), nil
	}
	return jsonResult(words), nil
}

func (s *Server) loadProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("level")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	level, err := models.ParseLevel(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.LoadProgress(ctx, level)), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.Tags(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags"), nil
	}
	return jsonResult(tags), nil
}

func (s *Server) getImportFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ImportFormatContract), nil
}

func (s *Server) readImportFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      importFormatURI,
			MIMEType: "text/markdown",
			Text:     ImportFormatContract,
		},
	}, nil
}
