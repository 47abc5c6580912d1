// Package origin fetches the published word-chunk files from a static HTTP origin.
package origin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/starford/vocabhive/internal/models"
)

// Resource paths on the origin.
const (
	GlobalMetadataPath = "/word-chunks/metadata.json"
	SampleDatasetPath  = "/sample-vocabulary-data.json"
)

// LevelMetadataPath returns the metadata path for level.
func LevelMetadataPath(level models.Level) string {
	return fmt.Sprintf("/word-chunks/%s/metadata.json", level)
}

// ChunkPath returns the path of the chunk with the given 0-based index.
// Files are published with 1-based numbers.
func ChunkPath(level models.Level, index int) string {
	return fmt.Sprintf("/word-chunks/%s/chunk-%d.json", level, index+1)
}

// Fetcher is what the chunk loader needs from an origin.
type Fetcher interface {
	GlobalMetadata(ctx context.Context) (*models.GlobalMetadata, error)
	LevelMetadata(ctx context.Context, level models.Level) (*models.LevelMetadata, error)
	Chunk(ctx context.Context, level models.Level, index int) (*models.Chunk, error)
}

// Config holds client settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// Client is a resty-backed Fetcher.
type Client struct {
	http *resty.Client
}

var _ Fetcher = (*Client)(nil)

// New creates a client for the origin at cfg.BaseURL.
func New(cfg Config) *Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4 * cfg.RetryWait).
		AddRetryCondition(retryCondition)
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	return &Client{http: c}
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

// GlobalMetadata fetches /word-chunks/metadata.json.
func (c *Client) GlobalMetadata(ctx context.Context) (*models.GlobalMetadata, error) {
	var m models.GlobalMetadata
	if err := c.getJSON(ctx, GlobalMetadataPath, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LevelMetadata fetches the metadata file of one level.
func (c *Client) LevelMetadata(ctx context.Context, level models.Level) (*models.LevelMetadata, error) {
	var m models.LevelMetadata
	if err := c.getJSON(ctx, LevelMetadataPath(level), &m); err != nil {
		return nil, err
	}
	if m.Level == "" {
		m.Level = level
	}
	return &m, nil
}

// Chunk fetches the chunk with the given 0-based index.
func (c *Client) Chunk(ctx context.Context, level models.Level, index int) (*models.Chunk, error) {
	if index < 0 {
		return nil, fmt.Errorf("origin: negative chunk index %d", index)
	}
	var ch models.Chunk
	if err := c.getJSON(ctx, ChunkPath(level, index), &ch); err != nil {
		return nil, err
	}
	if ch.Meta.ChunkID != 0 && ch.Meta.ChunkID != index+1 {
		return nil, fmt.Errorf("origin: %s returned chunkId %d", ChunkPath(level, index), ch.Meta.ChunkID)
	}
	return &ch, nil
}

// SampleDataset returns the raw bulk sample dataset.
func (c *Client) SampleDataset(ctx context.Context) ([]byte, error) {
	resp, err := c.get(ctx, SampleDatasetPath)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) get(ctx context.Context, path string) (*resty.Response, error) {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("origin: get %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("origin: get %s: status %d", path, resp.StatusCode())
	}
	return resp, nil
}

// getJSON decodes the body regardless of the served Content-Type.
func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return fmt.Errorf("origin: decode %s: %w", path, err)
	}
	return nil
}
