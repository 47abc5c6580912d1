package models

import (
	"fmt"
	"time"
)

// Level groups words for the UI. Each level maps to exactly one Difficulty.
type Level string

// Levels.
const (
	LevelElementary Level = "elementary"
	LevelMiddle     Level = "middle"
	LevelHigh       Level = "high"
)

// Levels lists every level in display order.
var Levels = []Level{LevelElementary, LevelMiddle, LevelHigh}

// ParseLevel validates s as a Level.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case LevelElementary, LevelMiddle, LevelHigh:
		return l, nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// Difficulty returns the fixed difficulty of the level.
func (l Level) Difficulty() Difficulty {
	switch l {
	case LevelElementary:
		return DifficultyBeginner
	case LevelMiddle:
		return DifficultyIntermediate
	case LevelHigh:
		return DifficultyAdvanced
	}
	return ""
}

// DifficultyLevel is the inverse of Level.Difficulty.
func DifficultyLevel(d Difficulty) (Level, bool) {
	switch d {
	case DifficultyBeginner:
		return LevelElementary, true
	case DifficultyIntermediate:
		return LevelMiddle, true
	case DifficultyAdvanced:
		return LevelHigh, true
	}
	return "", false
}

// LevelMetadata describes how a level's word list is partitioned into chunks.
type LevelMetadata struct {
	Level         Level     `json:"level"`
	TotalWords    int       `json:"totalWords"`
	TotalChunks   int       `json:"totalChunks"`
	WordsPerChunk int       `json:"wordsPerChunk"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LevelSummary is one level's entry in GlobalMetadata.
type LevelSummary struct {
	Level      Level `json:"level"`
	WordCount  int   `json:"wordCount"`
	ChunkCount int   `json:"chunkCount"`
}

// GlobalMetadata is the process-wide dataset description.
type GlobalMetadata struct {
	Version       string         `json:"version"`
	Source        string         `json:"source"`
	TotalWords    int            `json:"totalWords"`
	Levels        []LevelSummary `json:"levels"`
	Tags          []Tag          `json:"tags"`
	WordsPerChunk int            `json:"wordsPerChunk"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Level returns the summary for l, if present.
func (g *GlobalMetadata) Level(l Level) (LevelSummary, bool) {
	for _, s := range g.Levels {
		if s.Level == l {
			return s, true
		}
	}
	return LevelSummary{}, false
}

// ChunkMeta is the header of a published chunk file. ChunkID is 1-based as published.
type ChunkMeta struct {
	Level       Level `json:"level"`
	ChunkID     int   `json:"chunkId"`
	TotalChunks int   `json:"totalChunks"`
	WordCount   int   `json:"wordCount"`
	StartIndex  int   `json:"startIndex"`
	EndIndex    int   `json:"endIndex"`
}

// Chunk is a published, immutable slice of one level's word list.
type Chunk struct {
	Meta  ChunkMeta   `json:"meta"`
	Words []WordEntry `json:"words"`
}

// SampleMeta is the header of the bulk sample dataset.
type SampleMeta struct {
	Version    string `json:"version"`
	Source     string `json:"source"`
	CreateDate string `json:"createDate"`
	Count      int    `json:"count"`
}
