// Package apperr defines the error kinds shared across vocabhive layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrStorage             = errors.New("storage error")
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrChunkLoad           = errors.New("chunk load failed")
	ErrParse               = errors.New("parse error")
)

// StorageError reports a failed persistent-store transaction.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError. A nil err stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// MetadataError reports that metadata could not be fetched and no cached copy exists.
type MetadataError struct {
	Key string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata %s unavailable: %v", e.Key, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

func (e *MetadataError) Is(target error) bool { return target == ErrMetadataUnavailable }

// ChunkLoadError reports a failed chunk fetch. Index is 0-based.
type ChunkLoadError struct {
	Level string
	Index int
	Err   error
}

func (e *ChunkLoadError) Error() string {
	return fmt.Sprintf("chunk %s/%d: %v", e.Level, e.Index, e.Err)
}

func (e *ChunkLoadError) Unwrap() error { return e.Err }

func (e *ChunkLoadError) Is(target error) bool { return target == ErrChunkLoad }

// ParseError reports malformed import input.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Format, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }
