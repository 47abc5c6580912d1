// Package storage defines the inbox directory abstraction.
package storage

import "time"

// File describes one importable file in the inbox.
type File struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider lists and reads importable files. Paths are relative to the inbox root.
type Provider interface {
	// List returns every .csv and .json file under dir.
	List(dir string) ([]File, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
}
