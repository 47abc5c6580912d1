package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"storage", Storage("upsert words", cause), ErrStorage},
		{"metadata", &MetadataError{Key: "global", Err: cause}, ErrMetadataUnavailable},
		{"chunk", &ChunkLoadError{Level: "middle", Index: 1, Err: cause}, ErrChunkLoad},
		{"parse", &ParseError{Format: "csv", Err: cause}, ErrParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !errors.Is(wrapped, tc.kind) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tc.kind)
			}
			if !errors.Is(wrapped, cause) {
				t.Errorf("cause not reachable through %v", wrapped)
			}
		})
	}
}

func TestStorageNil(t *testing.T) {
	if err := Storage("noop", nil); err != nil {
		t.Errorf("Storage(nil) = %v, want nil", err)
	}
}

func TestChunkLoadErrorAs(t *testing.T) {
	err := fmt.Errorf("load: %w", &ChunkLoadError{Level: "high", Index: 3, Err: errors.New("404")})
	var cle *ChunkLoadError
	if !errors.As(err, &cle) {
		t.Fatal("errors.As failed")
	}
	if cle.Level != "high" || cle.Index != 3 {
		t.Errorf("got %+v", cle)
	}
}
