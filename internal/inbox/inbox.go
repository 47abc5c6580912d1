// Package inbox imports CSV and JSON word lists dropped into a directory. Each
// file is imported again only when its content checksum changes.
package inbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/vocabhive/internal/checksum"
	"github.com/starford/vocabhive/internal/importer"
	"github.com/starford/vocabhive/internal/storage"
	"github.com/starford/vocabhive/internal/wordservice"
)

const debounce = 250 * time.Millisecond

// Importer imports one parsed source.
type Importer interface {
	Import(ctx context.Context, source string, format importer.Format, r io.Reader) (wordservice.ImportSummary, error)
}

// Ledger remembers the checksum of every imported source.
type Ledger interface {
	ImportChecksum(ctx context.Context, source string) (string, error)
	RecordImport(ctx context.Context, source, checksum string) error
}

// Inbox imports files found under root.
type Inbox struct {
	root   string
	files  storage.Provider
	imp    Importer
	ledger Ledger
	logger *slog.Logger
}

// New creates an Inbox. root must be the directory files is rooted at.
func New(root string, files storage.Provider, imp Importer, ledger Ledger, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{root: root, files: files, imp: imp, ledger: ledger, logger: logger}
}

// Sync imports every file that is new or changed since its last import and
// returns how many files were imported.
func (in *Inbox) Sync(ctx context.Context) (int, error) {
	list, err := in.files.List("")
	if err != nil {
		return 0, err
	}
	imported := 0
	for _, f := range list {
		prev, err := in.ledger.ImportChecksum(ctx, f.Path)
		if err != nil {
			return imported, err
		}
		if prev == f.Checksum {
			continue
		}
		ok, err := in.importFile(ctx, f.Path)
		if err != nil {
			in.logger.Warn("inbox: import failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if ok {
			imported++
		}
	}
	in.logger.Info("inbox: sync complete", slog.Int("files", len(list)), slog.Int("imported", imported))
	return imported, nil
}

// importFile imports rel unless its checksum matches the ledger. It reports
// whether an import happened.
func (in *Inbox) importFile(ctx context.Context, rel string) (bool, error) {
	format, ok := importer.FormatFromPath(rel)
	if !ok {
		return false, nil
	}
	data, err := in.files.Read(rel)
	if err != nil {
		return false, err
	}
	sum := checksum.Sum(data)
	prev, err := in.ledger.ImportChecksum(ctx, rel)
	if err != nil {
		return false, err
	}
	if prev == sum {
		return false, nil
	}

	res, err := in.imp.Import(ctx, rel, format, bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("inbox: import %s: %w", rel, err)
	}
	if err := in.ledger.RecordImport(ctx, rel, sum); err != nil {
		return false, err
	}
	in.logger.Debug("inbox: imported",
		slog.String("path", rel),
		slog.Int("words", res.Words))
	return true, nil
}

// Watch imports files as they are created or written until ctx is canceled.
// Events are debounced so a file being copied is imported once it settles.
// Directories created at runtime are watched too.
func (in *Inbox) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, in.root); err != nil {
		return err
	}
	in.logger.Info("inbox: watching", slog.String("root", in.root))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			in.logger.Info("inbox: stopped")
			return nil

		case <-fire:
			for rel := range pending {
				if _, err := in.importFile(ctx, rel); err != nil {
					in.logger.Warn("inbox: import failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						in.logger.Warn("inbox: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					in.scheduleDir(ev.Name, schedule)
					continue
				}
			}
			if !storage.Importable(ev.Name) {
				continue
			}
			if rel, relErr := filepath.Rel(in.root, ev.Name); relErr == nil {
				schedule(rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// scheduleDir queues importable files already present in a new directory.
func (in *Inbox) scheduleDir(dir string, schedule func(string)) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if hidden(dir, p, d) {
				return filepath.SkipDir
			}
			return nil
		}
		if !storage.Importable(p) {
			return nil
		}
		if rel, relErr := filepath.Rel(in.root, p); relErr == nil {
			schedule(rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if hidden(root, path, d) {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}

// hidden matches the storage provider, which skips dot-directories below the root.
func hidden(root, path string, d fs.DirEntry) bool {
	return path != root && strings.HasPrefix(d.Name(), ".")
}
