package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sgx-labs/scout/internal/store"
)

// MaxFileBytes skips markdown files larger than this.
const MaxFileBytes = 1 << 20

// SkipDirs are never descended into.
var SkipDirs = map[string]bool{
	".git":         true,
	".scout":       true,
	".obsidian":    true,
	".trash":       true,
	"node_modules": true,
}

// Stats holds import statistics.
type Stats struct {
	TotalFiles int `json:"total_files"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
}

// ProgressFunc is called after each file with the running count.
type ProgressFunc func(current, total int, path string)

// ErrSkipped is returned for files that are not imported, such as oversized
// or empty notes.
var ErrSkipped = errors.New("file skipped")

// ImportDir walks dir and upserts every markdown file as a note.
func ImportDir(db *store.DB, dir string, progress ProgressFunc) (*Stats, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("sync dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sync dir %s is not a directory", dir)
	}

	files := WalkDir(dir)
	stats := &Stats{TotalFiles: len(files)}
	for i, path := range files {
		created, err := ImportFile(db, dir, path)
		switch {
		case errors.Is(err, ErrSkipped):
			stats.Skipped++
		case err != nil:
			stats.Errors++
		case created:
			stats.Created++
		default:
			stats.Updated++
		}
		if progress != nil {
			progress(i+1, len(files), relativePath(path, dir))
		}
	}
	return stats, nil
}

// ImportFile upserts a single markdown file. It reports whether a new note
// was created.
func ImportFile(db *store.DB, dir, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxFileBytes {
		return false, fmt.Errorf("%w: %s is larger than %d bytes", ErrSkipped, path, MaxFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return false, fmt.Errorf("%w: %s is empty", ErrSkipped, path)
	}
	parsed := ParseNote(string(data), path)

	_, created, err := db.UpsertBySource(relativePath(path, dir), parsed.Title, parsed.Body, parsed.Tags)
	if err != nil {
		return false, fmt.Errorf("import %s: %w", path, err)
	}
	return created, nil
}

// RemoveFile deletes the note imported from path. A path that was never
// imported is not an error.
func RemoveFile(db *store.DB, dir, path string) error {
	err := db.DeleteBySource(relativePath(path, dir))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// IsMarkdown reports whether path names a markdown note.
func IsMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// WalkDir returns all markdown files under dir, skipping SkipDirs.
func WalkDir(dir string) []string {
	var files []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && SkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if IsMarkdown(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func relativePath(filePath, dir string) string {
	rel, err := filepath.Rel(dir, filePath)
	if err != nil {
		return filepath.ToSlash(filePath)
	}
	return filepath.ToSlash(rel)
}
