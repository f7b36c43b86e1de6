package library

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ScanResult holds the outcome of a single directory scan.
type ScanResult struct {
	Added  int
	Errors map[string]error
}

// Scan walks dir recursively, reads tags for every supported audio file
// found, and merges the results into l. Individual file failures (unreadable
// file, checksum I/O error) are collected in ScanResult.Errors rather than
// aborting the whole walk.
func (l *Library) Scan(dir string) (*ScanResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access music directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}

	result := &ScanResult{Errors: make(map[string]error)}
	before := l.Count()

	err = filepath.Walk(dir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			result.Errors[path] = walkErr
			slog.Warn("library: error accessing path during scan", "path", path, "error", walkErr)
			return nil
		}
		if fi.IsDir() {
			return nil
		}
		if !IsSupportedFormat(strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		track, err := newTrackFromFile(path)
		if err != nil {
			result.Errors[path] = err
			slog.Warn("library: failed to read track", "path", path, "error", err)
			return nil
		}
		l.addOrUpdate(track)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking music directory %q: %w", dir, err)
	}

	result.Added = l.Count() - before
	slog.Info("library: scan complete", "directory", dir, "added", result.Added, "total", l.Count(), "errors", len(result.Errors))
	return result, nil
}
