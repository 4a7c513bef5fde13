package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned     uint32
	Matched     uint32
	Unsupported uint32
	Failed      uint32
}

// ScanDirectory lists supported files directly inside root (no recursion, so the
// archive subdirectories are never revisited), oldest modification time first.
func ScanDirectory(root string) ([]string, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, errors.New("root path is required")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, stats, fmt.Errorf("read dir: %w", err)
	}

	type found struct {
		path  string
		mtime time.Time
	}
	var files []found
	for _, e := range entries {
		if e.IsDir() || IsHidden(e.Name()) {
			continue
		}
		stats.Scanned++
		path := filepath.Join(root, e.Name())
		if !candidate(path) {
			stats.Unsupported++
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			stats.Failed++
			continue
		}
		stats.Matched++
		files = append(files, found{path: path, mtime: info.ModTime()})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].mtime.Equal(files[j].mtime) {
			return files[i].path < files[j].path
		}
		return files[i].mtime.Before(files[j].mtime)
	})
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, stats, nil
}
