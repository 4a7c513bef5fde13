package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/bookkeeper/constants"
)

// IsHidden checks if a file or directory is hidden (starts with '.').
// Editors and browsers write partial downloads this way.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// candidate is the cheap name-only filter applied before any stat.
func candidate(path string) bool {
	return !IsHidden(path) && constants.IsSupportedPath(path)
}
