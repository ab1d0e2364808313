package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/jsonrender/errors"
)

// splitPath parses a slash-delimited pointer path into segments. The empty
// path and "/" address the document root.
func splitPath(path string) ([]string, error) {
	if path == "" || path == "/" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, errors.WrapInvalid(
			fmt.Errorf("path %q must start with '/': %w", path, errors.ErrInvalidPath),
			"store", "splitPath", "path format check")
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, seg := range segments {
		if seg == "" {
			return nil, errors.WrapInvalid(
				fmt.Errorf("path %q has an empty segment: %w", path, errors.ErrInvalidPath),
				"store", "splitPath", "segment check")
		}
	}
	return segments, nil
}

// parseIndex reports whether a segment is numeric-looking, in which case it
// addresses a sequence position rather than a map key.
func parseIndex(seg string) (int, bool) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// isPathPrefix reports whether a is b, an ancestor of b, or the root.
// Both inputs are normalized pointer paths.
func isPathPrefix(a, b string) bool {
	if a == "" || a == "/" || a == b {
		return true
	}
	return strings.HasPrefix(b, a+"/")
}

// normalizePath canonicalizes the root spellings so prefix comparison and
// subscription bookkeeping use one form.
func normalizePath(path string) string {
	if path == "/" {
		return ""
	}
	return path
}
