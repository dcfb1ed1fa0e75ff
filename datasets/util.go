package datasets

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

func parseFloat64(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	return strconv.ParseFloat(s, 64)
}

// Auto-discovery helpers

// autoFindCloud returns the first file matching any of patterns.
func autoFindCloud(patterns []string) (string, error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("no electron cloud files found in common locations")
}

// FindCloudFile locates an electron cloud dump. An explicit path wins;
// otherwise the usual data/ locations are searched for evt*.txt.
func FindCloudFile(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return autoFindCloud([]string{
		"data/evt*.txt",
		"../data/evt*.txt",
		"../../data/evt*.txt",
	})
}
