package util

import (
	"errors"
	"strings"
)

var fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_", `"`, "_", "\r", "_", "\n", "_")

// SanitizeFileName makes name safe for a Content-Disposition header and rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := fileNameReplacer.Replace(strings.TrimSpace(name))
	if s == "" {
		return "", errors.New("invalid file name")
	}
	return s, nil
}
