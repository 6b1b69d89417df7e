package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"onboarding-backend/internal/shared/util"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store saves and retrieves binary objects by key.
type Store interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// UserKey namespaces fileName under a digest of userID so one user cannot
// address another user's objects.
func UserKey(userID, fileName string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user is required", ErrInvalidKey)
	}
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return path.Join(util.HashKey(userID)[:32], name), nil
}

// CleanKey rejects absolute and traversing keys.
func CleanKey(key string) (string, error) {
	clean := path.Clean(strings.TrimSpace(key))
	if clean == "." || clean == "" || strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return "", ErrInvalidKey
	}
	return clean, nil
}
