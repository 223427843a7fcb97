// Package storage implements the object store used for uploaded images.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrInvalidKey = errors.New("invalid object key")

var storageLogger zerolog.Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	storageLogger = l
}

type Object struct {
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (Object, error)
	PublicURL(key string) string
	List(ctx context.Context, prefix string) ([]Object, error)
}

// NormalizeKey turns backslashes into slashes, drops leading and repeated
// slashes and rejects keys that climb out of the store.
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimLeft(key, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}

	if key == "" {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return "", ErrInvalidKey
		}
	}
	return key, nil
}
