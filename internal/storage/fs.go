package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// FSStore keeps objects in a local directory. The HTTP server exposes the
// directory under urlPrefix.
type FSStore struct { // implements ObjectStore
	root      string
	urlPrefix string
}

func NewFSStore(root, urlPrefix string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("error creating storage dir %s: %w", root, err)
	}
	return &FSStore{
		root:      root,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
	}, nil
}

func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (Object, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return Object{}, err
	}

	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Object{}, fmt.Errorf("error creating dir for %s: %w", key, err)
	}

	// Write to a temp file first so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("error creating %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, readerWithContext{ctx: ctx, r: body})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Object{}, fmt.Errorf("error writing %s: %w", key, err)
	}
	if size >= 0 && written != size {
		return Object{}, fmt.Errorf("error writing %s: short write %d of %d bytes", key, written, size)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return Object{}, fmt.Errorf("error storing %s: %w", key, err)
	}

	storageLogger.Debug().Str("key", key).Int64("size", written).Msg("Object stored")

	return Object{Key: key, URL: s.PublicURL(key), Size: written}, nil
}

func (s *FSStore) PublicURL(key string) string {
	return s.urlPrefix + "/" + strings.TrimLeft(key, "/")
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	prefix = strings.TrimLeft(prefix, "/")
	objects := make([]Object, 0)

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			Key:        key,
			URL:        s.PublicURL(key),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", path.Clean("/"+prefix), err)
	}

	slices.SortFunc(objects, func(a, b Object) int {
		return strings.Compare(a.Key, b.Key)
	})
	return objects, nil
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
