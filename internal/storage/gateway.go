// Package storage provides read access to the object store holding the data
// lake. The Gateway interface is the seam the rest of the system depends on;
// concrete implementations cover S3 and a local directory tree (offline and
// test use). Decorators add bounded retries and request rate limiting.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"quantdl/internal/errors"
)

// Gateway reads artifacts from the object store by logical path.
type Gateway interface {
	// Read returns the raw bytes at path. Missing objects surface as a
	// NOT_FOUND domain error; anything else is a transport failure.
	Read(ctx context.Context, path string) ([]byte, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalGateway serves a directory tree as an object store. Used for offline
// work and tests; mirrors the layout of the real bucket.
type LocalGateway struct {
	root string
}

// NewLocalGateway creates a gateway over the given directory.
func NewLocalGateway(root string) *LocalGateway {
	return &LocalGateway{root: root}
}

// Read implements Gateway.
func (g *LocalGateway) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(g.root, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("object", path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// List implements Gateway.
func (g *LocalGateway) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.WalkDir(g.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(g.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}
