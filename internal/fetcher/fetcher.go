// Package fetcher reads ESG file drops from blob storage (local files, HTTP, FTP)
// and decodes them into raw rows.
package fetcher

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// BlobSource fetches a whole blob addressed by bucket and key.
type BlobSource interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// objectPath joins bucket and key into a slash path, rejecting traversal.
func objectPath(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", eris.Errorf("fetcher: bucket and key are required (bucket=%q key=%q)", bucket, key)
	}
	p := path.Clean("/" + bucket + "/" + key)
	if !strings.HasPrefix(p, "/"+bucket+"/") || strings.Contains(bucket, "/") {
		return "", eris.Errorf("fetcher: key %q escapes bucket %q", key, bucket)
	}
	return p, nil
}
