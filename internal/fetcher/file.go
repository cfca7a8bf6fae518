package fetcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FileSource reads blobs from a local directory tree: <root>/<bucket>/<key>.
type FileSource struct {
	Root string
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{Root: dir}
}

// Get reads the whole file for bucket/key.
func (s *FileSource) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "file: context cancelled")
	}
	p, err := objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(s.Root, filepath.FromSlash(p))

	zap.L().Debug("file: reading blob", zap.String("path", full))
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "file: %s", full)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file: read %s", full)
	}
	return data, nil
}
