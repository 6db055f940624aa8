// Stores blobs in a sharded directory tree on local disk
package localfsblobstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/function61/gokit/atomicfilewrite"
	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/logex"
	"github.com/function61/tagfs/pkg/blobstore"
)

type localFs struct {
	path string
	log  *logex.Leveled
}

var _ blobstore.Driver = (*localFs)(nil)

func New(path string, logger *log.Logger) *localFs {
	return &localFs{
		path: path,
		log:  logex.Levels(logex.NonNil(logger)),
	}
}

func (l *localFs) Store(_ context.Context, hash string, content []byte) (string, error) {
	relativePath, err := blobstore.ShardedPath(hash)
	if err != nil {
		return "", err
	}

	filename := l.getPath(relativePath)

	// does not error if already exists
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return "", err
	}

	// temp file + rename, so Fetch() never sees a partially written blob. rename replaces
	// previous blob of the same hash.
	if err := atomicfilewrite.Write(filename, func(writer io.Writer) error {
		_, err := writer.Write(content)
		return err
	}); err != nil {
		return "", err
	}

	return relativePath, nil
}

func (l *localFs) Fetch(_ context.Context, relativePath string) ([]byte, error) {
	if err := blobstore.ValidateRelativePath(relativePath); err != nil {
		return nil, err
	}

	return os.ReadFile(l.getPath(relativePath))
}

func (l *localFs) Delete(_ context.Context, relativePath string) error {
	if err := blobstore.ValidateRelativePath(relativePath); err != nil {
		return err
	}

	return os.Remove(l.getPath(relativePath))
}

func (l *localFs) Exists(_ context.Context, relativePath string) (bool, error) {
	if err := blobstore.ValidateRelativePath(relativePath); err != nil {
		return false, err
	}

	return fileexists.Exists(l.getPath(relativePath))
}

func (l *localFs) Footprint(_ context.Context) (int64, error) {
	total := int64(0)

	err := filepath.WalkDir(l.path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		total += info.Size()

		return nil
	})
	if err != nil {
		return 0, err
	}

	l.log.Debug.Printf("footprint of %s: %d byte(s)", l.path, total)

	return total, nil
}

// creates the root if it doesn't exist yet
func (l *localFs) Mountable(_ context.Context) error {
	if err := os.MkdirAll(l.path, 0755); err != nil {
		return err
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("blob store root not a directory: %s", l.path)
	}

	return nil
}

func (l *localFs) getPath(relativePath string) string {
	return filepath.Join(l.path, filepath.FromSlash(relativePath))
}
