// Interface for writing blob store adapters to TagFS
package blobstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/function61/tagfs/pkg/tagfstypes"
)

// Blobs are addressed by the relative path the driver returned from Store(). The path is
// recorded in the index and never re-derived, so the sharding rule can change without
// invalidating existing blobs.
type Driver interface {
	// writes or overwrites. returns the relative path the blob was written to.
	Store(ctx context.Context, hash string, content []byte) (string, error)

	// if blob is not found, error must report os.IsNotExist(err) == true
	Fetch(ctx context.Context, relativePath string) ([]byte, error)

	// if blob is not found, error must report os.IsNotExist(err) == true
	Delete(ctx context.Context, relativePath string) error

	Exists(ctx context.Context, relativePath string) (bool, error)

	// sum of actual stored blob sizes
	Footprint(ctx context.Context) (int64, error)

	Mountable(ctx context.Context) error
}

// "d7a8fbb307..." => "d/7/a/8/fbb307..."
//
// each directory level has at most 64 entries for [0-9A-Za-z_-] hashes
func ShardedPath(hash string) (string, error) {
	if err := tagfstypes.ValidateHash(hash); err != nil {
		return "", err
	}

	components := make([]string, 0, tagfstypes.ShardDepth+1)
	for i := 0; i < tagfstypes.ShardDepth; i++ {
		components = append(components, hash[i:i+1])
	}

	return path.Join(append(components, hash[tagfstypes.ShardDepth:])...), nil
}

// relative paths come from the index, but we still don't want them escaping the store root
func ValidateRelativePath(relativePath string) error {
	cleaned := path.Clean(relativePath)

	if relativePath == "" || cleaned != relativePath || path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("invalid blob path: %q", relativePath)
	}

	return nil
}
