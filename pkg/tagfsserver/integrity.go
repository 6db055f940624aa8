package tagfsserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/function61/tagfs/pkg/tagfstypes"
)

// finds indexed files whose blob is missing. only reports, never repairs.
func (n *Node) VerifyIntegrity(ctx context.Context) (*tagfstypes.IntegrityReport, error) {
	release, err := n.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	report, err := n.verifyIntegrity(ctx)
	n.metrics.observe(opIntegrity, err)
	if err != nil {
		return nil, err
	}

	n.metrics.danglingFiles.Set(float64(len(report.Dangling)))

	return report, nil
}

func (n *Node) verifyIntegrity(ctx context.Context) (*tagfstypes.IntegrityReport, error) {
	started := time.Now()

	type blobLocation struct {
		hash         string
		relativePath string
	}

	// collect first so we don't keep a read transaction open across blob store calls
	locations := []blobLocation{}
	if err := n.index.Each(func(record tagfstypes.FileRecord) error {
		locations = append(locations, blobLocation{record.Hash, record.RelativePath})
		return nil
	}); err != nil {
		return nil, err
	}

	report := &tagfstypes.IntegrityReport{
		Dangling: []string{},
	}

	skipped := 0

	for _, location := range locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dangling, checked, err := n.checkBlob(ctx, location.hash)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", location.hash, err)
		}

		if !checked {
			skipped++
			continue
		}

		report.Checked++

		if dangling {
			n.logl.Error.Printf("%v: %s at %s", tagfstypes.ErrDataIntegrity, location.hash, location.relativePath)

			report.Dangling = append(report.Dangling, location.hash)
		}
	}

	n.logl.Info.Printf(
		"integrity scan checked %d file(s) in %s; %d dangling, %d skipped (being written)",
		report.Checked,
		time.Since(started),
		len(report.Dangling),
		skipped)

	return report, nil
}

// checked=false if a put/remove of the hash holds its lock or the record is gone since collecting
func (n *Node) checkBlob(ctx context.Context, hash string) (bool, bool, error) {
	unlock, free := n.hashLocks.TryLock(hash)
	if !free {
		return false, false, nil
	}
	defer unlock()

	record, err := n.index.Get(hash)
	switch {
	case errors.Is(err, tagfstypes.ErrNotFound):
		return false, false, nil
	case err != nil:
		return false, false, err
	}

	exists, err := n.blobs.Exists(ctx, record.RelativePath)
	if err != nil {
		return false, false, err
	}

	return !exists, true, nil
}
