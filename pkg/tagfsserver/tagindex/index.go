// Persistent metadata index: file records by hash, exact tag queries and free-text search
package tagindex

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/logex"
	"github.com/function61/tagfs/pkg/blorm"
	"github.com/function61/tagfs/pkg/tagfstypes"
	"go.etcd.io/bbolt"
)

const (
	dbFilename = "tagfs.db"

	compactionTxMaxSize = 64 * 1024 * 1024
)

type Index struct {
	db     *bbolt.DB
	dbPath string
	logl   *logex.Leveled
}

// opens (or creates) the index in given directory. an existing index is checked and
// compacted before returning. malformed index => tagfstypes.ErrIndexCorrupt
func Open(dir string, logger *log.Logger) (*Index, error) {
	logl := logex.Levels(logex.NonNil(logger))

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, dbFilename)

	existed, err := fileexists.Exists(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := openDb(dbPath, existed)
	if err != nil {
		return nil, err
	}

	idx := &Index{db, dbPath, logl}

	if err := idx.bootstrapAndVerify(); err != nil {
		_ = db.Close()
		return nil, err
	}

	count, err := idx.Count()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if count > 0 {
		started := time.Now()

		if err := idx.compact(); err != nil {
			// compact() may have already closed (or failed to reopen) the handle
			if idx.db != nil {
				_ = idx.db.Close()
			}

			return nil, fmt.Errorf("compaction: %w", err)
		}

		logl.Info.Printf("compacted index with %d file(s) in %s", count, time.Since(started))
	}

	return idx, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

// tagfstypes.ErrNotFound if hash not indexed
func (i *Index) Get(hash string) (*tagfstypes.FileRecord, error) {
	record := &tagfstypes.FileRecord{}

	if err := i.db.View(func(tx *bbolt.Tx) error {
		return fileRepository.OpenByPrimaryKey([]byte(hash), record, tx)
	}); err != nil {
		return nil, translateNotFound(err)
	}

	return record, nil
}

// inserts or replaces the record with the same hash in one transaction, so no two records
// ever coexist for one hash. returns the replaced record, or nil if there was none.
func (i *Index) Replace(record tagfstypes.FileRecord) (*tagfstypes.FileRecord, error) {
	var prior *tagfstypes.FileRecord

	if err := i.db.Update(func(tx *bbolt.Tx) error {
		existing := &tagfstypes.FileRecord{}
		switch err := fileRepository.OpenByPrimaryKey([]byte(record.Hash), existing, tx); {
		case err == nil:
			prior = existing
		case !errors.Is(err, blorm.ErrNotFound):
			return err
		}

		// Update() takes care of dropping the old image's index entries
		return fileRepository.Update(&record, tx)
	}); err != nil {
		return nil, err
	}

	return prior, nil
}

// returns the deleted record. tagfstypes.ErrNotFound if hash not indexed
func (i *Index) Delete(hash string) (*tagfstypes.FileRecord, error) {
	deleted := &tagfstypes.FileRecord{}

	if err := i.db.Update(func(tx *bbolt.Tx) error {
		if err := fileRepository.OpenByPrimaryKey([]byte(hash), deleted, tx); err != nil {
			return err
		}

		return fileRepository.Delete(deleted, tx)
	}); err != nil {
		return nil, translateNotFound(err)
	}

	return deleted, nil
}

// hashes of files having all of the given tags. tags are case-folded.
func (i *Index) ListByTags(tags []string) ([]string, error) {
	normalized, err := tagfstypes.NormalizeTags(tags)
	if err != nil {
		return nil, err
	}

	if len(normalized) == 0 {
		return nil, tagfstypes.ErrEmptyTagSet
	}

	var result hashSet

	if err := i.db.View(func(tx *bbolt.Tx) error {
		for _, tag := range normalized {
			withTag, err := queryPartition(filesByTagIndex, []byte(tag), tx)
			if err != nil {
				return err
			}

			result = result.intersect(withTag)

			if len(result) == 0 { // can't get any smaller
				return nil
			}
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result.sorted(), nil
}

func (i *Index) Count() (int, error) {
	count := 0

	if err := i.db.View(func(tx *bbolt.Tx) error {
		var err error
		count, err = fileRepository.Count(tx)
		return err
	}); err != nil {
		return 0, err
	}

	return count, nil
}

// iterates all records in hash order. return blorm.ErrStopIteration to stop early.
func (i *Index) Each(fn func(record tagfstypes.FileRecord) error) error {
	return i.db.View(func(tx *bbolt.Tx) error {
		return fileRepository.Each(func(record any) error {
			return fn(*record.(*tagfstypes.FileRecord))
		}, tx)
	})
}

func (i *Index) bootstrapAndVerify() error {
	if err := i.db.Update(func(tx *bbolt.Tx) error {
		return fileRepository.Bootstrap(tx)
	}); err != nil {
		return err
	}

	return i.db.View(func(tx *bbolt.Tx) error {
		// drain fully, the checker goroutine blocks until every error is read
		var firstCheckErr error
		for err := range tx.Check() {
			if firstCheckErr == nil {
				firstCheckErr = err
			}
		}
		if firstCheckErr != nil {
			return fmt.Errorf("%w: %v", tagfstypes.ErrIndexCorrupt, firstCheckErr)
		}

		if err := fileRepository.Each(func(record any) error {
			if err := tagfstypes.ValidateHash(record.(*tagfstypes.FileRecord).Hash); err != nil {
				return err
			}

			return nil
		}, tx); err != nil {
			return fmt.Errorf("%w: %v", tagfstypes.ErrIndexCorrupt, err)
		}

		return nil
	})
}

// rewrites the database into a fresh file (dropping free pages) and atomically swaps it
// in. every key is copied, so nothing is lost or duplicated.
func (i *Index) compact() error {
	tempPath := i.dbPath + ".compact"

	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	dst, err := bbolt.Open(tempPath, 0600, nil)
	if err != nil {
		return err
	}

	if err := bbolt.Compact(dst, i.db, compactionTxMaxSize); err != nil {
		_ = dst.Close()
		_ = os.Remove(tempPath)
		return err
	}

	if err := dst.Close(); err != nil {
		return err
	}

	if err := i.db.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempPath, i.dbPath); err != nil {
		return err
	}

	i.db, err = openDb(i.dbPath, true)
	return err
}

func openDb(dbPath string, existed bool) (*bbolt.DB, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		if existed && !errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s: %v", tagfstypes.ErrIndexCorrupt, dbPath, err)
		}

		return nil, err
	}

	return db, nil
}

func queryPartition(idx *blorm.ValueIndex, partition []byte, tx *bbolt.Tx) (hashSet, error) {
	set := hashSet{}

	return set, idx.Query(partition, func(hash []byte) error {
		set[string(hash)] = struct{}{}
		return nil
	}, tx)
}

func translateNotFound(err error) error {
	if errors.Is(err, blorm.ErrNotFound) {
		return tagfstypes.ErrNotFound
	}

	return err
}
