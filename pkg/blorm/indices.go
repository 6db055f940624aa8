package blorm

import (
	"bytes"
	"errors"

	"go.etcd.io/bbolt"
)

/*	valueIndex (example: files:tag)
	-----------
	bucket <repo>:<index>
	  partition bucket <value>
	    (id) = nil

	one record can push any number of partitions. empty partition buckets are removed so
	that partition existence == "some record has this value".
*/

type Index interface {
	// only for our internal use
	name() []byte
	extractIndexRefs(record any) []qualifiedIndexRef
}

// fully qualified index reference, including the index name
type qualifiedIndexRef struct {
	indexName []byte // looks like files:tag
	partition []byte
	sortKey   []byte // primary key of record the index entry refers to
}

func (i *qualifiedIndexRef) Equals(other *qualifiedIndexRef) bool {
	return bytes.Equal(i.indexName, other.indexName) &&
		bytes.Equal(i.partition, other.partition) &&
		bytes.Equal(i.sortKey, other.sortKey)
}

// write index entry to DB
func (i *qualifiedIndexRef) Write(tx *bbolt.Tx) error {
	indexBucket, err := tx.CreateBucketIfNotExists(i.indexName)
	if err != nil {
		return err
	}

	partitionBucket, err := indexBucket.CreateBucketIfNotExists(i.partition)
	if err != nil {
		return err
	}

	return partitionBucket.Put(i.sortKey, []byte{})
}

// drop index entry from DB
func (i *qualifiedIndexRef) Drop(tx *bbolt.Tx) error {
	indexBucket := tx.Bucket(i.indexName)
	if indexBucket == nil {
		return nil
	}

	partitionBucket := indexBucket.Bucket(i.partition)
	if partitionBucket == nil {
		return nil
	}

	if err := partitionBucket.Delete(i.sortKey); err != nil {
		return err
	}

	if first, _ := partitionBucket.Cursor().First(); first == nil {
		return indexBucket.DeleteBucket(i.partition)
	}

	return nil
}

type ValueIndex struct {
	repo            *SimpleRepository
	indexName       []byte // looks like <repoBucketName>:<indexName>
	memberEvaluator func(record any, index func(partition []byte))
}

func NewValueIndex(name string, repo *SimpleRepository, memberEvaluator func(record any, index func(partition []byte))) *ValueIndex {
	idx := &ValueIndex{repo, []byte(string(repo.bucketName) + ":" + name), memberEvaluator}

	repo.indices = append(repo.indices, idx)

	return idx
}

func (v *ValueIndex) name() []byte {
	return v.indexName
}

func (v *ValueIndex) extractIndexRefs(record any) []qualifiedIndexRef {
	refs := []qualifiedIndexRef{}

	v.memberEvaluator(record, func(partition []byte) {
		if len(partition) == 0 {
			panic("cannot index by empty value")
		}

		ref := qualifiedIndexRef{v.indexName, partition, v.repo.idExtractor(record)}

		if !indexRefExistsIn(ref, refs) {
			refs = append(refs, ref)
		}
	})

	return refs
}

// return ErrStopIteration if you want to stop mid-iteration (nil error will be returned by Query() )
func (v *ValueIndex) Query(partition []byte, fn func(sortKey []byte) error, tx *bbolt.Tx) error {
	partitionBucket, err := v.partitionBucket(partition, tx)
	if err != nil || partitionBucket == nil {
		return err
	}

	idx := partitionBucket.Cursor()
	for sortKey, _ := idx.First(); sortKey != nil; sortKey, _ = idx.Next() {
		if err := fn(makeCopy(sortKey)); err != nil {
			if errors.Is(err, ErrStopIteration) {
				return nil
			}

			return err
		}
	}

	return nil
}

// number of records having the given value. zero for unknown values.
func (v *ValueIndex) Count(partition []byte, tx *bbolt.Tx) (int, error) {
	partitionBucket, err := v.partitionBucket(partition, tx)
	if err != nil || partitionBucket == nil {
		return 0, err
	}

	return countKeys(partitionBucket), nil
}

// nil bucket (without error) means partition doesn't exist => no matching entries
func (v *ValueIndex) partitionBucket(partition []byte, tx *bbolt.Tx) (*bbolt.Bucket, error) {
	if len(partition) == 0 {
		return nil, errors.New("cannot query by empty value")
	}

	indexBucket := tx.Bucket(v.indexName)
	if indexBucket == nil {
		return nil, ErrBucketNotFound
	}

	return indexBucket.Bucket(partition), nil
}

func indexRefExistsIn(ir qualifiedIndexRef, coll []qualifiedIndexRef) bool {
	for _, other := range coll {
		other := other // pin
		if ir.Equals(&other) {
			return true
		}
	}

	return false
}

// Bucket.Stats() reads only committed pages, so counting has to be done by walking
func countKeys(bucket *bbolt.Bucket) int {
	count := 0

	cursor := bucket.Cursor()
	for key, _ := cursor.First(); key != nil; key, _ = cursor.Next() {
		count++
	}

	return count
}

// https://github.com/boltdb/bolt/issues/658#issuecomment-277898467
func makeCopy(from []byte) []byte {
	copied := make([]byte, len(from))
	copy(copied, from)
	return copied
}
