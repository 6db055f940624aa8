package blorm

import (
	"errors"

	"github.com/asdine/storm/codec/msgpack"
	"go.etcd.io/bbolt"
)

type SimpleRepository struct {
	bucketName  []byte
	alloc       func() any
	idExtractor func(record any) []byte
	indices     []Index
}

var _ Repository = (*SimpleRepository)(nil)

func NewSimpleRepo(bucketName string, allocator func() any, idExtractor func(any) []byte) *SimpleRepository {
	return &SimpleRepository{
		bucketName:  []byte(bucketName),
		alloc:       allocator,
		idExtractor: idExtractor,
		indices:     []Index{},
	}
}

// creates the record bucket and buckets of all the indices
func (r *SimpleRepository) Bootstrap(tx *bbolt.Tx) error {
	if _, err := tx.CreateBucketIfNotExists(r.bucketName); err != nil {
		return err
	}

	for _, idx := range r.indices {
		if _, err := tx.CreateBucketIfNotExists(idx.name()); err != nil {
			return err
		}
	}

	return nil
}

func (r *SimpleRepository) Alloc() any {
	return r.alloc()
}

func (r *SimpleRepository) OpenByPrimaryKey(id []byte, record any, tx *bbolt.Tx) error {
	bucket := tx.Bucket(r.bucketName)
	if bucket == nil {
		return ErrBucketNotFound
	}

	data := bucket.Get(id)
	if data == nil {
		return ErrNotFound
	}

	return msgpack.Codec.Unmarshal(data, record)
}

func (r *SimpleRepository) Update(record any, tx *bbolt.Tx) error {
	bucket := tx.Bucket(r.bucketName)
	if bucket == nil {
		return ErrBucketNotFound
	}

	id := r.idExtractor(record)

	data, err := msgpack.Codec.Marshal(record)
	if err != nil {
		return err
	}

	oldImage := r.alloc()

	errOpenOld := r.OpenByPrimaryKey(id, oldImage, tx)
	if errOpenOld != nil && !errors.Is(errOpenOld, ErrNotFound) {
		return errOpenOld
	}

	oldIndices := []qualifiedIndexRef{}
	if errOpenOld == nil { // have old and new image, must compare indices for old and new image
		oldIndices = r.indexRefsForRecord(oldImage)
	}

	if err := updateIndices(oldIndices, r.indexRefsForRecord(record), tx); err != nil {
		return err
	}

	return bucket.Put(id, data)
}

func (r *SimpleRepository) Delete(record any, tx *bbolt.Tx) error {
	bucket := tx.Bucket(r.bucketName)
	if bucket == nil {
		return ErrBucketNotFound
	}

	id := r.idExtractor(record)

	if bucket.Get(id) == nil { // bucket.Delete() does not return error for non-existing keys
		return ErrNotFound
	}

	// drop index entries of the stored image, the given record might be stale
	storedImage := r.alloc()
	if err := r.OpenByPrimaryKey(id, storedImage, tx); err != nil {
		return err
	}

	if err := updateIndices(r.indexRefsForRecord(storedImage), []qualifiedIndexRef{}, tx); err != nil {
		return err
	}

	return bucket.Delete(id)
}

func (r *SimpleRepository) Each(fn func(record any) error, tx *bbolt.Tx) error {
	bucket := tx.Bucket(r.bucketName)
	if bucket == nil {
		return ErrBucketNotFound
	}

	all := bucket.Cursor()
	for key, value := all.First(); key != nil; key, value = all.Next() {
		record := r.alloc()

		if err := msgpack.Codec.Unmarshal(value, record); err != nil {
			return err
		}

		if err := fn(record); err != nil {
			if errors.Is(err, ErrStopIteration) {
				return nil // not an error, so don't give one out
			}

			return err
		}
	}

	return nil
}

func (r *SimpleRepository) Count(tx *bbolt.Tx) (int, error) {
	bucket := tx.Bucket(r.bucketName)
	if bucket == nil {
		return 0, ErrBucketNotFound
	}

	return countKeys(bucket), nil
}

func (r *SimpleRepository) indexRefsForRecord(record any) []qualifiedIndexRef {
	refs := []qualifiedIndexRef{}

	for _, repoIndex := range r.indices {
		refs = append(refs, repoIndex.extractIndexRefs(record)...)
	}

	return refs
}

func updateIndices(oldIndices []qualifiedIndexRef, newIndices []qualifiedIndexRef, tx *bbolt.Tx) error {
	for _, old := range oldIndices {
		if !indexRefExistsIn(old, newIndices) {
			if err := old.Drop(tx); err != nil {
				return err
			}
		}
	}

	for _, nu := range newIndices {
		if !indexRefExistsIn(nu, oldIndices) {
			if err := nu.Write(tx); err != nil {
				return err
			}
		}
	}

	return nil
}
