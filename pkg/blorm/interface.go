// "Bolt Light ORM", doesn't do much else than persist structs into Bolt and keep
// secondary indices in sync with them
package blorm

import (
	"errors"

	"go.etcd.io/bbolt"
)

var (
	ErrNotFound       = errors.New("database: record not found")
	ErrBucketNotFound = errors.New("database: bucket not found (bootstrap needed?)")
	ErrStopIteration  = errors.New("blorm: stop iteration")
)

type Repository interface {
	Bootstrap(tx *bbolt.Tx) error
	OpenByPrimaryKey(id []byte, record any, tx *bbolt.Tx) error
	// replaces the record with same primary key (if any) and syncs indices
	Update(record any, tx *bbolt.Tx) error
	Delete(record any, tx *bbolt.Tx) error
	// return blorm.ErrStopIteration from "fn" to stop iteration. that error is not returned
	// to the API caller
	Each(fn func(record any) error, tx *bbolt.Tx) error
	Count(tx *bbolt.Tx) (int, error)
	Alloc() any
}
