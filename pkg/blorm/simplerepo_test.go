package blorm

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/function61/gokit/assert"
	"go.etcd.io/bbolt"
)

type testRecord struct {
	ID     string
	Colors []string
}

var testRepo = NewSimpleRepo(
	"records",
	func() any { return &testRecord{} },
	func(record any) []byte { return []byte(record.(*testRecord).ID) })

var testByColorIndex = NewValueIndex("color", testRepo, func(record any, index func(val []byte)) {
	for _, color := range record.(*testRecord).Colors {
		index([]byte(color))
	}
})

func TestUpdateSyncsIndices(t *testing.T) {
	db := openTestDb(t)

	update := func(rec *testRecord) {
		assert.Ok(t, db.Update(func(tx *bbolt.Tx) error {
			return testRepo.Update(rec, tx)
		}))
	}

	update(&testRecord{ID: "a", Colors: []string{"red", "blue"}})
	update(&testRecord{ID: "b", Colors: []string{"red"}})

	assert.EqualString(t, queryColor(t, db, "red"), "[a b]")
	assert.EqualString(t, queryColor(t, db, "blue"), "[a]")

	// replace drops stale index entries
	update(&testRecord{ID: "a", Colors: []string{"green"}})

	assert.EqualString(t, queryColor(t, db, "red"), "[b]")
	assert.EqualString(t, queryColor(t, db, "blue"), "[]")
	assert.EqualString(t, queryColor(t, db, "green"), "[a]")

	assert.Ok(t, db.View(func(tx *bbolt.Tx) error {
		count, err := testRepo.Count(tx)
		assert.Ok(t, err)
		assert.Assert(t, count == 2)

		redCount, err := testByColorIndex.Count([]byte("red"), tx)
		assert.Ok(t, err)
		assert.Assert(t, redCount == 1)

		return nil
	}))
}

func TestDelete(t *testing.T) {
	db := openTestDb(t)

	assert.Ok(t, db.Update(func(tx *bbolt.Tx) error {
		return testRepo.Update(&testRecord{ID: "a", Colors: []string{"red"}}, tx)
	}))

	assert.Ok(t, db.Update(func(tx *bbolt.Tx) error {
		// stale image, index entries are looked up from the stored one
		return testRepo.Delete(&testRecord{ID: "a"}, tx)
	}))

	assert.EqualString(t, queryColor(t, db, "red"), "[]")

	err := db.Update(func(tx *bbolt.Tx) error {
		return testRepo.Delete(&testRecord{ID: "a"}, tx)
	})
	assert.Assert(t, err == ErrNotFound)

	errOpen := db.View(func(tx *bbolt.Tx) error {
		return testRepo.OpenByPrimaryKey([]byte("a"), &testRecord{}, tx)
	})
	assert.Assert(t, errOpen == ErrNotFound)
}

func TestEachStops(t *testing.T) {
	db := openTestDb(t)

	assert.Ok(t, db.Update(func(tx *bbolt.Tx) error {
		for _, id := range []string{"a", "b", "c"} {
			if err := testRepo.Update(&testRecord{ID: id}, tx); err != nil {
				return err
			}
		}
		return nil
	}))

	seen := []string{}
	assert.Ok(t, db.View(func(tx *bbolt.Tx) error {
		return testRepo.Each(func(record any) error {
			seen = append(seen, record.(*testRecord).ID)
			if len(seen) == 2 {
				return ErrStopIteration
			}
			return nil
		}, tx)
	}))

	assert.EqualString(t, fmt.Sprintf("%v", seen), "[a b]")
}

func openTestDb(t *testing.T) *bbolt.DB {
	t.Helper()

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "test.db"), 0700, nil)
	assert.Ok(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Ok(t, db.Update(func(tx *bbolt.Tx) error {
		return testRepo.Bootstrap(tx)
	}))

	return db
}

func queryColor(t *testing.T, db *bbolt.DB, color string) string {
	t.Helper()

	ids := []string{}
	assert.Ok(t, db.View(func(tx *bbolt.Tx) error {
		return testByColorIndex.Query([]byte(color), func(id []byte) error {
			ids = append(ids, string(id))
			return nil
		}, tx)
	}))
	sort.Strings(ids)

	return fmt.Sprintf("%v", ids)
}
