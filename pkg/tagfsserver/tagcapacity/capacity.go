// Capacity accounting for a node: free space = capacity - bytes stored
package tagcapacity

import (
	"sync/atomic"

	"github.com/function61/tagfs/pkg/tagfstypes"
)

// Capacity is not enforced. free space can go negative, which callers can observe via
// Overcommitted().
type Tracker struct {
	capacity  int64
	freeSpace atomic.Int64
}

// footprint is the amount of bytes already stored at startup
func New(capacity int64, footprint int64) *Tracker {
	t := &Tracker{capacity: capacity}
	t.freeSpace.Store(capacity - footprint)
	return t
}

// positive delta frees space, negative consumes. returns the resulting free space.
// the caller serializes Adjust() calls together with the index change they account for.
func (t *Tracker) Adjust(delta int64) int64 {
	return t.freeSpace.Add(delta)
}

func (t *Tracker) Status() tagfstypes.NodeStatus {
	return tagfstypes.NodeStatus{
		Capacity:  t.capacity,
		FreeSpace: t.freeSpace.Load(),
	}
}

func (t *Tracker) Overcommitted() bool {
	return t.freeSpace.Load() < 0
}
