// TagFS storage node: blob store + metadata index + capacity accounting behind one facade
package tagfsserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/function61/gokit/logex"
	"github.com/function61/tagfs/pkg/blobstore"
	"github.com/function61/tagfs/pkg/byteshuman"
	"github.com/function61/tagfs/pkg/mutexmap"
	"github.com/function61/tagfs/pkg/tagfsserver/tagcapacity"
	"github.com/function61/tagfs/pkg/tagfsserver/tagindex"
	"github.com/function61/tagfs/pkg/tagfstypes"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

type nodeState int

const (
	nodeStateServing nodeState = iota
	nodeStateTerminating
)

// construction-time configuration. not reconfigurable while serving.
type Config struct {
	DataDir        string `validate:"required"`
	Capacity       int64  `validate:"gt=0"`
	BlobDriver     string `validate:"omitempty,oneof=localfs s3"` // "" = localfs
	BlobDriverOpts string
}

type Node struct {
	index     *tagindex.Index
	blobs     blobstore.Driver
	capacity  *tagcapacity.Tracker
	metrics   *metricsController
	hashLocks *mutexmap.M
	logl      *logex.Leveled

	// index replace/delete + capacity delta
	writerMu sync.Mutex

	// operations hold read side, Close() takes the write side
	lifecycleMu sync.RWMutex
	state       nodeState
}

var configValidator = validator.New()

// bootstraps data directory, blob store and index. the returned node is serving.
func Open(ctx context.Context, conf Config, logger *log.Logger) (*Node, error) {
	logger = logex.NonNil(logger)
	logl := logex.Levels(logger)

	if err := configValidator.Struct(&conf); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := os.MkdirAll(conf.DataDir, 0700); err != nil {
		return nil, err
	}

	blobs, err := newBlobDriver(conf, logger)
	if err != nil {
		return nil, err
	}

	if err := blobs.Mountable(ctx); err != nil {
		return nil, fmt.Errorf("blob store not mountable: %w", err)
	}

	index, err := tagindex.Open(filepath.Join(conf.DataDir, "index"), logex.Prefix("tagindex", logger))
	if err != nil {
		return nil, err
	}

	footprint, err := blobs.Footprint(ctx)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("footprint: %w", err)
	}

	n := &Node{
		index:     index,
		blobs:     blobs,
		capacity:  tagcapacity.New(conf.Capacity, footprint),
		hashLocks: mutexmap.New(),
		logl:      logl,
		state:     nodeStateServing,
	}

	n.metrics = newMetricsController(n)

	status := n.capacity.Status()

	logl.Info.Printf(
		"serving; capacity %s, free %s",
		byteshuman.HumanizeSigned(status.Capacity),
		byteshuman.HumanizeSigned(status.FreeSpace))

	return n, nil
}

// moves to terminating. all operations afterwards fail with ErrNodeTerminated
func (n *Node) Close() error {
	n.lifecycleMu.Lock()
	defer n.lifecycleMu.Unlock()

	if n.state == nodeStateTerminating {
		return nil
	}

	n.state = nodeStateTerminating

	return n.index.Close()
}

func (n *Node) Status() (tagfstypes.NodeStatus, error) {
	release, err := n.enter()
	if err != nil {
		return tagfstypes.NodeStatus{}, err
	}
	defer release()

	return n.capacity.Status(), nil
}

// ErrNotFound if not stored. ErrDataIntegrity if indexed but the blob is missing.
func (n *Node) Get(ctx context.Context, hash string) ([]byte, error) {
	release, err := n.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	content, err := n.get(ctx, hash)
	n.metrics.observe(opGet, err)
	if err == nil {
		n.metrics.readBytes.Add(float64(len(content)))
	}

	return content, err
}

func (n *Node) get(ctx context.Context, hash string) ([]byte, error) {
	if err := tagfstypes.ValidateHash(hash); err != nil {
		return nil, err
	}

	record, err := n.index.Get(hash)
	if err != nil {
		return nil, err
	}

	content, err := n.blobs.Fetch(ctx, record.RelativePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s at %s", tagfstypes.ErrDataIntegrity, hash, record.RelativePath)
		}

		return nil, err
	}

	return content, nil
}

// stores content and (re)indexes its record. re-putting a hash replaces the prior record.
func (n *Node) Put(ctx context.Context, content []byte, record tagfstypes.FileRecord) error {
	release, err := n.enter()
	if err != nil {
		return err
	}
	defer release()

	err = n.put(ctx, content, record)
	n.metrics.observe(opPut, err)
	if err == nil {
		n.metrics.writtenBytes.Add(float64(len(content)))
	}

	return err
}

func (n *Node) put(ctx context.Context, content []byte, input tagfstypes.FileRecord) error {
	record, err := tagfstypes.NormalizeRecord(input, int64(len(content)))
	if err != nil {
		return err
	}

	unlock := n.hashLocks.Lock(record.Hash)
	defer unlock()

	relativePath, err := n.blobs.Store(ctx, record.Hash, content)
	if err != nil {
		return fmt.Errorf("store blob: %w", err)
	}

	record.RelativePath = relativePath
	record.ContentType = mimetype.Detect(content).String()

	prior, freeSpace, err := n.commitReplace(*record)
	if err != nil {
		n.discardUncommittedBlob(ctx, record.Hash, relativePath)
		return err
	}

	if freeSpace < 0 {
		n.logl.Error.Printf(
			"capacity overcommitted by %s after storing %s",
			byteshuman.HumanizeSigned(-freeSpace),
			record.Hash)
	}

	// layout policy may have changed since the prior put
	if prior != nil && prior.RelativePath != relativePath {
		if err := n.blobs.Delete(ctx, prior.RelativePath); err != nil && !os.IsNotExist(err) {
			n.logl.Error.Printf("removing superseded blob %s: %v", prior.RelativePath, err)
		}
	}

	return nil
}

// removes a blob whose record didn't make it into the index, so it doesn't end up in the
// footprint at next startup. kept only when an existing record is confirmed to point to it.
func (n *Node) discardUncommittedBlob(ctx context.Context, hash string, relativePath string) {
	if existing, err := n.index.Get(hash); err == nil && existing.RelativePath == relativePath {
		return
	}

	if err := n.blobs.Delete(ctx, relativePath); err != nil && !os.IsNotExist(err) {
		n.logl.Error.Printf("removing uncommitted blob %s: %v", relativePath, err)
	}
}

func (n *Node) commitReplace(record tagfstypes.FileRecord) (*tagfstypes.FileRecord, int64, error) {
	n.writerMu.Lock()
	defer n.writerMu.Unlock()

	prior, err := n.index.Replace(record)
	if err != nil {
		return nil, 0, fmt.Errorf("index: %w", err)
	}

	delta := -record.Size
	if prior != nil {
		delta += prior.Size
	}

	return prior, n.capacity.Adjust(delta), nil
}

// no-op if hash is not stored
func (n *Node) Remove(ctx context.Context, hash string) error {
	release, err := n.enter()
	if err != nil {
		return err
	}
	defer release()

	err = n.remove(ctx, hash)
	n.metrics.observe(opRemove, err)

	return err
}

func (n *Node) remove(ctx context.Context, hash string) error {
	if err := tagfstypes.ValidateHash(hash); err != nil {
		return err
	}

	unlock := n.hashLocks.Lock(hash)
	defer unlock()

	record, err := n.index.Get(hash)
	if err != nil {
		if errors.Is(err, tagfstypes.ErrNotFound) {
			return nil
		}

		return err
	}

	// blob goes first. a crash after this leaves a dangling index entry that get reports
	if err := n.blobs.Delete(ctx, record.RelativePath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("delete blob: %w", err)
		}

		n.logl.Error.Printf("blob of %s was already missing; retracting dangling index entry", hash)
	}

	n.writerMu.Lock()
	defer n.writerMu.Unlock()

	removed, err := n.index.Delete(hash)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	n.capacity.Adjust(removed.Size)

	return nil
}

// hashes of files having all the tags (case-insensitive). empty set => ErrEmptyTagSet
func (n *Node) List(tags []string) ([]string, error) {
	release, err := n.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	hashes, err := n.index.ListByTags(tags)
	n.metrics.observe(opList, err)

	return hashes, err
}

// hashes matching a free-text query, most relevant first
func (n *Node) Search(text string) ([]string, error) {
	release, err := n.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	hits, err := n.index.Search(text)
	n.metrics.observe(opSearch, err)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(hits))
	for _, hit := range hits {
		hashes = append(hashes, hit.Hash)
	}

	return hashes, nil
}

// ErrNotFound if not stored
func (n *Node) Info(hash string) (*tagfstypes.FileRecord, error) {
	release, err := n.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := tagfstypes.ValidateHash(hash); err != nil {
		return nil, err
	}

	record, err := n.index.Get(hash)
	n.metrics.observe(opInfo, err)

	return record, err
}

// holds the node in serving state until release is called
func (n *Node) enter() (func(), error) {
	n.lifecycleMu.RLock()

	if n.state != nodeStateServing {
		n.lifecycleMu.RUnlock()
		return nil, tagfstypes.ErrNodeTerminated
	}

	return n.lifecycleMu.RUnlock, nil
}
