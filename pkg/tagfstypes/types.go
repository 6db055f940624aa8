// Types shared by TagFS server and clients
package tagfstypes

const (
	// hash prefix characters used as nested single-character directories
	ShardDepth = 4

	maxHashLen = 128
	maxTagLen  = 255 // bytes
)

// Metadata of a stored file. Hash is the unique key.
type FileRecord struct {
	Hash        string   `json:"hash" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"` // set semantics: case-folded, sorted, no duplicates
	Size        int64    `json:"size" validate:"gte=0"`

	// assigned by the node, ignored on input
	ContentType  string `json:"content_type"`
	RelativePath string `json:"relative_path"` // blob location within the blob store
}

type NodeStatus struct {
	Capacity  int64 `json:"capacity"`
	FreeSpace int64 `json:"free_space"` // can go negative, capacity is not enforced
}

type IntegrityReport struct {
	Checked  int      `json:"checked"`
	Dangling []string `json:"dangling"` // hashes whose blob is missing
}
