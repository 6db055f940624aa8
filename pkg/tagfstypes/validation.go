package tagfstypes

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var (
	hashRe = regexp.MustCompile("^[0-9A-Za-z_-]+$")

	recordValidator = validator.New()
)

func ValidateHash(hash string) error {
	if len(hash) <= ShardDepth || len(hash) > maxHashLen || !hashRe.MatchString(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	return nil
}

// case-folds, de-duplicates and sorts. tags must be non-empty, not overlong and not
// contain whitespace.
func NormalizeTags(tags []string) ([]string, error) {
	normalized := make([]string, 0, len(tags))

	for _, tag := range tags {
		folded := strings.ToLower(strings.TrimSpace(tag))

		if folded == "" || len(folded) > maxTagLen || strings.IndexFunc(folded, unicode.IsSpace) != -1 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTag, tag)
		}

		normalized = append(normalized, folded)
	}

	normalized = lo.Uniq(normalized)
	sort.Strings(normalized)

	return normalized, nil
}

// validates the caller-supplied parts of a record and returns a normalized copy with
// node-assigned fields cleared. contentLength fills in a missing size.
func NormalizeRecord(record FileRecord, contentLength int64) (*FileRecord, error) {
	if err := ValidateHash(record.Hash); err != nil {
		return nil, err
	}

	if err := recordValidator.Struct(&record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	tags, err := NormalizeTags(record.Tags)
	if err != nil {
		return nil, err
	}

	size := record.Size
	switch {
	case size == 0:
		size = contentLength
	case size != contentLength:
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrSizeMismatch, size, contentLength)
	}

	return &FileRecord{
		Hash:        record.Hash,
		Name:        record.Name,
		Description: record.Description,
		Tags:        tags,
		Size:        size,
	}, nil
}
