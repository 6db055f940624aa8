package blobstore

import (
	"testing"

	"github.com/function61/gokit/assert"
)

func TestShardedPath(t *testing.T) {
	sharded, err := ShardedPath("d7a8fbb307d7809469ca9abcb0082e4f8d5651e46d3cdb762d02d0bf37c9e592")
	assert.Ok(t, err)
	assert.EqualString(t, sharded, "d/7/a/8/fbb307d7809469ca9abcb0082e4f8d5651e46d3cdb762d02d0bf37c9e592")

	sharded, err = ShardedPath("abcde")
	assert.Ok(t, err)
	assert.EqualString(t, sharded, "a/b/c/d/e")

	_, err = ShardedPath("abcd")
	assert.Assert(t, err != nil)
}

func TestValidateRelativePath(t *testing.T) {
	assert.Assert(t, ValidateRelativePath("a/b/c/d/e") == nil)
	assert.Assert(t, ValidateRelativePath("") != nil)
	assert.Assert(t, ValidateRelativePath("../etc/passwd") != nil)
	assert.Assert(t, ValidateRelativePath("/etc/passwd") != nil)
	assert.Assert(t, ValidateRelativePath("a/../../b") != nil)
	assert.Assert(t, ValidateRelativePath("a//b") != nil)
}
