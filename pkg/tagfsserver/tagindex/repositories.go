package tagindex

import (
	"github.com/function61/tagfs/pkg/blorm"
	"github.com/function61/tagfs/pkg/tagfstypes"
)

var fileRepository = blorm.NewSimpleRepo(
	"files",
	func() any { return &tagfstypes.FileRecord{} },
	func(record any) []byte { return []byte(record.(*tagfstypes.FileRecord).Hash) })

// exact tag membership. tags are already case-folded when they get here.
var filesByTagIndex = blorm.NewValueIndex("tag", fileRepository, func(record any, index func(val []byte)) {
	for _, tag := range record.(*tagfstypes.FileRecord).Tags {
		index([]byte(tag))
	}
})

// free-text postings for the text fields, partitioned by "<field>:<token>"
var filesByTermIndex = blorm.NewValueIndex("term", fileRepository, func(record any, index func(val []byte)) {
	file := record.(*tagfstypes.FileRecord)

	for _, token := range analyzeText(file.Name) {
		index(termPartition(fieldName, token))
	}

	for _, token := range analyzeText(file.Description) {
		index(termPartition(fieldDescription, token))
	}
})
