package tagfstypes

const (
	// set on error responses whose cause the client should be able to tell apart
	ErrorKindHeader = "X-Tagfs-Error"

	ErrorKindDataIntegrity = "data-integrity"
	ErrorKindTerminated    = "terminated"
)
