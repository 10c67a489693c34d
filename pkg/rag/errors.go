package rag

import (
	"errors"
	"fmt"
)

// ErrNoActiveIndex is returned by queries made before any document has been
// indexed. Uploading a document resolves it.
var ErrNoActiveIndex = errors.New("no document is currently indexed, please upload a document first")

// ExtractionError reports a document that could not be read.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IndexingError reports a failure while embedding or storing chunks. The
// active index is left untouched when it is returned.
type IndexingError struct {
	Collection string
	Err        error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("failed to index collection %s: %v", e.Collection, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }
