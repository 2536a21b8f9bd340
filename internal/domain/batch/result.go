// Package batch holds per-item outcomes of bulk re-embedding.
package batch

// ItemStatus is the processing outcome of a single document in a bulk run.
type ItemStatus string

// Item status values.
const (
	StatusEmbedded ItemStatus = "embedded"
	StatusFailed   ItemStatus = "failed"
)

// Result is the outcome of re-embedding one document.
type Result struct {
	documentID int64
	status     ItemStatus
	err        error
}

// NewEmbedded creates a successful result.
func NewEmbedded(documentID int64) Result {
	return Result{documentID: documentID, status: StatusEmbedded}
}

// NewFailed creates a failed result; the document stays degraded.
func NewFailed(documentID int64, err error) Result {
	return Result{documentID: documentID, status: StatusFailed, err: err}
}

// DocumentID returns the document identifier.
func (r Result) DocumentID() int64 { return r.documentID }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Count tallies results by status.
func Count(results []Result) (embedded, failed int) {
	for _, r := range results {
		if r.status == StatusEmbedded {
			embedded++
		} else {
			failed++
		}
	}
	return embedded, failed
}
