package recordstore

import (
	"context"
)

// RevisionSequence issues the strictly increasing revision numbers shared by
// every versioned or audited collection attached to one store. It is an
// explicit service object around a single shared counter record rather than
// a process-wide global, so its lifetime and connection scoping stay visible.
//
// Revisions are allocated exactly once per mutating logical call, never
// reused, and may have gaps: a failed call can consume a revision, and
// unrelated collections on the same store consume revisions too.
type RevisionSequence struct {
	be Backend
}

func newRevisionSequence(be Backend) *RevisionSequence {
	return &RevisionSequence{be: be}
}

// Next allocates the next revision inside the given transaction. No partial
// allocation is observable: if the counter storage is unreachable the call
// fails with ErrStorageUnavailable.
func (s *RevisionSequence) Next(ctx context.Context, tx Tx) (int64, error) {
	rev, err := s.be.NextRevision(ctx, tx)
	if err != nil {
		return 0, storageError("allocate revision", err)
	}
	if rev <= 0 {
		// The counter is seeded at zero and pre-incremented, so zero or the
		// RevisionOpen sentinel can only mean corrupted counter storage.
		return 0, invariantError(counterTable, "revision counter issued a non-positive revision")
	}
	return rev, nil
}

// Current returns the last issued revision, 0 when none has been issued yet.
func (s *RevisionSequence) Current(ctx context.Context) (int64, error) {
	rev, err := s.be.CurrentRevision(ctx)
	if err != nil {
		return 0, storageError("read revision counter", err)
	}
	return rev, nil
}
