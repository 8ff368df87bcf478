package recordstore

import (
	"fmt"

	"github.com/chronostore/chronostore/internal/errors"
)

// Sentinel errors for store operations.
// These typed errors enable callers to distinguish between different
// failure modes without relying on string matching or driver errors.
var (
	// ErrDuplicateKey indicates a live record already holds the colliding
	// primary key or unique value.
	ErrDuplicateKey = errors.NewStd("duplicate key")

	// ErrNotFound indicates the target of an update has no live record.
	ErrNotFound = errors.NewStd("record not found")

	// ErrStorageUnavailable indicates the backing store cannot be reached.
	ErrStorageUnavailable = errors.NewStd("storage unavailable")

	// ErrInvariantViolation indicates the version interval bookkeeping was
	// about to be corrupted. This is a programming error, not user input.
	ErrInvariantViolation = errors.NewStd("version invariant violated")

	// ErrMultipleResults indicates a single-record query matched more than one record.
	ErrMultipleResults = errors.NewStd("more than one result")

	// ErrUnknownCollection indicates the named collection was not registered with the store.
	ErrUnknownCollection = errors.NewStd("unknown collection")
)

// duplicateKeyError builds an ErrDuplicateKey carrying the offending values.
func duplicateKeyError(collection string, values Record) error {
	return errors.New(fmt.Errorf("%w in collection %s: %v", ErrDuplicateKey, collection, values)).
		Component("recordstore").
		Category(errors.CategoryConflict).
		Context("collection", collection).
		Build()
}

// notFoundError builds an ErrNotFound carrying the requested key values.
func notFoundError(collection string, keys Record) error {
	return errors.New(fmt.Errorf("%w in collection %s: %v", ErrNotFound, collection, keys)).
		Component("recordstore").
		Category(errors.CategoryNotFound).
		Context("collection", collection).
		Build()
}

// storageError wraps a backend failure as ErrStorageUnavailable, preserving
// the driver error in the chain.
func storageError(op string, err error) error {
	return errors.New(fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)).
		Component("recordstore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

// invariantError builds an ErrInvariantViolation. Operations hitting this
// must abort loudly rather than repair state.
func invariantError(collection, detail string) error {
	return errors.New(fmt.Errorf("%w: %s: %s", ErrInvariantViolation, collection, detail)).
		Component("recordstore").
		Category(errors.CategoryState).
		Priority(errors.PriorityCritical).
		Context("collection", collection).
		Build()
}
