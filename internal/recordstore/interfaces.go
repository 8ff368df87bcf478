// Package recordstore implements a record-storage layer with generic CRUD,
// optional audit trails and optional revision-scoped temporal versioning on
// top of a relational (SQLite, MySQL) or document-oriented (Badger) backing
// store.
//
// Collections opted into history tracking keep an append-only sequence of
// time-bounded versions instead of mutating rows in place. Every mutating
// call on a versioned or audited collection consumes one revision from a
// counter shared across all collections of the store, so the revision order
// is a global order of mutations.
package recordstore

import (
	"context"
)

// Reserved field names added by the versioning and audit machinery.
const (
	FieldValidSince  = "valid_since_revision"
	FieldValidUntil  = "valid_until_revision"
	FieldRevision    = "revision"
	FieldAuditUser   = "audit_user"
	FieldAuditDate   = "audit_date_utc"
	FieldAuditAction = "audit_action"
	FieldTableName   = "table_name"
)

// RevisionOpen is the sentinel marking a version as still live. It is never
// issued by the revision sequence. Interval containment treats it as "open",
// not as a number; only the history sort relies on it being numerically
// smallest.
const RevisionOpen int64 = -1

const (
	// sharedAuditTable holds the metadata-only audit entries of every
	// versioned collection.
	sharedAuditTable = "audit"
	// auditTablePrefix prefixes the per-collection snapshot audit tables.
	auditTablePrefix = "audit_"
	// counterTable holds the shared revision counter of a relational store.
	counterTable = "revision_counters"
	// revisionCounterName is the name of the shared revision counter.
	revisionCounterName = "revision"
)

// Tx is an opaque handle to a backend transaction: *gorm.DB for relational
// backends, *badger.Txn for the document backend. A nil Tx means the call
// runs outside any transaction.
type Tx any

// FindOptions controls ordering and pagination of a Find call.
type FindOptions struct {
	OrderBy string // field to order by, empty for backend order
	Desc    bool   // descending order
	Limit   int    // maximum rows to return, 0 for no limit
	Offset  int    // rows to skip
}

// Backend abstracts the backing store. The versioning, audit and uniqueness
// logic is written against this interface only, so it stays agnostic of the
// store family; each family implements the predicate translation once.
type Backend interface {
	// Dialect names the backend family ("sqlite", "mysql", "badger").
	Dialect() string

	// Migrate prepares physical storage for the given storage definitions
	// and seeds the shared revision counter.
	Migrate(ctx context.Context, defs []*CollectionDef) error

	// RunInTx runs fn inside one backend transaction. The relational
	// backends map this to a database transaction; the document backend
	// maps it to a serializable Badger transaction with conflict retry.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// NextRevision atomically increments and returns the shared revision
	// counter. Must be called inside a transaction.
	NextRevision(ctx context.Context, tx Tx) (int64, error)

	// CurrentRevision returns the last issued revision, 0 if none.
	CurrentRevision(ctx context.Context) (int64, error)

	// Insert appends rows to the collection's physical storage.
	Insert(ctx context.Context, tx Tx, def *CollectionDef, rows []Record) error

	// Find returns rows matching the predicate, coerced to the declared
	// field types.
	Find(ctx context.Context, tx Tx, def *CollectionDef, pred Predicate, opts FindOptions) ([]Record, error)

	// UpdateFields sets the given fields on every row matching the
	// predicate and returns the number of rows changed.
	UpdateFields(ctx context.Context, tx Tx, def *CollectionDef, pred Predicate, set Record) (int64, error)

	// DeleteRows physically removes rows matching the predicate and
	// returns the number removed. Only non-versioned collections and the
	// test-support reset delete rows; versioned rows are closed, never
	// removed.
	DeleteRows(ctx context.Context, tx Tx, def *CollectionDef, pred Predicate) (int64, error)

	// ResetCounters resets the shared revision counter to zero. Test support.
	ResetCounters(ctx context.Context) error

	// Check verifies the backing store is reachable.
	Check(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// actorContextKey carries the acting user through a context.
type actorContextKey struct{}

// WithActor returns a context carrying the acting user recorded in audit
// entries. Actor resolution happens outside this package, typically from
// request context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the acting user carried by ctx, or the empty
// string when unresolved.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok {
		return actor
	}
	return ""
}
