package recordstore

import (
	"context"
	"fmt"

	"github.com/chronostore/chronostore/internal/errors"
)

// Collection is the CRUD facade over one declared collection. All reads
// return the current state view; versioned collections additionally expose
// their history, their audit trail and revision rollback.
//
// Every mutating call on a versioned or audited collection allocates exactly
// one revision, shared by all records the call affects, inside the same
// transaction as the data change. Plain collections mutate without touching
// the revision sequence.
type Collection struct {
	be       Backend
	seq      *RevisionSequence
	def      *CollectionDef
	sdef     *CollectionDef
	versions *versioner          // nil unless History
	audit    *auditLog           // nil unless Audit
	unique   *uniquenessEnforcer
}

func newCollection(be Backend, seq *RevisionSequence, def *CollectionDef) *Collection {
	sdef := storageDef(def)
	c := &Collection{
		be:     be,
		seq:    seq,
		def:    def,
		sdef:   sdef,
		unique: newUniquenessEnforcer(be, def, sdef),
	}
	if def.History {
		c.versions = newVersioner(be, def, sdef)
	}
	if def.Audit {
		c.audit = newAuditLog(be, def)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.def.Name
}

// Describe returns the public summary of the collection definition.
func (c *Collection) Describe() Description {
	return c.def.Describe()
}

// ParseFilter converts a "field=value" expression into a condition scoped to
// this collection. See ParseFilter.
func (c *Collection) ParseFilter(expr string) (Cond, error) {
	return ParseFilter(c.def, expr)
}

// tracked reports whether mutations on this collection consume revisions.
func (c *Collection) tracked() bool {
	return c.def.History || c.def.Audit
}

// mutate runs fn inside one backend transaction, allocating a revision first
// when the collection is versioned or audited. Returning an error rolls the
// whole call back; the revision stays consumed either way.
func (c *Collection) mutate(ctx context.Context, fn func(tx Tx, revision int64) error) error {
	return c.be.RunInTx(ctx, func(tx Tx) error {
		var revision int64
		if c.tracked() {
			var err error
			revision, err = c.seq.Next(ctx, tx)
			if err != nil {
				return err
			}
		}
		return fn(tx, revision)
	})
}

// validateKeys checks that every primary key field carries a value.
func (c *Collection) validateKeys(rec Record) error {
	for _, f := range c.def.PrimaryKeys() {
		if v, ok := rec[f.Name]; !ok || v == nil {
			return errors.ValidationError(
				fmt.Sprintf("collection %s: missing primary key field %s", c.def.Name, f.Name))
		}
	}
	return nil
}

// Post inserts one record and returns it as stored. Versioned collections
// return the new live version including its interval bounds.
func (c *Collection) Post(ctx context.Context, rec Record) (Record, error) {
	stored, err := c.PostMany(ctx, []Record{rec})
	if err != nil {
		return nil, err
	}
	return stored[0], nil
}

// PostMany inserts a batch of records atomically under one revision. Any
// failure, including a duplicate key anywhere in the batch, rolls back the
// entire batch.
func (c *Collection) PostMany(ctx context.Context, recs []Record) ([]Record, error) {
	if len(recs) == 0 {
		return nil, errors.ValidationError(
			fmt.Sprintf("collection %s: nothing to insert", c.def.Name))
	}

	prepared := make([]Record, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		p := prepareRecord(c.def, rec)
		if err := c.validateKeys(p); err != nil {
			return nil, err
		}
		fp := keyFingerprint(c.def, p)
		if seen[fp] {
			return nil, duplicateKeyError(c.def.Name, c.keyValues(p))
		}
		seen[fp] = true
		prepared = append(prepared, p)
	}

	var stored []Record
	err := c.mutate(ctx, func(tx Tx, revision int64) error {
		for _, p := range prepared {
			if err := c.unique.check(ctx, tx, p, false); err != nil {
				return err
			}
		}
		var err error
		if c.versions != nil {
			stored, err = c.versions.insert(ctx, tx, revision, prepared)
		} else {
			err = c.be.Insert(ctx, tx, c.sdef, prepared)
			stored = prepared
		}
		if err != nil {
			return err
		}
		return c.logAudit(ctx, tx, ActionInsert, revision, stored)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Put updates one record identified by the primary key fields of patch. The
// remaining fields of patch overlay the record's current values; fields
// absent from patch keep theirs. Returns the record before and after the
// update.
func (c *Collection) Put(ctx context.Context, patch Record) (Record, Record, error) {
	before, after, err := c.PutMany(ctx, []Record{patch})
	if err != nil {
		return nil, nil, err
	}
	return before[0], after[0], nil
}

// PutMany updates a batch of records atomically under one revision.
func (c *Collection) PutMany(ctx context.Context, patches []Record) ([]Record, []Record, error) {
	if len(patches) == 0 {
		return nil, nil, errors.ValidationError(
			fmt.Sprintf("collection %s: nothing to update", c.def.Name))
	}

	prepared := make([]Record, 0, len(patches))
	for _, patch := range patches {
		p := prepareRecord(c.def, patch)
		if err := c.validateKeys(p); err != nil {
			return nil, nil, err
		}
		prepared = append(prepared, p)
	}

	before := make([]Record, 0, len(prepared))
	after := make([]Record, 0, len(prepared))
	err := c.mutate(ctx, func(tx Tx, revision int64) error {
		before = before[:0]
		after = after[:0]
		for _, p := range prepared {
			var prev, next Record
			var err error
			if c.versions != nil {
				prev, err = c.versions.liveRow(ctx, tx, p)
			} else {
				prev, err = c.rowByKey(ctx, tx, p)
			}
			if err != nil {
				return err
			}
			merged := mergePatch(c.def, prev, p)
			if err := c.unique.check(ctx, tx, merged, true); err != nil {
				return err
			}
			if c.versions != nil {
				prev, next, err = c.versions.update(ctx, tx, revision, merged)
				if err != nil {
					return err
				}
			} else {
				if err := c.updateRow(ctx, tx, p, merged); err != nil {
					return err
				}
				next = merged
			}
			before = append(before, prev)
			after = append(after, next)
		}
		return c.logAudit(ctx, tx, ActionUpdate, revision, after)
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// rowByKey fetches the single row of a non-versioned collection matching the
// record's primary key.
func (c *Collection) rowByKey(ctx context.Context, tx Tx, rec Record) (Record, error) {
	pred := Predicate{}
	for _, f := range c.def.PrimaryKeys() {
		pred = pred.And(f.Name, coerceValue(f.Type, rec[f.Name]))
	}
	rows, err := c.be.Find(ctx, tx, c.sdef, pred, FindOptions{Limit: 2})
	if err != nil {
		return nil, storageError("find record", err)
	}
	switch len(rows) {
	case 0:
		return nil, notFoundError(c.def.Name, c.keyValues(rec))
	case 1:
		return rows[0], nil
	default:
		return nil, invariantError(c.def.Name, "multiple rows for one primary key")
	}
}

func (c *Collection) updateRow(ctx context.Context, tx Tx, keySource, merged Record) error {
	pred := Predicate{}
	set := make(Record, len(merged))
	keys := make(map[string]bool)
	for _, f := range c.def.PrimaryKeys() {
		pred = pred.And(f.Name, coerceValue(f.Type, keySource[f.Name]))
		keys[f.Name] = true
	}
	for name, value := range merged {
		if !keys[name] {
			set[name] = value
		}
	}
	if len(set) == 0 {
		return nil
	}
	if _, err := c.be.UpdateFields(ctx, tx, c.sdef, pred, set); err != nil {
		return storageError("update record", err)
	}
	return nil
}

func (c *Collection) keyValues(rec Record) Record {
	keys := make(Record)
	for _, f := range c.def.PrimaryKeys() {
		keys[f.Name] = rec[f.Name]
	}
	return keys
}

// Delete removes the records matching the predicate and returns how many
// were affected. On a versioned collection the matching live versions are
// closed, not removed; their history stays queryable and rollback can
// revive them.
func (c *Collection) Delete(ctx context.Context, pred Predicate) (int64, error) {
	var affected int64
	err := c.mutate(ctx, func(tx Tx, revision int64) error {
		var snapshots []Record
		var err error
		if c.audit != nil && c.versions == nil {
			// Snapshot the rows before they are gone.
			snapshots, err = c.be.Find(ctx, tx, c.sdef, pred, FindOptions{})
			if err != nil {
				return storageError("find records for delete", err)
			}
		}
		if c.versions != nil {
			affected, err = c.versions.closeMatching(ctx, tx, revision, pred)
		} else {
			affected, err = c.be.DeleteRows(ctx, tx, c.sdef, pred)
			if err != nil {
				err = storageError("delete records", err)
			}
		}
		if err != nil {
			return err
		}
		return c.logAudit(ctx, tx, ActionDelete, revision, snapshots)
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// Get returns the records matching the predicate: live versions for a
// versioned collection, all rows otherwise.
func (c *Collection) Get(ctx context.Context, pred Predicate, opts FindOptions) ([]Record, error) {
	if c.versions != nil {
		return c.versions.read(ctx, pred, opts)
	}
	rows, err := c.be.Find(ctx, nil, c.sdef, pred, opts)
	if err != nil {
		return nil, storageError("find records", err)
	}
	return rows, nil
}

// GetOne returns the single record matching the predicate, nil when nothing
// matches, and ErrMultipleResults when more than one record does.
func (c *Collection) GetOne(ctx context.Context, pred Predicate) (Record, error) {
	rows, err := c.Get(ctx, pred, FindOptions{Limit: 2})
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		return nil, errors.New(fmt.Errorf("%w in collection %s for %s", ErrMultipleResults, c.def.Name, pred)).
			Component("recordstore").
			Category(errors.CategoryValidation).
			Context("collection", c.def.Name).
			Build()
	}
}

// GetLast returns the most recently created version matching the predicate,
// live or closed - the version with the greatest valid_since_revision. A key
// whose live version was deleted still has a last version. Returns nil when
// nothing matches. On a non-versioned collection this is GetOne.
func (c *Collection) GetLast(ctx context.Context, pred Predicate) (Record, error) {
	if c.versions == nil {
		return c.GetOne(ctx, pred)
	}
	return c.versions.last(ctx, pred)
}

// GetHistory returns every version matching the predicate, closed versions
// first ordered by most recently closed, live versions last. On a
// non-versioned collection history and current state coincide, so this is
// Get.
func (c *Collection) GetHistory(ctx context.Context, pred Predicate) ([]Record, error) {
	if c.versions == nil {
		return c.Get(ctx, pred, FindOptions{})
	}
	return c.versions.history(ctx, pred)
}

// RollbackTo restores the records matching the predicate to the state they
// had at the target revision, expressed as new versions at a fresh revision.
// Nothing is unwritten: a later rollback can restore any state, including
// states between the target and now. Returns the number of records changed.
//
// Rolling back a collection already in the target state changes nothing but
// still consumes a revision and still leaves an audit entry when auditing is
// enabled. On a non-versioned collection rollback has nothing to restore
// and returns 0.
func (c *Collection) RollbackTo(ctx context.Context, target int64, pred Predicate) (int64, error) {
	if c.versions == nil {
		return 0, nil
	}
	if target < 0 {
		return 0, errors.ValidationError(
			fmt.Sprintf("collection %s: rollback target must not be negative, got %d", c.def.Name, target))
	}
	var changed int64
	err := c.mutate(ctx, func(tx Tx, revision int64) error {
		var err error
		changed, err = c.versions.rollback(ctx, tx, target, revision, pred)
		if err != nil {
			return err
		}
		return c.logAudit(ctx, tx, ActionRollback, revision, nil)
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// GetAudit returns the collection's audit entries matching the predicate,
// ordered by revision ascending.
func (c *Collection) GetAudit(ctx context.Context, pred Predicate) ([]AuditEntry, error) {
	if c.audit == nil {
		return nil, errors.ValidationError(
			fmt.Sprintf("collection %s: auditing is not enabled", c.def.Name))
	}
	return c.audit.query(ctx, pred)
}

func (c *Collection) logAudit(ctx context.Context, tx Tx, action Action, revision int64, snapshots []Record) error {
	if c.audit == nil {
		return nil
	}
	return c.audit.append(ctx, tx, action, revision, ActorFromContext(ctx), snapshots)
}
