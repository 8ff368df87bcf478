package recordstore

import (
	"context"
)

// versioner owns the interval bookkeeping of one versioned collection.
//
// Each logical key moves through an explicit lifecycle: no row, then a live
// row `[revision, -1)`, closed by update or delete, re-entered as live by a
// later insert or rollback. Per key the stored intervals never overlap and
// at most one row is live; closed rows are never reopened or removed.
type versioner struct {
	be   Backend
	def  *CollectionDef
	sdef *CollectionDef
}

func newVersioner(be Backend, def, sdef *CollectionDef) *versioner {
	return &versioner{be: be, def: def, sdef: sdef}
}

// livePred scopes a predicate to live rows.
func livePred(pred Predicate) Predicate {
	return pred.without(FieldValidSince, FieldValidUntil).And(FieldValidUntil, RevisionOpen)
}

// keyPred builds the predicate identifying one logical key.
func (v *versioner) keyPred(rec Record) Predicate {
	var pred Predicate
	for _, f := range v.def.PrimaryKeys() {
		pred = pred.And(f.Name, coerceValue(f.Type, rec[f.Name]))
	}
	return pred
}

// insert creates one live version per record at the given revision.
// Uniqueness against other live rows is the enforcer's concern and has been
// checked by the caller.
func (v *versioner) insert(ctx context.Context, tx Tx, revision int64, records []Record) ([]Record, error) {
	rows := make([]Record, 0, len(records))
	for _, rec := range records {
		row := make(Record, len(rec)+2)
		for name, value := range rec {
			row[name] = value
		}
		row[FieldValidSince] = revision
		row[FieldValidUntil] = RevisionOpen
		rows = append(rows, row)
	}
	if err := v.be.Insert(ctx, tx, v.sdef, rows); err != nil {
		return nil, storageError("insert version rows", err)
	}
	return rows, nil
}

// liveRow returns the live version of the record's logical key.
func (v *versioner) liveRow(ctx context.Context, tx Tx, rec Record) (Record, error) {
	rows, err := v.be.Find(ctx, tx, v.sdef, livePred(v.keyPred(rec)), FindOptions{Limit: 2})
	if err != nil {
		return nil, storageError("find live version", err)
	}
	switch len(rows) {
	case 0:
		return nil, notFoundError(v.def.Name, v.keyRecord(rec))
	case 1:
		return rows[0], nil
	default:
		return nil, invariantError(v.def.Name, "multiple live versions for one logical key")
	}
}

func (v *versioner) keyRecord(rec Record) Record {
	keys := make(Record)
	for _, f := range v.def.PrimaryKeys() {
		keys[f.Name] = rec[f.Name]
	}
	return keys
}

// closeRow closes the live version of one logical key at the given revision.
func (v *versioner) closeRow(ctx context.Context, tx Tx, revision int64, key Predicate) error {
	n, err := v.be.UpdateFields(ctx, tx, v.sdef, livePred(key), Record{FieldValidUntil: revision})
	if err != nil {
		return storageError("close version row", err)
	}
	switch {
	case n == 0:
		// The row was live moments ago; losing it mid-transition means the
		// interval invariant is already broken.
		return invariantError(v.def.Name, "live version vanished during close")
	case n > 1:
		return invariantError(v.def.Name, "closed multiple live versions for one logical key")
	}
	return nil
}

// update closes the live version of the record's key and inserts a new live
// version with the patch merged over the previous fields. Returns the
// pre-image and post-image, each carrying its own interval bounds.
func (v *versioner) update(ctx context.Context, tx Tx, revision int64, patch Record) (Record, Record, error) {
	previous, err := v.liveRow(ctx, tx, patch)
	if err != nil {
		return nil, nil, err
	}

	merged := mergePatch(v.def, previous, patch)
	if err := v.closeRow(ctx, tx, revision, v.keyPred(patch)); err != nil {
		return nil, nil, err
	}
	inserted, err := v.insert(ctx, tx, revision, []Record{merged})
	if err != nil {
		return nil, nil, err
	}

	return previous, inserted[0], nil
}

// closeMatching closes every live version matching the predicate. This is
// the versioned delete: no new row is created, the key simply has no live
// version until a later insert or rollback.
func (v *versioner) closeMatching(ctx context.Context, tx Tx, revision int64, pred Predicate) (int64, error) {
	n, err := v.be.UpdateFields(ctx, tx, v.sdef, livePred(pred), Record{FieldValidUntil: revision})
	if err != nil {
		return 0, storageError("close version rows", err)
	}
	return n, nil
}

// read returns the live versions matching the predicate - the current state
// view. Conditions on the interval fields are stripped from the caller's
// predicate first.
func (v *versioner) read(ctx context.Context, pred Predicate, opts FindOptions) ([]Record, error) {
	rows, err := v.be.Find(ctx, nil, v.sdef, livePred(pred), opts)
	if err != nil {
		return nil, storageError("read live versions", err)
	}
	return rows, nil
}

// history returns every version matching the predicate, live and closed,
// ordered by valid_until_revision descending. The live sentinel is
// numerically smallest, so most-recently-closed versions surface first and
// live versions last. Callers rely on this exact ordering.
func (v *versioner) history(ctx context.Context, pred Predicate) ([]Record, error) {
	rows, err := v.be.Find(ctx, nil, v.sdef, pred, FindOptions{OrderBy: FieldValidUntil, Desc: true})
	if err != nil {
		return nil, storageError("read version history", err)
	}
	return rows, nil
}

// last returns the version with the greatest valid_since_revision among all
// versions matching the predicate, live or closed - the most recently
// created version. Returns nil when nothing matches.
func (v *versioner) last(ctx context.Context, pred Predicate) (Record, error) {
	rows, err := v.be.Find(ctx, nil, v.sdef, pred.without(FieldValidSince, FieldValidUntil),
		FindOptions{OrderBy: FieldValidSince, Desc: true, Limit: 1})
	if err != nil {
		return nil, storageError("read last version", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// rollback reconstructs, as new live versions dated at revision, the state
// each matching logical key had at the target revision. History after the
// target is closed, never removed: rollback moves forward.
//
// Keys whose live version already equals the target state are untouched.
// Keys with no version at the target are untouched too (missing-at-target
// is a no-op, not an error). Returns the number of keys changed.
func (v *versioner) rollback(ctx context.Context, tx Tx, target, revision int64, pred Predicate) (int64, error) {
	pred = pred.without(FieldValidSince, FieldValidUntil)

	// Versions that were live at the target but have been closed since.
	atTarget := append(append(Predicate{}, pred...),
		Cond{Field: FieldValidSince, Op: OpLte, Value: target},
		Cond{Field: FieldValidUntil, Op: OpNe, Value: RevisionOpen},
		Cond{Field: FieldValidUntil, Op: OpGt, Value: target},
	)
	expired, err := v.be.Find(ctx, tx, v.sdef, atTarget, FindOptions{})
	if err != nil {
		return 0, storageError("find versions at rollback target", err)
	}

	var changed int64
	handled := make(map[string]bool, len(expired))
	var revive []Record

	for _, old := range expired {
		key := v.keyPred(old)
		handled[keyFingerprint(v.def, old)] = true

		live, err := v.be.Find(ctx, tx, v.sdef, livePred(key), FindOptions{Limit: 2})
		if err != nil {
			return 0, storageError("find live version during rollback", err)
		}
		if len(live) > 1 {
			return 0, invariantError(v.def.Name, "multiple live versions for one logical key")
		}
		if len(live) == 1 && recordEquals(v.def, live[0], old) {
			// Already in the target state for this key.
			continue
		}
		if len(live) == 1 {
			if err := v.closeRow(ctx, tx, revision, key); err != nil {
				return 0, err
			}
		}

		fields := make(Record, len(v.def.Fields))
		for _, f := range v.def.Fields {
			if value, ok := old[f.Name]; ok {
				fields[f.Name] = value
			}
		}
		revive = append(revive, fields)
		changed++
	}

	// Live versions created after the target belong to keys that did not
	// exist then, unless the key was handled above; close them.
	created := livePred(pred).AndOp(FieldValidSince, OpGt, target)
	latecomers, err := v.be.Find(ctx, tx, v.sdef, created, FindOptions{})
	if err != nil {
		return 0, storageError("find post-target versions during rollback", err)
	}
	for _, row := range latecomers {
		if handled[keyFingerprint(v.def, row)] {
			continue
		}
		if err := v.closeRow(ctx, tx, revision, v.keyPred(row)); err != nil {
			return 0, err
		}
		changed++
	}

	// Reinsert last so the revived versions cannot be swept up by the
	// post-target close above. By construction this state was valid when it
	// existed, so rollback never raises a duplicate key against itself.
	if len(revive) > 0 {
		if _, err := v.insert(ctx, tx, revision, revive); err != nil {
			return 0, err
		}
	}

	return changed, nil
}
