package recordstore

import (
	"context"
)

// uniquenessEnforcer evaluates primary-key and declared-unique constraints.
//
// For versioned collections the scope is live rows only: closed versions
// never trigger a conflict, so a value can be reused once its previous
// holder was updated away or deleted. Non-versioned collections have no
// closed rows, so every row is in scope.
type uniquenessEnforcer struct {
	be   Backend
	def  *CollectionDef
	sdef *CollectionDef
}

func newUniquenessEnforcer(be Backend, def, sdef *CollectionDef) *uniquenessEnforcer {
	return &uniquenessEnforcer{be: be, def: def, sdef: sdef}
}

// scoped narrows pred to the rows eligible for conflicts.
func (u *uniquenessEnforcer) scoped(pred Predicate) Predicate {
	if u.def.History {
		return livePred(pred)
	}
	return pred
}

// check verifies the candidate record against the collection's constraints.
// forUpdate skips the primary key check: the updated record keeps its key,
// so a key match is the record itself, not a conflict.
func (u *uniquenessEnforcer) check(ctx context.Context, tx Tx, candidate Record, forUpdate bool) error {
	if !forUpdate {
		var keyValues Record
		pred := Predicate{}
		for _, f := range u.def.PrimaryKeys() {
			value := coerceValue(f.Type, candidate[f.Name])
			pred = pred.And(f.Name, value)
			if keyValues == nil {
				keyValues = make(Record)
			}
			keyValues[f.Name] = value
		}
		rows, err := u.be.Find(ctx, tx, u.sdef, u.scoped(pred), FindOptions{Limit: 1})
		if err != nil {
			return storageError("check primary key uniqueness", err)
		}
		if len(rows) > 0 {
			return duplicateKeyError(u.def.Name, keyValues)
		}
	}

	for _, f := range u.def.UniqueFields() {
		value, ok := candidate[f.Name]
		if !ok {
			continue
		}
		value = coerceValue(f.Type, value)
		pred := u.scoped(Where(f.Name, value))
		rows, err := u.be.Find(ctx, tx, u.sdef, pred, FindOptions{})
		if err != nil {
			return storageError("check unique field", err)
		}
		for _, row := range rows {
			if !u.sameKey(row, candidate) {
				return duplicateKeyError(u.def.Name, Record{f.Name: value})
			}
		}
	}
	return nil
}

// sameKey reports whether two records share the logical key.
func (u *uniquenessEnforcer) sameKey(a, b Record) bool {
	for _, f := range u.def.PrimaryKeys() {
		if !valueEquals(f.Type, a[f.Name], b[f.Name]) {
			return false
		}
	}
	return true
}
