package recordstore

import (
	"context"
	"time"
)

// Action identifies the kind of mutation recorded in an audit entry.
type Action string

const (
	ActionInsert   Action = "Insert"
	ActionUpdate   Action = "Update"
	ActionDelete   Action = "Delete"
	ActionRollback Action = "Rollback"
)

// AuditEntry is one immutable record of a mutating call.
//
// For a non-versioned collection the entry carries a full snapshot of the
// affected record's final field values. For a versioned collection it
// carries only metadata, since full content is recoverable from the version
// history; duplicating it would make the two stores a consistency risk.
type AuditEntry struct {
	Collection string
	Action     Action
	Revision   int64
	Actor      string
	Timestamp  time.Time
	Snapshot   Record // nil for versioned collections
}

// auditMode selects the entry payload, once per collection at configuration
// time.
type auditMode int

const (
	auditSnapshot auditMode = iota
	auditMetaOnly
)

// auditLog is the append-only audit trail of one collection.
//
// Snapshot-mode logs live in a per-collection audit table; metadata-only
// logs of all versioned collections share one table, keyed by collection
// name and revision.
type auditLog struct {
	be         Backend
	collection string
	mode       auditMode
	def        *CollectionDef // storage definition of the audit table
	fields     map[string]bool
}

func newAuditLog(be Backend, def *CollectionDef) *auditLog {
	log := &auditLog{
		be:         be,
		collection: def.Name,
		fields:     make(map[string]bool, len(def.Fields)),
	}
	if def.History {
		log.mode = auditMetaOnly
		log.def = sharedAuditDef()
	} else {
		log.mode = auditSnapshot
		log.def = snapshotAuditDef(def)
	}
	for _, f := range def.Fields {
		log.fields[f.Name] = true
	}
	return log
}

// sharedAuditDef is the storage definition of the audit table shared by all
// versioned collections.
func sharedAuditDef() *CollectionDef {
	return &CollectionDef{
		Name: sharedAuditTable,
		Fields: []Field{
			{Name: FieldTableName, Type: FieldString},
			{Name: FieldRevision, Type: FieldInt},
			{Name: FieldAuditUser, Type: FieldString},
			{Name: FieldAuditDate, Type: FieldTime},
			{Name: FieldAuditAction, Type: FieldString},
		},
	}
}

// snapshotAuditDef is the storage definition of the per-collection audit
// table of a non-versioned collection: the collection's own fields with key
// declarations cleared, plus the audit metadata fields.
func snapshotAuditDef(def *CollectionDef) *CollectionDef {
	adef := &CollectionDef{Name: auditTablePrefix + def.Name}
	for _, f := range def.Fields {
		adef.Fields = append(adef.Fields, Field{Name: f.Name, Type: f.Type})
	}
	adef.Fields = append(adef.Fields,
		Field{Name: FieldRevision, Type: FieldInt},
		Field{Name: FieldAuditUser, Type: FieldString},
		Field{Name: FieldAuditDate, Type: FieldTime},
		Field{Name: FieldAuditAction, Type: FieldString},
	)
	return adef
}

// append persists the audit record of one mutating call. Metadata-only logs
// write exactly one row; snapshot logs write one row per affected record,
// all sharing the call's revision.
func (a *auditLog) append(ctx context.Context, tx Tx, action Action, revision int64, actor string, snapshots []Record) error {
	now := time.Now().UTC()

	var rows []Record
	if a.mode == auditMetaOnly {
		rows = []Record{{
			FieldTableName:   a.collection,
			FieldRevision:    revision,
			FieldAuditUser:   actor,
			FieldAuditDate:   now,
			FieldAuditAction: string(action),
		}}
	} else {
		rows = make([]Record, 0, len(snapshots))
		for _, snapshot := range snapshots {
			row := make(Record, len(snapshot)+4)
			for name, value := range snapshot {
				if a.fields[name] {
					row[name] = value
				}
			}
			row[FieldRevision] = revision
			row[FieldAuditUser] = actor
			row[FieldAuditDate] = now
			row[FieldAuditAction] = string(action)
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			return nil
		}
	}

	if err := a.be.Insert(ctx, tx, a.def, rows); err != nil {
		return storageError("append audit entry", err)
	}
	return nil
}

// query returns audit entries matching the predicate, ordered by revision
// ascending. The shared log is automatically scoped to this collection.
func (a *auditLog) query(ctx context.Context, pred Predicate) ([]AuditEntry, error) {
	if a.mode == auditMetaOnly {
		pred = pred.without(FieldTableName).And(FieldTableName, a.collection)
	}
	rows, err := a.be.Find(ctx, nil, a.def, pred, FindOptions{OrderBy: FieldRevision})
	if err != nil {
		return nil, storageError("query audit entries", err)
	}

	entries := make([]AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, a.toEntry(row))
	}
	return entries, nil
}

func (a *auditLog) toEntry(row Record) AuditEntry {
	entry := AuditEntry{Collection: a.collection}
	if rev, ok := toInt64(row[FieldRevision]); ok {
		entry.Revision = rev
	}
	if actor, ok := asString(row[FieldAuditUser]); ok {
		entry.Actor = actor
	}
	if ts, ok := asTime(row[FieldAuditDate]); ok {
		entry.Timestamp = ts
	}
	if action, ok := asString(row[FieldAuditAction]); ok {
		entry.Action = Action(action)
	}
	if a.mode == auditSnapshot {
		snapshot := make(Record)
		for name, value := range row {
			if a.fields[name] {
				snapshot[name] = value
			}
		}
		entry.Snapshot = snapshot
	}
	return entry
}
