package recordstore

import (
	"context"
	"fmt"
	"strings"
)

// Migrate creates the physical tables for the given storage definitions plus
// the revision counter table, and seeds the counter row. Statements are
// idempotent so repeated opens against the same database are safe.
func (b *relationalBackend) Migrate(ctx context.Context, defs []*CollectionDef) error {
	db := b.db.WithContext(ctx)

	for _, def := range defs {
		if err := db.Exec(b.createTableSQL(def)).Error; err != nil {
			return fmt.Errorf("create table %s: %w", def.Name, err)
		}
		for _, stmt := range b.createIndexSQL(def) {
			if err := db.Exec(stmt).Error; err != nil {
				// MySQL has no IF NOT EXISTS for indexes; a re-run trips
				// error 1061 which we treat as already-migrated.
				if b.dialect == "mysql" && strings.Contains(err.Error(), "Duplicate key name") {
					continue
				}
				return fmt.Errorf("create index on %s: %w", def.Name, err)
			}
		}
	}

	if err := db.Exec(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name %s, counter %s)",
		b.quote(counterTable), b.sqlType(FieldString), b.sqlType(FieldInt),
	)).Error; err != nil {
		return fmt.Errorf("create counter table: %w", err)
	}
	return b.seedCounter(ctx)
}

// seedCounter inserts the revision counter row if it is missing. The counter
// table carries no unique index, so insert-or-ignore is expressed as a
// check followed by a plain insert inside Migrate's single-caller path.
func (b *relationalBackend) seedCounter(ctx context.Context) error {
	var count int64
	if err := b.db.WithContext(ctx).Raw(
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE name = ?", b.quote(counterTable)),
		revisionCounterName,
	).Scan(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return b.db.WithContext(ctx).Exec(
		fmt.Sprintf("INSERT INTO %s (name, counter) VALUES (?, 0)", b.quote(counterTable)),
		revisionCounterName,
	).Error
}

func (b *relationalBackend) createTableSQL(def *CollectionDef) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(b.quote(def.Name))
	sb.WriteString(" (")
	for i, f := range def.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.quote(f.Name))
		sb.WriteString(" ")
		sb.WriteString(b.sqlType(f.Type))
	}
	sb.WriteString(")")
	return sb.String()
}

// createIndexSQL emits plain lookup indexes over primary key and unique
// fields. Uniqueness itself is enforced in the write path so that live-scope
// semantics behave the same on every backend; no UNIQUE constraints here.
func (b *relationalBackend) createIndexSQL(def *CollectionDef) []string {
	var stmts []string
	indexed := map[string]bool{}
	for _, f := range def.Fields {
		if !f.PrimaryKey && !f.Unique {
			continue
		}
		if indexed[f.Name] {
			continue
		}
		indexed[f.Name] = true
		name := fmt.Sprintf("idx_%s_%s", def.Name, f.Name)
		exists := ""
		if b.dialect != "mysql" {
			exists = "IF NOT EXISTS "
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX %s%s ON %s (%s)",
			exists, b.quote(name), b.quote(def.Name), b.quote(f.Name),
		))
	}
	return stmts
}

func (b *relationalBackend) sqlType(t FieldType) string {
	if b.dialect == "mysql" {
		switch t {
		case FieldInt:
			return "BIGINT"
		case FieldFloat:
			return "DOUBLE"
		case FieldBool:
			return "BOOLEAN"
		case FieldTime:
			return "DATETIME(6)"
		default:
			return "VARCHAR(255)"
		}
	}
	switch t {
	case FieldInt:
		return "INTEGER"
	case FieldFloat:
		return "REAL"
	case FieldBool:
		return "BOOLEAN"
	case FieldTime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}
