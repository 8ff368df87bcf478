package recordstore

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// relationalBackend implements Backend on a GORM database. One physical
// table per collection (with the interval columns added for versioned
// collections), one audit table per audited non-versioned collection, one
// shared audit table, and a single-row counter table for the revision
// sequence.
type relationalBackend struct {
	db      *gorm.DB
	dialect string // "sqlite" or "mysql"
}

func (b *relationalBackend) Dialect() string {
	return b.dialect
}

// gormDB resolves a Tx handle to the transaction it carries, falling back to
// the root connection for non-transactional calls.
func (b *relationalBackend) gormDB(ctx context.Context, tx Tx) *gorm.DB {
	if tx != nil {
		return tx.(*gorm.DB).WithContext(ctx)
	}
	return b.db.WithContext(ctx)
}

// quote quotes an identifier for the backend's SQL dialect. Identifiers are
// validated at schema load, quoting guards against keywords only.
func (b *relationalBackend) quote(ident string) string {
	if b.dialect == "mysql" {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}

func (b *relationalBackend) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

func (b *relationalBackend) NextRevision(ctx context.Context, tx Tx) (int64, error) {
	db := b.gormDB(ctx, tx)
	// Fetch-and-increment on the single shared counter row. The UPDATE takes
	// a row lock, serializing allocation across concurrent transactions.
	if err := db.Exec(
		fmt.Sprintf("UPDATE %s SET counter = counter + 1 WHERE name = ?", b.quote(counterTable)),
		revisionCounterName,
	).Error; err != nil {
		return 0, err
	}
	var revision int64
	if err := db.Raw(
		fmt.Sprintf("SELECT counter FROM %s WHERE name = ?", b.quote(counterTable)),
		revisionCounterName,
	).Scan(&revision).Error; err != nil {
		return 0, err
	}
	return revision, nil
}

func (b *relationalBackend) CurrentRevision(ctx context.Context) (int64, error) {
	var revision int64
	err := b.db.WithContext(ctx).Raw(
		fmt.Sprintf("SELECT counter FROM %s WHERE name = ?", b.quote(counterTable)),
		revisionCounterName,
	).Scan(&revision).Error
	if err != nil {
		return 0, err
	}
	return revision, nil
}

func (b *relationalBackend) Insert(ctx context.Context, tx Tx, def *CollectionDef, rows []Record) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		values = append(values, map[string]any(row))
	}
	return b.gormDB(ctx, tx).Table(def.Name).Create(&values).Error
}

// applyWhere translates a predicate into GORM where clauses. This is the
// relational half of the predicate contract; the document backend evaluates
// the same predicate in memory instead.
func (b *relationalBackend) applyWhere(q *gorm.DB, pred Predicate) *gorm.DB {
	for _, c := range pred {
		column := b.quote(c.Field)
		if c.Op == OpIn {
			q = q.Where(column+" IN ?", c.Value)
			continue
		}
		q = q.Where(fmt.Sprintf("%s %s ?", column, c.Op), c.Value)
	}
	return q
}

func (b *relationalBackend) Find(ctx context.Context, tx Tx, def *CollectionDef, pred Predicate, opts FindOptions) ([]Record, error) {
	q := b.applyWhere(b.gormDB(ctx, tx).Table(def.Name), pred)
	if opts.OrderBy != "" {
		direction := "ASC"
		if opts.Desc {
			direction = "DESC"
		}
		q = q.Order(fmt.Sprintf("%s %s", b.quote(opts.OrderBy), direction))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var rows []map[string]any
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, normalizeRecord(def, row))
	}
	return records, nil
}

func (b *relationalBackend) UpdateFields(ctx context.Context, tx Tx, def *CollectionDef, pred Predicate, set Record) (int64, error) {
	q := b.applyWhere(b.gormDB(ctx, tx).Table(def.Name), pred)
	if len(pred) == 0 {
		q = q.Where("1 = 1")
	}
	res := q.Updates(map[string]any(set))
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (b *relationalBackend) DeleteRows(ctx context.Context, tx Tx, def *CollectionDef, pred Predicate) (int64, error) {
	var sb strings.Builder
	var args []any
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.quote(def.Name))
	for i, c := range pred {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		if c.Op == OpIn {
			sb.WriteString(b.quote(c.Field) + " IN ?")
		} else {
			sb.WriteString(fmt.Sprintf("%s %s ?", b.quote(c.Field), c.Op))
		}
		args = append(args, c.Value)
	}
	res := b.gormDB(ctx, tx).Exec(sb.String(), args...)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (b *relationalBackend) ResetCounters(ctx context.Context) error {
	return b.db.WithContext(ctx).Exec(
		fmt.Sprintf("UPDATE %s SET counter = 0 WHERE name = ?", b.quote(counterTable)),
		revisionCounterName,
	).Error
}

func (b *relationalBackend) Check(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (b *relationalBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
