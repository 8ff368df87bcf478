package recordstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/chronostore/chronostore/internal/conf"
	"github.com/chronostore/chronostore/internal/errors"
)

// documentBackend implements Backend on a Badger key-value store. Rows are
// JSON documents under per-collection key prefixes; predicates are evaluated
// in memory during prefix scans. Keys:
//
//	r:<collection>:<uuid>  row document
//	c:revision             revision counter, big-endian uint64
type documentBackend struct {
	db *badger.DB
}

const documentTxRetries = 20

func openBadger(settings *conf.Settings) (*documentBackend, error) {
	cfg := settings.Store.Badger
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := cfg.Path
		if path == "" {
			path = "chronostore.badger"
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(badgerLogAdapter{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open Badger database: %w", err)).
			Component("recordstore").
			Category(errors.CategoryDatabase).
			Context("path", cfg.Path).
			Build()
	}

	getLogger().Info("Badger database opened", "path", cfg.Path, "in_memory", cfg.InMemory)
	return &documentBackend{db: db}, nil
}

func (b *documentBackend) Dialect() string {
	return "badger"
}

// Migrate is a no-op for the document backend: collections are key prefixes
// and the counter key is created lazily on first increment.
func (b *documentBackend) Migrate(_ context.Context, _ []*CollectionDef) error {
	return nil
}

func rowPrefix(collection string) []byte {
	return []byte("r:" + collection + ":")
}

func newRowKey(collection string) []byte {
	return []byte("r:" + collection + ":" + uuid.NewString())
}

var counterKey = []byte("c:" + revisionCounterName)

// RunInTx runs fn in a serializable Badger transaction, retrying on commit
// conflicts. Badger detects read-write conflicts at commit time rather than
// blocking, so contention surfaces as ErrConflict and a clean re-run.
func (b *documentBackend) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; attempt < documentTxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.db.Update(func(txn *badger.Txn) error {
			return fn(txn)
		})
		if err == badger.ErrConflict {
			continue
		}
		return err
	}
	return errors.New(badger.ErrConflict).
		Component("recordstore").
		Category(errors.CategoryDatabase).
		Context("retries", fmt.Sprintf("%d", documentTxRetries)).
		Build()
}

func (b *documentBackend) txn(tx Tx) (*badger.Txn, bool) {
	if tx != nil {
		return tx.(*badger.Txn), false
	}
	return nil, true
}

func readCounter(txn *badger.Txn) (int64, error) {
	item, err := txn.Get(counterKey)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var value int64
	err = item.Value(func(val []byte) error {
		if len(val) == 8 {
			value = int64(binary.BigEndian.Uint64(val))
		}
		return nil
	})
	return value, err
}

func writeCounter(txn *badger.Txn, value int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	return txn.Set(counterKey, buf)
}

func (b *documentBackend) NextRevision(_ context.Context, tx Tx) (int64, error) {
	txn, standalone := b.txn(tx)
	if standalone {
		var revision int64
		err := b.db.Update(func(txn *badger.Txn) error {
			current, err := readCounter(txn)
			if err != nil {
				return err
			}
			revision = current + 1
			return writeCounter(txn, revision)
		})
		return revision, err
	}
	current, err := readCounter(txn)
	if err != nil {
		return 0, err
	}
	if err := writeCounter(txn, current+1); err != nil {
		return 0, err
	}
	return current + 1, nil
}

func (b *documentBackend) CurrentRevision(_ context.Context) (int64, error) {
	var revision int64
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		revision, err = readCounter(txn)
		return err
	})
	return revision, err
}

func encodeRow(rec Record) ([]byte, error) {
	return json.Marshal(map[string]any(rec))
}

// decodeRow unmarshals a stored document. UseNumber keeps integers exact so
// revision columns survive the round trip without float truncation.
func decodeRow(def *CollectionDef, data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return normalizeRecord(def, raw), nil
}

func (b *documentBackend) Insert(_ context.Context, tx Tx, def *CollectionDef, rows []Record) error {
	txn, standalone := b.txn(tx)
	put := func(txn *badger.Txn) error {
		for _, row := range rows {
			data, err := encodeRow(row)
			if err != nil {
				return err
			}
			if err := txn.Set(newRowKey(def.Name), data); err != nil {
				return err
			}
		}
		return nil
	}
	if standalone {
		return b.db.Update(put)
	}
	return put(txn)
}

// scan walks a collection's prefix and hands every matching record to visit
// along with its key. Mutating callers must collect keys and write after the
// iterator is closed.
func scan(txn *badger.Txn, def *CollectionDef, pred Predicate, visit func(key []byte, rec Record) error) error {
	opts := badger.DefaultIteratorOptions
	prefix := rowPrefix(def.Name)
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var rec Record
		err := item.Value(func(val []byte) error {
			var err error
			rec, err = decodeRow(def, val)
			return err
		})
		if err != nil {
			return err
		}
		if !pred.match(rec) {
			continue
		}
		if err := visit(item.KeyCopy(nil), rec); err != nil {
			return err
		}
	}
	return nil
}

func (b *documentBackend) Find(_ context.Context, tx Tx, def *CollectionDef, pred Predicate, opts FindOptions) ([]Record, error) {
	txn, standalone := b.txn(tx)
	var records []Record
	collect := func(txn *badger.Txn) error {
		records = nil
		return scan(txn, def, pred, func(_ []byte, rec Record) error {
			records = append(records, rec)
			return nil
		})
	}
	var err error
	if standalone {
		err = b.db.View(collect)
	} else {
		err = collect(txn)
	}
	if err != nil {
		return nil, err
	}

	if opts.OrderBy != "" {
		sortRecords(records, opts.OrderBy, opts.Desc)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(records) {
			records = nil
		} else {
			records = records[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records, nil
}

func sortRecords(records []Record, field string, desc bool) {
	sort.SliceStable(records, func(i, j int) bool {
		cmp, ok := compareValues(records[i][field], records[j][field])
		if !ok {
			return false
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func (b *documentBackend) UpdateFields(_ context.Context, tx Tx, def *CollectionDef, pred Predicate, set Record) (int64, error) {
	txn, standalone := b.txn(tx)
	var affected int64
	apply := func(txn *badger.Txn) error {
		affected = 0
		type pending struct {
			key  []byte
			data []byte
		}
		var writes []pending
		err := scan(txn, def, pred, func(key []byte, rec Record) error {
			for field, value := range set {
				rec[field] = value
			}
			data, err := encodeRow(rec)
			if err != nil {
				return err
			}
			writes = append(writes, pending{key: key, data: data})
			return nil
		})
		if err != nil {
			return err
		}
		for _, w := range writes {
			if err := txn.Set(w.key, w.data); err != nil {
				return err
			}
		}
		affected = int64(len(writes))
		return nil
	}
	if standalone {
		if err := b.db.Update(apply); err != nil {
			return 0, err
		}
		return affected, nil
	}
	if err := apply(txn); err != nil {
		return 0, err
	}
	return affected, nil
}

func (b *documentBackend) DeleteRows(_ context.Context, tx Tx, def *CollectionDef, pred Predicate) (int64, error) {
	txn, standalone := b.txn(tx)
	var affected int64
	apply := func(txn *badger.Txn) error {
		affected = 0
		var keys [][]byte
		err := scan(txn, def, pred, func(key []byte, _ Record) error {
			keys = append(keys, key)
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		affected = int64(len(keys))
		return nil
	}
	if standalone {
		if err := b.db.Update(apply); err != nil {
			return 0, err
		}
		return affected, nil
	}
	if err := apply(txn); err != nil {
		return 0, err
	}
	return affected, nil
}

func (b *documentBackend) ResetCounters(_ context.Context) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return writeCounter(txn, 0)
	})
}

func (b *documentBackend) Check(_ context.Context) error {
	if b.db.IsClosed() {
		return errors.NewStd("badger database is closed")
	}
	return nil
}

func (b *documentBackend) Close() error {
	return b.db.Close()
}

// badgerLogAdapter routes Badger's internal chatter into the store logger at
// matching levels.
type badgerLogAdapter struct{}

func (badgerLogAdapter) Errorf(format string, args ...any) {
	getLogger().Error(fmt.Sprintf(format, args...))
}

func (badgerLogAdapter) Warningf(format string, args ...any) {
	getLogger().Warn(fmt.Sprintf(format, args...))
}

func (badgerLogAdapter) Infof(format string, args ...any) {
	getLogger().Info(fmt.Sprintf(format, args...))
}

func (badgerLogAdapter) Debugf(format string, args ...any) {
	getLogger().Debug(fmt.Sprintf(format, args...))
}
