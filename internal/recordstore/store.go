package recordstore

import (
	"context"
	"fmt"

	"github.com/chronostore/chronostore/internal/conf"
	"github.com/chronostore/chronostore/internal/errors"
)

// Store owns one backing database and the collections declared on it. All
// collections of a store share its revision sequence, so revision order is a
// global mutation order across the whole store.
type Store struct {
	be          Backend
	seq         *RevisionSequence
	defs        []*CollectionDef
	collections map[string]*Collection
}

// Open connects to the backend selected in the settings, prepares physical
// storage for the given collection definitions and returns the ready store.
func Open(ctx context.Context, settings *conf.Settings, defs ...*CollectionDef) (*Store, error) {
	if len(defs) == 0 {
		return nil, errors.ValidationError("store requires at least one collection definition")
	}
	names := make(map[string]bool, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if names[def.Name] {
			return nil, errors.ValidationError(
				fmt.Sprintf("collection %s declared twice", def.Name))
		}
		names[def.Name] = true
	}

	be, err := openBackend(settings)
	if err != nil {
		return nil, err
	}

	if err := be.Migrate(ctx, storageDefs(defs)); err != nil {
		if closeErr := be.Close(); closeErr != nil {
			getLogger().Warn("failed to close backend after migration error", "error", closeErr)
		}
		return nil, errors.New(fmt.Errorf("preparing storage: %w", err)).
			Component("recordstore").
			Category(errors.CategoryDatabase).
			Build()
	}

	store := &Store{
		be:          be,
		seq:         newRevisionSequence(be),
		defs:        defs,
		collections: make(map[string]*Collection, len(defs)),
	}
	for _, def := range defs {
		store.collections[def.Name] = newCollection(be, store.seq, def)
	}

	getLogger().Info("store opened",
		"backend", be.Dialect(),
		"collections", len(defs))
	return store, nil
}

// openBackend selects and opens the one backend enabled in the settings.
func openBackend(settings *conf.Settings) (Backend, error) {
	switch {
	case settings.Store.SQLite.Enabled:
		return openSQLite(settings)
	case settings.Store.MySQL.Enabled:
		return openMySQL(settings)
	case settings.Store.Badger.Enabled:
		return openBadger(settings)
	default:
		return nil, errors.Newf("no store backend enabled in settings").
			Component("recordstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// storageDefs expands the declared collections into the physical storage
// definitions the backend must prepare: the collection tables themselves
// (with interval fields for versioned ones), a snapshot audit table per
// audited non-versioned collection, and the shared audit table once if any
// versioned collection is audited.
func storageDefs(defs []*CollectionDef) []*CollectionDef {
	out := make([]*CollectionDef, 0, len(defs)+1)
	sharedAudit := false
	for _, def := range defs {
		out = append(out, storageDef(def))
		if !def.Audit {
			continue
		}
		if def.History {
			sharedAudit = true
		} else {
			out = append(out, snapshotAuditDef(def))
		}
	}
	if sharedAudit {
		out = append(out, sharedAuditDef())
	}
	return out
}

// Collection returns the named collection, or ErrUnknownCollection if it was
// not declared at Open.
func (s *Store) Collection(name string) (*Collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, errors.New(fmt.Errorf("%w: %s", ErrUnknownCollection, name)).
			Component("recordstore").
			Category(errors.CategoryNotFound).
			Context("collection", name).
			Build()
	}
	return c, nil
}

// Collections returns the declared collection names.
func (s *Store) Collections() []string {
	names := make([]string, 0, len(s.defs))
	for _, def := range s.defs {
		names = append(names, def.Name)
	}
	return names
}

// CurrentRevision returns the last revision issued on this store, 0 when no
// tracked mutation has happened yet.
func (s *Store) CurrentRevision(ctx context.Context) (int64, error) {
	return s.seq.Current(ctx)
}

// HealthStatus summarizes a health check result.
type HealthStatus string

const (
	HealthOK   HealthStatus = "ok"
	HealthFail HealthStatus = "fail"
)

// HealthResult reports the outcome of a Store.Check call.
type HealthResult struct {
	Status  HealthStatus      `json:"status"`
	Backend string            `json:"backend"`
	Checks  map[string]string `json:"checks"`
}

// Check verifies the backing store is reachable and the revision counter is
// readable.
func (s *Store) Check(ctx context.Context) HealthResult {
	result := HealthResult{
		Status:  HealthOK,
		Backend: s.be.Dialect(),
		Checks:  make(map[string]string, 2),
	}
	if err := s.be.Check(ctx); err != nil {
		result.Status = HealthFail
		result.Checks["connection"] = err.Error()
	} else {
		result.Checks["connection"] = "ok"
	}
	if _, err := s.seq.Current(ctx); err != nil {
		result.Status = HealthFail
		result.Checks["revision_counter"] = err.Error()
	} else {
		result.Checks["revision_counter"] = "ok"
	}
	return result
}

// ResetCollection removes every row of the named collection including its
// version history and audit trail. Test support, not part of the normal
// write path.
func (s *Store) ResetCollection(ctx context.Context, name string) error {
	c, err := s.Collection(name)
	if err != nil {
		return err
	}
	return s.be.RunInTx(ctx, func(tx Tx) error {
		if _, err := s.be.DeleteRows(ctx, tx, c.sdef, nil); err != nil {
			return storageError("reset collection", err)
		}
		if c.audit == nil {
			return nil
		}
		pred := Predicate{}
		if c.audit.mode == auditMetaOnly {
			pred = Where(FieldTableName, c.def.Name)
		}
		if _, err := s.be.DeleteRows(ctx, tx, c.audit.def, pred); err != nil {
			return storageError("reset audit trail", err)
		}
		return nil
	})
}

// Reset clears every collection and rewinds the revision counter to zero.
// Test support.
func (s *Store) Reset(ctx context.Context) error {
	for _, def := range s.defs {
		if err := s.ResetCollection(ctx, def.Name); err != nil {
			return err
		}
	}
	if err := s.be.ResetCounters(ctx); err != nil {
		return storageError("reset revision counter", err)
	}
	return nil
}

// Close releases the backing store connection.
func (s *Store) Close() error {
	return s.be.Close()
}
