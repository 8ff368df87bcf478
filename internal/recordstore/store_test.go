package recordstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronostore/chronostore/internal/conf"
)

// testBackends lists the backend families every behavioural test runs
// against. MySQL shares the relational code path with SQLite and needs a
// server, so it is exercised through SQLite here.
var testBackends = []string{"sqlite", "badger"}

func testSettings(t *testing.T, backend string) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	switch backend {
	case "sqlite":
		settings.Store.SQLite.Enabled = true
		settings.Store.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	case "badger":
		settings.Store.Badger.Enabled = true
		settings.Store.Badger.InMemory = true
	default:
		t.Fatalf("unknown test backend %q", backend)
	}
	return settings
}

func openTestStore(t *testing.T, backend string, defs ...*CollectionDef) *Store {
	t.Helper()
	store, err := Open(context.Background(), testSettings(t, backend), defs...)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

// carDef is a versioned and audited collection.
func carDef() *CollectionDef {
	return &CollectionDef{
		Name: "cars",
		Fields: []Field{
			{Name: "name", Type: FieldString, PrimaryKey: true},
			{Name: "plate", Type: FieldString, Unique: true},
			{Name: "mileage", Type: FieldInt},
			{Name: "rented", Type: FieldBool},
		},
		History: true,
		Audit:   true,
	}
}

// userDef is a plain audited collection without versioning.
func userDef() *CollectionDef {
	return &CollectionDef{
		Name: "users",
		Fields: []Field{
			{Name: "username", Type: FieldString, PrimaryKey: true},
			{Name: "email", Type: FieldString, Unique: true},
			{Name: "active", Type: FieldBool},
		},
		Audit: true,
	}
}

// tagDef is a bare collection: no versioning, no audit.
func tagDef() *CollectionDef {
	return &CollectionDef{
		Name: "tags",
		Fields: []Field{
			{Name: "label", Type: FieldString, PrimaryKey: true},
			{Name: "weight", Type: FieldInt},
		},
	}
}

func TestOpenRejectsBadDefinitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no collections", func(t *testing.T) {
		t.Parallel()
		_, err := Open(ctx, testSettings(t, "sqlite"))
		assert.Error(t, err)
	})

	t.Run("duplicate collection", func(t *testing.T) {
		t.Parallel()
		_, err := Open(ctx, testSettings(t, "sqlite"), tagDef(), tagDef())
		assert.Error(t, err)
	})

	t.Run("no backend enabled", func(t *testing.T) {
		t.Parallel()
		_, err := Open(ctx, &conf.Settings{}, tagDef())
		assert.Error(t, err)
	})
}

func TestCollectionLookup(t *testing.T) {
	t.Parallel()
	store := openTestStore(t, "sqlite", carDef(), userDef())

	c, err := store.Collection("cars")
	require.NoError(t, err)
	assert.Equal(t, "cars", c.Name())

	_, err = store.Collection("boats")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCollection)

	assert.ElementsMatch(t, []string{"cars", "users"}, store.Collections())
}

func TestBasicCRUD(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := openTestStore(t, backend, userDef())
			users, err := store.Collection("users")
			require.NoError(t, err)

			// insert
			created, err := users.Post(ctx, Record{"username": "alice", "email": "alice@example.com", "active": true})
			require.NoError(t, err)
			assert.Equal(t, "alice", created["username"])

			// duplicate primary key
			_, err = users.Post(ctx, Record{"username": "alice", "email": "other@example.com"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDuplicateKey)

			// duplicate unique field
			_, err = users.Post(ctx, Record{"username": "bob", "email": "alice@example.com"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDuplicateKey)

			// read back
			got, err := users.GetOne(ctx, Where("username", "alice"))
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "alice@example.com", got["email"])
			assert.Equal(t, true, got["active"])

			// partial update keeps unmentioned fields
			before, after, err := users.Put(ctx, Record{"username": "alice", "active": false})
			require.NoError(t, err)
			assert.Equal(t, true, before["active"])
			assert.Equal(t, false, after["active"])
			assert.Equal(t, "alice@example.com", after["email"])

			// update of a missing record
			_, _, err = users.Put(ctx, Record{"username": "nobody", "active": true})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotFound)

			// delete
			n, err := users.Delete(ctx, Where("username", "alice"))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			got, err = users.GetOne(ctx, Where("username", "alice"))
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestGetOneMultipleResults(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := openTestStore(t, backend, tagDef())
			tags, err := store.Collection("tags")
			require.NoError(t, err)

			_, err = tags.PostMany(ctx, []Record{
				{"label": "go", "weight": 1},
				{"label": "sql", "weight": 1},
			})
			require.NoError(t, err)

			_, err = tags.GetOne(ctx, Where("weight", 1))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMultipleResults)
		})
	}
}

func TestBatchAtomicity(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := openTestStore(t, backend, tagDef())
			tags, err := store.Collection("tags")
			require.NoError(t, err)

			// A duplicate inside the batch fails the whole batch before
			// anything is written.
			_, err = tags.PostMany(ctx, []Record{
				{"label": "a", "weight": 1},
				{"label": "a", "weight": 2},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDuplicateKey)

			rows, err := tags.Get(ctx, nil, FindOptions{})
			require.NoError(t, err)
			assert.Empty(t, rows)

			// A duplicate against stored data rolls the batch back too.
			_, err = tags.Post(ctx, Record{"label": "b", "weight": 1})
			require.NoError(t, err)
			_, err = tags.PostMany(ctx, []Record{
				{"label": "c", "weight": 1},
				{"label": "b", "weight": 2},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDuplicateKey)

			rows, err = tags.Get(ctx, nil, FindOptions{})
			require.NoError(t, err)
			assert.Len(t, rows, 1)
		})
	}
}

func TestGetOrderingAndPagination(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := openTestStore(t, backend, tagDef())
			tags, err := store.Collection("tags")
			require.NoError(t, err)

			_, err = tags.PostMany(ctx, []Record{
				{"label": "a", "weight": 3},
				{"label": "b", "weight": 1},
				{"label": "c", "weight": 2},
			})
			require.NoError(t, err)

			rows, err := tags.Get(ctx, nil, FindOptions{OrderBy: "weight"})
			require.NoError(t, err)
			require.Len(t, rows, 3)
			assert.Equal(t, "b", rows[0]["label"])
			assert.Equal(t, "a", rows[2]["label"])

			rows, err = tags.Get(ctx, nil, FindOptions{OrderBy: "weight", Desc: true, Limit: 1, Offset: 1})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "c", rows[0]["label"])

			rows, err = tags.Get(ctx, WhereOp("weight", OpGte, 2), FindOptions{OrderBy: "weight"})
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "c", rows[0]["label"])
		})
	}
}

func TestCheckReportsHealthy(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			store := openTestStore(t, backend, tagDef())
			result := store.Check(context.Background())
			assert.Equal(t, HealthOK, result.Status)
			assert.Equal(t, "ok", result.Checks["connection"])
			assert.Equal(t, "ok", result.Checks["revision_counter"])
		})
	}
}

func TestResetClearsDataAndCounter(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := openTestStore(t, backend, carDef(), userDef())
			cars, err := store.Collection("cars")
			require.NoError(t, err)

			_, err = cars.Post(ctx, Record{"name": "clio", "plate": "AB-123", "mileage": 1000})
			require.NoError(t, err)

			current, err := store.CurrentRevision(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), current)

			require.NoError(t, store.Reset(ctx))

			rows, err := cars.GetHistory(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, rows)

			entries, err := cars.GetAudit(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, entries)

			current, err = store.CurrentRevision(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), current)
		})
	}
}
