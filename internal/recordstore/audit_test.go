package recordstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditSnapshotsNonVersionedCollection(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := WithActor(context.Background(), "alice")
			store := openTestStore(t, backend, userDef())
			users, err := store.Collection("users")
			require.NoError(t, err)

			_, err = users.Post(ctx, Record{"username": "bob", "email": "bob@example.com", "active": true})
			require.NoError(t, err)
			_, _, err = users.Put(ctx, Record{"username": "bob", "active": false})
			require.NoError(t, err)
			_, err = users.Delete(ctx, Where("username", "bob"))
			require.NoError(t, err)

			entries, err := users.GetAudit(ctx, nil)
			require.NoError(t, err)
			require.Len(t, entries, 3)

			assert.Equal(t, ActionInsert, entries[0].Action)
			assert.Equal(t, ActionUpdate, entries[1].Action)
			assert.Equal(t, ActionDelete, entries[2].Action)

			// revisions ascend one per call
			for i, entry := range entries {
				assert.Equal(t, int64(i+1), entry.Revision)
				assert.Equal(t, "alice", entry.Actor)
				assert.Equal(t, "users", entry.Collection)
				assert.WithinDuration(t, time.Now().UTC(), entry.Timestamp, time.Minute)
			}

			// non-versioned entries carry a full snapshot of the final state
			require.NotNil(t, entries[0].Snapshot)
			assert.Equal(t, "bob@example.com", entries[0].Snapshot["email"])
			assert.Equal(t, true, entries[0].Snapshot["active"])
			assert.Equal(t, false, entries[1].Snapshot["active"])
			assert.Equal(t, false, entries[2].Snapshot["active"], "delete snapshots the removed record")
		})
	}
}

func TestAuditMetadataOnlyForVersionedCollection(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := WithActor(context.Background(), "carol")
			store := openTestStore(t, backend, carDef())
			cars, err := store.Collection("cars")
			require.NoError(t, err)

			_, err = cars.Post(ctx, Record{"name": "clio", "plate": "AB-123", "mileage": 1000})
			require.NoError(t, err)
			_, _, err = cars.Put(ctx, Record{"name": "clio", "mileage": 2000})
			require.NoError(t, err)

			entries, err := cars.GetAudit(ctx, nil)
			require.NoError(t, err)
			require.Len(t, entries, 2)

			for _, entry := range entries {
				assert.Nil(t, entry.Snapshot, "versioned entries carry metadata only")
				assert.Equal(t, "carol", entry.Actor)
				assert.Equal(t, "cars", entry.Collection)
			}
			assert.Equal(t, ActionInsert, entries[0].Action)
			assert.Equal(t, ActionUpdate, entries[1].Action)
		})
	}
}

func TestSharedAuditLogScopedPerCollection(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			bikeDef := &CollectionDef{
				Name: "bikes",
				Fields: []Field{
					{Name: "frame", Type: FieldString, PrimaryKey: true},
				},
				History: true,
				Audit:   true,
			}
			store := openTestStore(t, backend, carDef(), bikeDef)
			cars, err := store.Collection("cars")
			require.NoError(t, err)
			bikes, err := store.Collection("bikes")
			require.NoError(t, err)

			_, err = cars.Post(ctx, Record{"name": "clio", "plate": "AB-123"})
			require.NoError(t, err)
			_, err = bikes.Post(ctx, Record{"frame": "carbon-54"})
			require.NoError(t, err)

			// both collections write to the shared log, each sees only its
			// own entries
			carEntries, err := cars.GetAudit(ctx, nil)
			require.NoError(t, err)
			require.Len(t, carEntries, 1)
			assert.Equal(t, int64(1), carEntries[0].Revision)

			bikeEntries, err := bikes.GetAudit(ctx, nil)
			require.NoError(t, err)
			require.Len(t, bikeEntries, 1)
			assert.Equal(t, int64(2), bikeEntries[0].Revision)
		})
	}
}

func TestAuditBatchWritesOneRowPerRecord(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := openTestStore(t, backend, userDef())
			users, err := store.Collection("users")
			require.NoError(t, err)

			_, err = users.PostMany(ctx, []Record{
				{"username": "a", "email": "a@example.com"},
				{"username": "b", "email": "b@example.com"},
			})
			require.NoError(t, err)

			entries, err := users.GetAudit(ctx, nil)
			require.NoError(t, err)
			require.Len(t, entries, 2, "one snapshot per record in the batch")
			assert.Equal(t, entries[0].Revision, entries[1].Revision, "the batch shares one revision")
		})
	}
}

func TestAuditFailedCallLeavesNoEntry(t *testing.T) {
	t.Parallel()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := openTestStore(t, backend, userDef())
			users, err := store.Collection("users")
			require.NoError(t, err)

			_, err = users.Post(ctx, Record{"username": "a", "email": "a@example.com"})
			require.NoError(t, err)

			_, err = users.Post(ctx, Record{"username": "a", "email": "x@example.com"})
			require.Error(t, err)

			entries, err := users.GetAudit(ctx, nil)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "the failed call is rolled back, audit entry included")
		})
	}
}

func TestGetAuditOnUnauditedCollection(t *testing.T) {
	t.Parallel()
	store := openTestStore(t, "sqlite", tagDef())
	tags, err := store.Collection("tags")
	require.NoError(t, err)

	_, err = tags.GetAudit(context.Background(), nil)
	assert.Error(t, err)
}

func TestActorDefaultsToEmpty(t *testing.T) {
	t.Parallel()
	store := openTestStore(t, "sqlite", userDef())
	users, err := store.Collection("users")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = users.Post(ctx, Record{"username": "a", "email": "a@example.com"})
	require.NoError(t, err)

	entries, err := users.GetAudit(ctx, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Actor)
}
