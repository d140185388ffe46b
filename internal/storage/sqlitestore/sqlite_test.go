package sqlitestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vanishbin/internal/storage"
	"vanishbin/internal/storage/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return openTemp(t)
	})
}

func TestInMemoryDatabase(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Create(ctx, storetest.Sample("mem")))
	out, err := store.Get(ctx, "mem")
	require.NoError(t, err)
	assert.Equal(t, "mem", out.ID)
}

func TestAbsentLimitsStoredAsNull(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	paste := storetest.Sample("nulls")
	paste.TTLSeconds = 0
	paste.MaxViews = 0
	require.NoError(t, store.Create(ctx, paste))

	var ttl, maxViews, expiresAt sql.NullInt64
	err := store.db.QueryRow(`SELECT ttl_seconds, max_views, expires_at FROM pastes WHERE id = ?`, "nulls").
		Scan(&ttl, &maxViews, &expiresAt)
	require.NoError(t, err)
	assert.False(t, ttl.Valid)
	assert.False(t, maxViews.Valid)
	assert.False(t, expiresAt.Valid)
}

func TestTimestampsStoredAsMillis(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	paste := storetest.Sample("millis")
	require.NoError(t, store.Create(ctx, paste))

	var createdAt int64
	err := store.db.QueryRow(`SELECT created_at FROM pastes WHERE id = ?`, "millis").Scan(&createdAt)
	require.NoError(t, err)
	assert.Equal(t, paste.CreatedAt.UnixMilli(), createdAt)
}
