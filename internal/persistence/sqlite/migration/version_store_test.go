package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionStore_InitIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	store := NewVersionStore(nil)
	ctx := context.Background()

	require.NoError(t, store.Init(ctx, db))
	require.NoError(t, store.Set(ctx, db, 4))
	require.NoError(t, store.Init(ctx, db))

	version, err := store.Current(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 4, version, "Init must not reset an existing version")
}

func TestVersionStore_SingletonRow(t *testing.T) {
	db := openTestDB(t)
	store := NewVersionStore(nil)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx, db))

	_, err := db.Exec("INSERT INTO schema_version (id, version) VALUES (2, 9)")
	assert.Error(t, err, "only id = 1 is allowed")
}

func TestVersionStore_CorruptTable(t *testing.T) {
	db := openTestDB(t)
	store := NewVersionStore(nil)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx, db))

	_, err := db.Exec("DELETE FROM schema_version")
	require.NoError(t, err)

	_, err = store.Current(ctx, db)
	assert.True(t, errors.Is(err, ErrVersionTableCorrupt))
	assert.True(t, errors.Is(store.Set(ctx, db, 1), ErrVersionTableCorrupt))
}

func TestVersionStore_RecordAndForget(t *testing.T) {
	db := openTestDB(t)
	fixed := time.Date(2024, time.February, 3, 4, 5, 6, 0, time.UTC)
	store := NewVersionStore(func() time.Time { return fixed })
	ctx := context.Background()
	require.NoError(t, store.Init(ctx, db))

	m := Migration{Version: 7, Name: "seven", UpSQL: "SELECT 1"}
	require.NoError(t, store.Record(ctx, db, m, 1500*time.Millisecond))

	applied, err := store.Applied(ctx, db)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, 7, applied[0].Version)
	assert.Equal(t, "seven", applied[0].Name)
	assert.Equal(t, m.Checksum(), applied[0].Checksum)
	assert.True(t, applied[0].AppliedAt.Equal(fixed))
	assert.Equal(t, 1500*time.Millisecond, applied[0].ExecutionTime)

	require.NoError(t, store.Forget(ctx, db, 7))
	applied, err = store.Applied(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
