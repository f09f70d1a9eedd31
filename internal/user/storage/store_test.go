package storage

import (
	"testing"

	"github.com/temportalflux/wishlist/internal/storage"
	"github.com/temportalflux/wishlist/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *storage.DB {
	db, err := storage.Open(storage.Options{InMemory: true, SchemaVersion: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUserStore(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)

	t.Run("FindMissing", func(t *testing.T) {
		err := db.View(func(tx *storage.Txn) error {
			u, err := store.Find(tx, "ghost")
			assert.Nil(t, u)
			return err
		})
		require.NoError(t, err)

		_, err = store.Load("ghost")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutLoad", func(t *testing.T) {
		err := db.Update(func(tx *storage.Txn) error {
			return store.Put(tx, &user.User{
				Login:         "octo",
				FileID:        "f-user",
				Content:       "user\n",
				LocalVersion:  "c1",
				RemoteVersion: "c2",
			})
		})
		require.NoError(t, err)

		u, err := store.Load("octo")
		require.NoError(t, err)
		assert.Equal(t, "c1", u.LocalVersion)
		assert.True(t, u.Stale())

		all, err := store.All()
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("EmptyLogin", func(t *testing.T) {
		err := db.Update(func(tx *storage.Txn) error {
			return store.Put(tx, &user.User{})
		})
		assert.Error(t, err)
	})
}
