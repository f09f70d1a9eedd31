package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

func (r *record) GetID() string {
	return r.ID
}

func setupTestDB(t *testing.T, compressAbove int) *DB {
	db, err := Open(Options{InMemory: true, SchemaVersion: 1, CompressAbove: compressAbove})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTxn(t *testing.T) {
	db := setupTestDB(t, 0)

	t.Run("PutGet", func(t *testing.T) {
		err := db.Update(func(tx *Txn) error {
			return tx.Put("things", &record{ID: "a", Body: "alpha"})
		})
		require.NoError(t, err)

		var got record
		err = db.View(func(tx *Txn) error {
			return tx.Get("things", "a", &got)
		})
		require.NoError(t, err)
		assert.Equal(t, "alpha", got.Body)
	})

	t.Run("GetMissing", func(t *testing.T) {
		err := db.View(func(tx *Txn) error {
			var got record
			return tx.Get("things", "missing", &got)
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		err := db.Update(func(tx *Txn) error {
			return tx.Delete("things", "never-existed")
		})
		assert.NoError(t, err)
	})

	t.Run("FailedScopeWritesNothing", func(t *testing.T) {
		err := db.Update(func(tx *Txn) error {
			if err := tx.Put("things", &record{ID: "b", Body: "beta"}); err != nil {
				return err
			}
			return errors.New("abort")
		})
		require.Error(t, err)

		err = db.View(func(tx *Txn) error {
			var got record
			return tx.Get("things", "b", &got)
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("EachIsScopedToStore", func(t *testing.T) {
		err := db.Update(func(tx *Txn) error {
			if err := tx.Put("things", &record{ID: "c", Body: "gamma"}); err != nil {
				return err
			}
			return tx.Put("other", &record{ID: "c", Body: "elsewhere"})
		})
		require.NoError(t, err)

		var ids []string
		err = db.View(func(tx *Txn) error {
			return tx.Each("things", func(id string, value []byte) error {
				var r record
				if err := json.Unmarshal(value, &r); err != nil {
					return err
				}
				assert.Equal(t, id, r.ID)
				ids = append(ids, id)
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, ids)
	})

	t.Run("EmptyID", func(t *testing.T) {
		err := db.Update(func(tx *Txn) error {
			return tx.Put("things", &record{})
		})
		assert.Error(t, err)
	})
}

func TestCompression(t *testing.T) {
	db := setupTestDB(t, 64)
	body := strings.Repeat("wishlist item\n", 200)

	err := db.Update(func(tx *Txn) error {
		if err := tx.Put("things", &record{ID: "big", Body: body}); err != nil {
			return err
		}
		return tx.Put("things", &record{ID: "small", Body: "x"})
	})
	require.NoError(t, err)

	err = db.View(func(tx *Txn) error {
		item, err := tx.txn.Get(makeKey("things", "big"))
		require.NoError(t, err)
		raw, err := item.ValueCopy(nil)
		require.NoError(t, err)
		assert.Equal(t, encodingZstd, raw[0])
		assert.Less(t, len(raw), len(body))

		item, err = tx.txn.Get(makeKey("things", "small"))
		require.NoError(t, err)
		raw, err = item.ValueCopy(nil)
		require.NoError(t, err)
		assert.Equal(t, encodingRaw, raw[0])
		return nil
	})
	require.NoError(t, err)

	var got record
	err = db.View(func(tx *Txn) error {
		return tx.Get("things", "big", &got)
	})
	require.NoError(t, err)
	assert.Equal(t, body, got.Body)
}

func TestSchemaVersion(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(Options{Path: dir, SchemaVersion: 1})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(Options{Path: dir, SchemaVersion: 1})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(Options{Path: dir, SchemaVersion: 2})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestBadgerStore(t *testing.T) {
	db := setupTestDB(t, 0)
	store := NewBadgerStore(db, "things")

	err := db.Update(func(tx *Txn) error {
		if err := tx.Put("things", &record{ID: "one", Body: "1"}); err != nil {
			return err
		}
		if err := tx.Put("things", &record{ID: "two", Body: "2"}); err != nil {
			return err
		}
		return tx.Put("others", &record{ID: "three", Body: "3"})
	})
	require.NoError(t, err)

	t.Run("Get", func(t *testing.T) {
		var got record
		require.NoError(t, store.Get("one", &got))
		assert.Equal(t, "1", got.Body)

		assert.ErrorIs(t, store.Get("three", &got), ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		var all []record
		require.NoError(t, store.List(&all))
		assert.Len(t, all, 2)
	})
}
