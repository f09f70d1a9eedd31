// internal/storage/badger_store.go
package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrSchemaMismatch     = errors.New("schema version mismatch")
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)

const (
	schemaKey          = "meta:schema_version"
	maxConflictRetries = 5
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

type Options struct {
	Path          string
	InMemory      bool
	SchemaVersion int
	// Values whose JSON form is larger than this are zstd-compressed. Zero disables compression.
	CompressAbove int
}

// DB is the record store. All reads and writes go through View and Update scopes.
type DB struct {
	db    *badger.DB
	codec *codec
}

func Open(opts Options) (*DB, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
		bopts.Dir = ""
		bopts.ValueDir = ""
	}
	bopts.Logger = nil

	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	c, err := newCodec(opts.CompressAbove)
	if err != nil {
		bdb.Close()
		return nil, err
	}

	db := &DB{db: bdb, codec: c}
	if err := db.checkSchema(opts.SchemaVersion); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) checkSchema(version int) error {
	return d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err == badger.ErrKeyNotFound {
			return txn.Set([]byte(schemaKey), []byte(strconv.Itoa(version)))
		} else if err != nil {
			return fmt.Errorf("%w: reading schema version: %v", ErrBackendUnavailable, err)
		}

		raw, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("%w: reading schema version: %v", ErrBackendUnavailable, err)
		}
		stored, err := strconv.Atoi(string(raw))
		if err != nil {
			return fmt.Errorf("%w: unreadable version %q", ErrSchemaMismatch, raw)
		}
		if stored != version {
			return fmt.Errorf("%w: database is v%d, expected v%d", ErrSchemaMismatch, stored, version)
		}
		return nil
	})
}

func (d *DB) Close() error {
	d.codec.close()
	return d.db.Close()
}

// View runs fn in a read-only transaction.
func (d *DB) View(fn func(tx *Txn) error) error {
	return d.db.View(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn, codec: d.codec})
	})
}

// Update runs fn in a read-write transaction that commits when fn returns nil
// and is discarded otherwise. Optimistic conflicts are retried.
func (d *DB) Update(fn func(tx *Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = d.db.Update(func(txn *badger.Txn) error {
			return fn(&Txn{txn: txn, codec: d.codec})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Txn is a scoped handle onto the named stores.
type Txn struct {
	txn   *badger.Txn
	codec *codec
}

func makeKey(store, id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", store, id))
}

func (t *Txn) Get(store, id string, v any) error {
	item, err := t.txn.Get(makeKey(store, id))
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, store, id)
	} else if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		return t.codec.unmarshal(val, v)
	})
}

func (t *Txn) Has(store, id string) (bool, error) {
	_, err := t.txn.Get(makeKey(store, id))
	if err == badger.ErrKeyNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (t *Txn) Put(store string, entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	data, err := t.codec.marshal(entity)
	if err != nil {
		return err
	}
	return t.txn.Set(makeKey(store, entity.GetID()), data)
}

// Delete removes a record. Deleting an absent record is not an error.
func (t *Txn) Delete(store, id string) error {
	return t.txn.Delete(makeKey(store, id))
}

// Each calls fn with the id and JSON payload of every record in store.
func (t *Txn) Each(store string, fn func(id string, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	it := t.txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(store + ":")
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		data, err := t.codec.decode(raw)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", item.Key(), err)
		}
		id := strings.TrimPrefix(string(item.Key()), string(prefix))
		if err := fn(id, data); err != nil {
			return err
		}
	}
	return nil
}

// BadgerStore provides read-only lookups bound to a single named store, each
// in its own transaction. Writes go through Txn so they commit with the sync.
type BadgerStore struct {
	db     *DB
	prefix string
}

func NewBadgerStore(db *DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) Get(id string, entity any) error {
	return s.db.View(func(tx *Txn) error {
		return tx.Get(s.prefix, id, entity)
	})
}

// List decodes every record of the store into results, which must point to a slice.
func (s *BadgerStore) List(results any) error {
	var values []json.RawMessage
	err := s.db.View(func(tx *Txn) error {
		return tx.Each(s.prefix, func(_ string, value []byte) error {
			values = append(values, value)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}

	if values == nil {
		values = []json.RawMessage{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, results)
}
