// internal/list/storage/store.go
package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/temportalflux/wishlist/internal/list"
	"github.com/temportalflux/wishlist/internal/storage"
)

const StoreName = "lists"

type Store struct {
	store *storage.BadgerStore
}

func NewStore(db *storage.DB) *Store {
	return &Store{
		store: storage.NewBadgerStore(db, StoreName),
	}
}

// Get returns the list or an error wrapping storage.ErrNotFound.
func (s *Store) Get(tx *storage.Txn, id list.ID) (*list.List, error) {
	var l list.List
	if err := tx.Get(StoreName, id.String(), &l); err != nil {
		return nil, fmt.Errorf("getting list: %w", err)
	}
	return &l, nil
}

func (s *Store) Exists(tx *storage.Txn, id list.ID) (bool, error) {
	return tx.Has(StoreName, id.String())
}

func (s *Store) Put(tx *storage.Txn, l *list.List) error {
	if err := list.ValidateID(l.ID); err != nil {
		return fmt.Errorf("invalid list: %w", err)
	}
	return tx.Put(StoreName, l)
}

func (s *Store) Delete(tx *storage.Txn, id list.ID) error {
	return tx.Delete(StoreName, id.String())
}

// ListByOwner returns the owner's lists ordered by slug.
func (s *Store) ListByOwner(tx *storage.Txn, owner string) ([]*list.List, error) {
	prefix := owner + "/"
	var lists []*list.List
	err := tx.Each(StoreName, func(id string, value []byte) error {
		if !strings.HasPrefix(id, prefix) {
			return nil
		}
		var l list.List
		if err := json.Unmarshal(value, &l); err != nil {
			return fmt.Errorf("decoding list %s: %w", id, err)
		}
		lists = append(lists, &l)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	return lists, nil
}

func (s *Store) Load(id list.ID) (*list.List, error) {
	var l list.List
	if err := s.store.Get(id.String(), &l); err != nil {
		return nil, fmt.Errorf("getting list: %w", err)
	}
	return &l, nil
}

func (s *Store) All() ([]*list.List, error) {
	var lists []*list.List
	if err := s.store.List(&lists); err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	sort.Slice(lists, func(i, j int) bool {
		return lists[i].ID.String() < lists[j].ID.String()
	})
	return lists, nil
}

// Dirty returns every list with unpushed changes.
func (s *Store) Dirty() ([]*list.List, error) {
	lists, err := s.All()
	if err != nil {
		return nil, err
	}

	var dirty []*list.List
	for _, l := range lists {
		if l.Dirty() {
			dirty = append(dirty, l)
		}
	}
	return dirty, nil
}
