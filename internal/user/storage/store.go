// internal/user/storage/store.go
package storage

import (
	"fmt"

	"github.com/temportalflux/wishlist/internal/storage"
	"github.com/temportalflux/wishlist/internal/user"
)

const StoreName = "users"

type Store struct {
	store *storage.BadgerStore
}

func NewStore(db *storage.DB) *Store {
	return &Store{
		store: storage.NewBadgerStore(db, StoreName),
	}
}

// Get returns the user or an error wrapping storage.ErrNotFound.
func (s *Store) Get(tx *storage.Txn, login string) (*user.User, error) {
	var u user.User
	if err := tx.Get(StoreName, login, &u); err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

// Find is like Get but returns nil when the user is absent.
func (s *Store) Find(tx *storage.Txn, login string) (*user.User, error) {
	exists, err := tx.Has(StoreName, login)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if !exists {
		return nil, nil
	}
	return s.Get(tx, login)
}

func (s *Store) Put(tx *storage.Txn, u *user.User) error {
	if u.Login == "" {
		return fmt.Errorf("user login is required")
	}
	return tx.Put(StoreName, u)
}

func (s *Store) Load(login string) (*user.User, error) {
	var u user.User
	if err := s.store.Get(login, &u); err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

func (s *Store) All() ([]*user.User, error) {
	var users []*user.User
	if err := s.store.List(&users); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}
