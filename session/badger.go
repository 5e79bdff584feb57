package session

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

var _ Store = (*BadgerStore)(nil)

// BadgerStore persists session state on disk.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a store at dir. Badger's own logger is
// silenced; it is far too chatty for a client-side store.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(key string) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("session get %q: %w", key, err)
	}
	return value, nil
}

func (s *BadgerStore) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("session set %q: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("session delete %q: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Clear() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
