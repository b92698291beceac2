// Package badger implements core.Store on top of BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/aretw0/casesync/pkg/core"
)

const keyPrefix = "collection/"

// Options configures the Badger store.
type Options struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger for BadgerDB. If nil, logging is disabled.
	Logger badgerdb.Logger
}

// Store is a core.Store backed by BadgerDB.
type Store struct {
	db *badgerdb.DB
}

// Open opens (or creates) a Badger store.
func Open(opts Options) (*Store, error) {
	badgerOpts := badgerdb.DefaultOptions(opts.Path)

	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badgerdb.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// Load implements core.Store.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return data, nil
}

// Save implements core.Store. Each save is one Badger transaction.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("empty store key")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys implements core.Store.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().Key())
			keys = append(keys, strings.TrimPrefix(k, keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ core.Store = (*Store)(nil)
