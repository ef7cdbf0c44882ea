// Package checkpoint persists coordinator tokens so a stream consumer can
// pause, restart and resume where it left off.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/okvist/vogels/stream"
)

// ErrNoCheckpoint means no token has been saved for the stream yet.
var ErrNoCheckpoint = errors.New("vogels: no checkpoint for stream")

// Store is a BadgerDB-backed token store, keyed by stream ARN.
type Store struct {
	db *badger.DB
}

// StoreOptions configures the BadgerDB store.
type StoreOptions struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger for BadgerDB. If nil, logging is disabled.
	Logger badger.Logger
}

func New(opts StoreOptions) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists the token, replacing any previous checkpoint for its stream.
func (s *Store) Save(token stream.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(token.StreamARN), raw)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns the last saved token for the stream, or ErrNoCheckpoint.
func (s *Store) Load(streamARN string) (stream.Token, error) {
	var token stream.Token
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(streamARN))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNoCheckpoint, streamARN)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &token)
		})
	})
	if err != nil {
		return stream.Token{}, err
	}
	return token, nil
}

// Delete drops the checkpoint for a stream. Deleting a missing checkpoint is
// not an error.
func (s *Store) Delete(streamARN string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(checkpointKey(streamARN))
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func checkpointKey(arn string) []byte {
	return []byte("checkpoint/" + arn)
}
