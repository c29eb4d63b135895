package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/levenlabs/go-lflag"
)

var requestCounterKey = []byte("request_counter")

// BadgerDatabase implements the Database interface using an embedded BadgerDB
// on local disk. Writes are synced before returning.
type BadgerDatabase struct {
	path     string
	inMemory bool
	db       *badger.DB
}

// configuredBadger sets up the Badger provider.
// It registers flags for configuration.
func configuredBadger() *BadgerDatabase {
	path := lflag.String("badger-path", "./data", "Directory for the Badger database")

	b := &BadgerDatabase{}

	lflag.Do(func() {
		b.path = *path
	})

	return b
}

// NewBadger returns a Badger database stored at path. If path is empty the
// database only lives in memory.
func NewBadger(path string) *BadgerDatabase {
	return &BadgerDatabase{
		path:     path,
		inMemory: path == "",
	}
}

// Validate checks if the provider is properly configured.
func (b *BadgerDatabase) Validate() error {
	if b.path == "" && !b.inMemory {
		return fmt.Errorf("badger-path is required")
	}
	return nil
}

// Init opens the database.
// This must be called before using the provider methods.
func (b *BadgerDatabase) Init(ctx context.Context) error {
	opts := badger.DefaultOptions(b.path).
		WithInMemory(b.inMemory).
		WithSyncWrites(true).
		// disable BadgerDB logging, we log the errors ourselves
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger (path=%s): %w", b.path, err)
	}
	b.db = db
	return nil
}

// Close closes the database.
func (b *BadgerDatabase) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// GetRequestCounter reads the counter stored under the request_counter key.
func (b *BadgerDatabase) GetRequestCounter(ctx context.Context) (types.RequestCounter, error) {
	var c types.RequestCounter
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(requestCounterKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.RequestCounter{}, nil
	}
	if err != nil {
		return types.RequestCounter{}, fmt.Errorf("failed to read request counter: %w", err)
	}
	return c, nil
}

// SetRequestCounter stores the counter under the request_counter key.
func (b *BadgerDatabase) SetRequestCounter(ctx context.Context, counter types.RequestCounter) error {
	val, err := json.Marshal(counter)
	if err != nil {
		return fmt.Errorf("failed to marshal request counter: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(requestCounterKey, val)
	})
	if err != nil {
		return fmt.Errorf("failed to save request counter: %w", err)
	}
	return nil
}
