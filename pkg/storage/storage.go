package storage

import (
	"context"
	"fmt"

	"github.com/jameshartig/enever/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Database defines the interface for durably persisting state that must
// survive restarts.
type Database interface {
	// GetRequestCounter returns the persisted request counter. A zero counter
	// is returned if nothing was persisted yet.
	GetRequestCounter(ctx context.Context) (types.RequestCounter, error)
	// SetRequestCounter durably stores the request counter.
	SetRequestCounter(ctx context.Context, counter types.RequestCounter) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "badger", "Storage provider to use (available: firestore, badger, memory)")

	var p struct{ Database }

	fs := configuredFirestore()
	bd := configuredBadger()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "badger":
			if err := bd.Validate(); err != nil {
				panic(fmt.Sprintf("badger validation failed: %v", err))
			}
			p.Database = bd
			if err := bd.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("badger init failed: %v", err))
			}
		case "memory":
			p.Database = NewMemory()
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
