package storage

import (
	"context"
	"sync"

	"github.com/jameshartig/enever/pkg/types"
)

// Memory implements the Database interface in process memory. Nothing
// survives a restart so it is only meant for development and tests.
type Memory struct {
	mu      sync.Mutex
	counter types.RequestCounter
}

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) GetRequestCounter(ctx context.Context) (types.RequestCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter, nil
}

func (m *Memory) SetRequestCounter(ctx context.Context, counter types.RequestCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter = counter
	return nil
}

func (m *Memory) Close() error {
	return nil
}
