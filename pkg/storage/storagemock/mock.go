package storagemock

import (
	"context"

	"github.com/jameshartig/enever/pkg/storage"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetRequestCounter(ctx context.Context) (types.RequestCounter, error) {
	args := m.Called(ctx)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.RequestCounter), args.Error(1)
	}
	return types.RequestCounter{}, nil
}

func (m *MockDatabase) SetRequestCounter(ctx context.Context, counter types.RequestCounter) error {
	args := m.Called(ctx, counter)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	if len(args) > 0 {
		return args.Error(0)
	}
	return nil
}
