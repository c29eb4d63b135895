package server

import (
	"context"

	"github.com/jameshartig/enever/pkg/coordinator"
	"github.com/stretchr/testify/mock"
)

type mockTicker struct {
	mock.Mock
}

func (m *mockTicker) Tick(ctx context.Context) coordinator.Update {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.Update)
}
