package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/buyback-hub/buyback-hub/internal/domain/notify"
)

// MockMessenger is a mock implementation of notify.Messenger
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Deliver(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
