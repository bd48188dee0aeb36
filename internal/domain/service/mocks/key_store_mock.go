package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/credcore/internal/domain/models"
)

// MockKeyStore is a testify mock of service.KeyStore.
type MockKeyStore struct {
	mock.Mock
}

func (m *MockKeyStore) Get(ctx context.Context, storageKey string) (*models.KeyPair, error) {
	args := m.Called(ctx, storageKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyPair), args.Error(1)
}

func (m *MockKeyStore) Put(ctx context.Context, storageKey string, keyPair *models.KeyPair) error {
	args := m.Called(ctx, storageKey, keyPair)
	return args.Error(0)
}

func (m *MockKeyStore) Delete(ctx context.Context, storageKey string) error {
	args := m.Called(ctx, storageKey)
	return args.Error(0)
}
