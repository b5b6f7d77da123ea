package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockAdapter is a testify.Mock implementation of Adapter.
type MockAdapter struct {
	mock.Mock
	Name Backend
}

func (m *MockAdapter) Backend() Backend {
	return m.Name
}

func (m *MockAdapter) Put(ctx context.Context, localPath, key string) (*Receipt, error) {
	args := m.Called(ctx, localPath, key)
	rec, _ := args.Get(0).(*Receipt)
	return rec, args.Error(1)
}

func (m *MockAdapter) GetStream(ctx context.Context, key string) (*Object, error) {
	args := m.Called(ctx, key)
	obj, _ := args.Get(0).(*Object)
	return obj, args.Error(1)
}

func (m *MockAdapter) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAdapter) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockAdapter) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockAdapter) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
