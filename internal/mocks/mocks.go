// internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
)

// -- Session Store Mock --

// MockKV mocks store.KV.
type MockKV struct {
	mock.Mock
}

func (m *MockKV) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockKV) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockKV) Delete(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

// -- Status Sink Mock --

// MockStatusSink mocks engine.StatusSink.
type MockStatusSink struct {
	mock.Mock
}

func (m *MockStatusSink) Publish(status schemas.Status) {
	m.Called(status)
}
