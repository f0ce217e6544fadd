package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore implements the Store interface for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Locate(ctx context.Context, uri string) (Resource, error) {
	args := m.Called(ctx, uri)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Resource), args.Error(1)
}

func (m *MockStore) LocateParent(ctx context.Context, uri string) (Collection, error) {
	args := m.Called(ctx, uri)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Collection), args.Error(1)
}

func (m *MockStore) LocateChild(ctx context.Context, parent Collection, name string) (Resource, error) {
	args := m.Called(ctx, parent, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Resource), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, uri string, res Resource, depth Depth) error {
	args := m.Called(ctx, uri, res, depth)
	return args.Error(0)
}

func (m *MockStore) WalkCalendarCollections(ctx context.Context, root Collection, fn func(ctx context.Context, cal CalendarCollection) error) error {
	args := m.Called(ctx, root, fn)
	return args.Error(0)
}

func (m *MockStore) WalkAddressBookCollections(ctx context.Context, root Collection, fn func(ctx context.Context, ab Collection) error) error {
	args := m.Called(ctx, root, fn)
	return args.Error(0)
}

// MockAuthenticator implements the Authenticator interface for testing
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) AuthUser(username, password string) (string, error) {
	args := m.Called(username, password)
	return args.String(0), args.Error(1)
}
