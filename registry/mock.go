package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockHandle mocks the RegistryHandle interface
type MockHandle struct {
	mock.Mock
}

// Address mocks the Address method
func (m *MockHandle) Address() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

// RegisterComponent mocks the RegisterComponent method
func (m *MockHandle) RegisterComponent(ctx context.Context, name, description, initialMetadata string) (interfaces.PendingTx, error) {
	args := m.Called(ctx, name, description, initialMetadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.PendingTx), args.Error(1)
}

// TransferOwnership mocks the TransferOwnership method
func (m *MockHandle) TransferOwnership(ctx context.Context, componentID *big.Int, newOwner common.Address) (interfaces.PendingTx, error) {
	args := m.Called(ctx, componentID, newOwner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.PendingTx), args.Error(1)
}

// UpdateComponentStatus mocks the UpdateComponentStatus method
func (m *MockHandle) UpdateComponentStatus(ctx context.Context, componentID *big.Int, newStatus, details string) (interfaces.PendingTx, error) {
	args := m.Called(ctx, componentID, newStatus, details)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.PendingTx), args.Error(1)
}

// GetComponentDetails mocks the GetComponentDetails method
func (m *MockHandle) GetComponentDetails(ctx context.Context, componentID *big.Int) (*interfaces.ComponentRecord, error) {
	args := m.Called(ctx, componentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ComponentRecord), args.Error(1)
}

// GetComponentHistory mocks the GetComponentHistory method
func (m *MockHandle) GetComponentHistory(ctx context.Context, componentID *big.Int) ([]interfaces.HistoryRecord, error) {
	args := m.Called(ctx, componentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.HistoryRecord), args.Error(1)
}

// HasRole mocks the HasRole method
func (m *MockHandle) HasRole(ctx context.Context, role [32]byte, account common.Address) (bool, error) {
	args := m.Called(ctx, role, account)
	return args.Bool(0), args.Error(1)
}

// WatchEvent mocks the WatchEvent method
func (m *MockHandle) WatchEvent(name string, cb func(interfaces.RegistryEvent)) (event.Subscription, error) {
	args := m.Called(name, cb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(event.Subscription), args.Error(1)
}

// Close mocks the Close method
func (m *MockHandle) Close() {
	m.Called()
}

// MockPendingTx mocks the PendingTx interface
type MockPendingTx struct {
	mock.Mock
}

// Hash mocks the Hash method
func (m *MockPendingTx) Hash() common.Hash {
	args := m.Called()
	return args.Get(0).(common.Hash)
}

// Wait mocks the Wait method
func (m *MockPendingTx) Wait(ctx context.Context) (*interfaces.Confirmation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Confirmation), args.Error(1)
}

// MockHandleFactory mocks the HandleFactory interface
type MockHandleFactory struct {
	mock.Mock
}

// NewHandle mocks the NewHandle method
func (m *MockHandleFactory) NewHandle(desc *interfaces.Descriptor, signer interfaces.Signer) (interfaces.RegistryHandle, error) {
	args := m.Called(desc, signer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.RegistryHandle), args.Error(1)
}
