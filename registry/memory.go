package registry

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// RevertError is returned by MemoryRegistry when a submission violates a
// registry rule, mirroring a contract revert.
type RevertError struct {
	reason string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.reason
}

// Reason returns the revert reason as a node reports it.
func (e *RevertError) Reason() string {
	return e.Error()
}

// MemoryRegistry is an in-memory registry with the contract's rules: anyone
// may register, only the current owner may transfer or update a component.
// Submissions are applied immediately and confirm without waiting.
type MemoryRegistry struct {
	mutex      sync.RWMutex
	address    common.Address
	clock      func() time.Time
	nextID     int64
	block      uint64
	components map[int64]*interfaces.ComponentRecord
	history    map[int64][]interfaces.HistoryRecord
	roles      map[[32]byte]map[common.Address]bool

	feed event.Feed
}

// NewMemoryRegistry creates an empty registry at address. admin is granted
// DEFAULT_ADMIN_ROLE.
func NewMemoryRegistry(address common.Address, admin common.Address) *MemoryRegistry {
	m := &MemoryRegistry{
		address:    address,
		clock:      time.Now,
		nextID:     1,
		components: make(map[int64]*interfaces.ComponentRecord),
		history:    make(map[int64][]interfaces.HistoryRecord),
		roles:      make(map[[32]byte]map[common.Address]bool),
	}
	m.GrantRole([32]byte{}, admin)
	return m
}

// GrantRole grants role to account.
func (m *MemoryRegistry) GrantRole(role [32]byte, account common.Address) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.roles[role] == nil {
		m.roles[role] = make(map[common.Address]bool)
	}
	m.roles[role][account] = true
}

// Factory returns a HandleFactory producing handles onto this registry.
// Descriptors are accepted regardless of their address.
func (m *MemoryRegistry) Factory() interfaces.HandleFactory {
	return memoryFactory{registry: m}
}

// Handle returns a handle onto this registry submitting as signer.
func (m *MemoryRegistry) Handle(signer interfaces.Signer) interfaces.RegistryHandle {
	return &memoryHandle{registry: m, signer: signer}
}

type memoryFactory struct {
	registry *MemoryRegistry
}

func (f memoryFactory) NewHandle(desc *interfaces.Descriptor, signer interfaces.Signer) (interfaces.RegistryHandle, error) {
	if desc == nil {
		return nil, fmt.Errorf("no registry descriptor")
	}
	return f.registry.Handle(signer), nil
}

// submit runs apply under the write lock, assigns the transaction a hash and
// block, and emits the resulting events after releasing the lock.
func (m *MemoryRegistry) submit(from common.Address, apply func(now *big.Int) ([]interfaces.RegistryEvent, error)) (interfaces.PendingTx, error) {
	m.mutex.Lock()
	now := big.NewInt(m.clock().Unix())
	events, err := apply(now)
	if err != nil {
		m.mutex.Unlock()
		return nil, err
	}

	m.block++
	var seed [28]byte
	copy(seed[:20], from[:])
	binary.BigEndian.PutUint64(seed[20:], m.block)
	hash := crypto.Keccak256Hash(seed[:])
	for i := range events {
		events[i].TxHash = hash
		events[i].BlockNumber = m.block
	}
	conf := &interfaces.Confirmation{Success: true, BlockNumber: m.block, Events: events}
	m.mutex.Unlock()

	for _, ev := range events {
		m.feed.Send(ev)
	}
	return &memoryTx{hash: hash, conf: conf}, nil
}

// subscribe delivers every emitted event to ch.
func (m *MemoryRegistry) subscribe(ch chan<- interfaces.RegistryEvent) event.Subscription {
	return m.feed.Subscribe(ch)
}

// Components returns the number of registered components.
func (m *MemoryRegistry) Components() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.components)
}

func (m *MemoryRegistry) lookup(id *big.Int) (*interfaces.ComponentRecord, int64, error) {
	if id == nil || !id.IsInt64() {
		return nil, 0, &RevertError{reason: "component does not exist"}
	}
	key := id.Int64()
	c, ok := m.components[key]
	if !ok {
		return nil, 0, &RevertError{reason: "component does not exist"}
	}
	return c, key, nil
}

type memoryHandle struct {
	registry *MemoryRegistry
	signer   interfaces.Signer
}

func (h *memoryHandle) Address() common.Address {
	return h.registry.address
}

func (h *memoryHandle) from() (common.Address, error) {
	if h.signer == nil {
		return common.Address{}, ErrNoTransactOpts
	}
	return h.signer.Address(), nil
}

func (h *memoryHandle) RegisterComponent(ctx context.Context, name, description, initialMetadata string) (interfaces.PendingTx, error) {
	from, err := h.from()
	if err != nil {
		return nil, err
	}
	m := h.registry

	return m.submit(from, func(now *big.Int) ([]interfaces.RegistryEvent, error) {
		if name == "" {
			return nil, &RevertError{reason: "name required"}
		}
		id := m.nextID
		m.nextID++

		m.components[id] = &interfaces.ComponentRecord{
			Id:              big.NewInt(id),
			Name:            name,
			Description:     description,
			CurrentOwner:    from,
			CurrentStatus:   "Manufactured",
			Timestamp:       now,
			InitialMetadata: initialMetadata,
		}
		m.history[id] = append(m.history[id], interfaces.HistoryRecord{
			Action:    "Registered",
			Details:   initialMetadata,
			By:        from,
			Timestamp: now,
		})

		return []interfaces.RegistryEvent{{
			Name: EventComponentRegistered,
			Args: map[string]interface{}{
				"componentId":  big.NewInt(id),
				"manufacturer": from,
				"name":         name,
			},
		}}, nil
	})
}

func (h *memoryHandle) TransferOwnership(ctx context.Context, componentID *big.Int, newOwner common.Address) (interfaces.PendingTx, error) {
	from, err := h.from()
	if err != nil {
		return nil, err
	}
	m := h.registry

	return m.submit(from, func(now *big.Int) ([]interfaces.RegistryEvent, error) {
		c, key, err := m.lookup(componentID)
		if err != nil {
			return nil, err
		}
		if c.CurrentOwner != from {
			return nil, &RevertError{reason: "not owner"}
		}
		if newOwner == (common.Address{}) {
			return nil, &RevertError{reason: "invalid new owner"}
		}

		c.CurrentOwner = newOwner
		c.Timestamp = now
		m.history[key] = append(m.history[key], interfaces.HistoryRecord{
			Action:    "OwnershipTransferred",
			Details:   "Transferred to " + newOwner.Hex(),
			By:        from,
			Timestamp: now,
		})

		return []interfaces.RegistryEvent{{
			Name: EventOwnershipTransferred,
			Args: map[string]interface{}{
				"componentId": new(big.Int).Set(c.Id),
				"from":        from,
				"to":          newOwner,
			},
		}}, nil
	})
}

func (h *memoryHandle) UpdateComponentStatus(ctx context.Context, componentID *big.Int, newStatus, details string) (interfaces.PendingTx, error) {
	from, err := h.from()
	if err != nil {
		return nil, err
	}
	m := h.registry

	return m.submit(from, func(now *big.Int) ([]interfaces.RegistryEvent, error) {
		c, key, err := m.lookup(componentID)
		if err != nil {
			return nil, err
		}
		if c.CurrentOwner != from {
			return nil, &RevertError{reason: "not owner"}
		}

		c.CurrentStatus = newStatus
		c.Timestamp = now
		m.history[key] = append(m.history[key], interfaces.HistoryRecord{
			Action:    "StatusUpdated: " + newStatus,
			Details:   details,
			By:        from,
			Timestamp: now,
		})

		return []interfaces.RegistryEvent{{
			Name: EventStatusUpdated,
			Args: map[string]interface{}{
				"componentId": new(big.Int).Set(c.Id),
				"newStatus":   newStatus,
				"updatedBy":   from,
			},
		}}, nil
	})
}

func (h *memoryHandle) GetComponentDetails(ctx context.Context, componentID *big.Int) (*interfaces.ComponentRecord, error) {
	m := h.registry
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	c, _, err := m.lookup(componentID)
	if err != nil {
		return nil, err
	}
	out := *c
	out.Id = new(big.Int).Set(c.Id)
	out.Timestamp = new(big.Int).Set(c.Timestamp)
	return &out, nil
}

func (h *memoryHandle) GetComponentHistory(ctx context.Context, componentID *big.Int) ([]interfaces.HistoryRecord, error) {
	m := h.registry
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, key, err := m.lookup(componentID)
	if err != nil {
		return nil, err
	}
	history := make([]interfaces.HistoryRecord, len(m.history[key]))
	copy(history, m.history[key])
	return history, nil
}

func (h *memoryHandle) HasRole(ctx context.Context, role [32]byte, account common.Address) (bool, error) {
	m := h.registry
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.roles[role][account], nil
}

func (h *memoryHandle) WatchEvent(name string, cb func(interfaces.RegistryEvent)) (event.Subscription, error) {
	switch name {
	case EventComponentRegistered, EventOwnershipTransferred, EventStatusUpdated:
	default:
		return nil, fmt.Errorf("event %s not in registry abi", name)
	}

	ch := make(chan interfaces.RegistryEvent, 64)
	sub := h.registry.subscribe(ch)

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-ch:
				if ev.Name == name {
					cb(ev)
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (h *memoryHandle) Close() {}

type memoryTx struct {
	hash common.Hash
	conf *interfaces.Confirmation
}

func (t *memoryTx) Hash() common.Hash {
	return t.hash
}

func (t *memoryTx) Wait(ctx context.Context) (*interfaces.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.conf, nil
}
