package interfaces

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// RegistryEvent is a decoded registry log.
type RegistryEvent struct {
	Name        string
	Args        map[string]interface{}
	TxHash      common.Hash
	BlockNumber uint64
}

// Confirmation is the outcome of a mined registry transaction.
type Confirmation struct {
	Success     bool
	BlockNumber uint64
	Events      []RegistryEvent
}

// PendingTx is a submitted registry transaction.
type PendingTx interface {
	// Hash is the submission reference users can track externally.
	Hash() common.Hash

	// Wait blocks until the transaction is confirmed or ctx is done.
	Wait(ctx context.Context) (*Confirmation, error)
}

// RegistryHandle is a registry contract bound to a signer.
type RegistryHandle interface {
	Address() common.Address

	RegisterComponent(ctx context.Context, name, description, initialMetadata string) (PendingTx, error)
	TransferOwnership(ctx context.Context, componentID *big.Int, newOwner common.Address) (PendingTx, error)
	UpdateComponentStatus(ctx context.Context, componentID *big.Int, newStatus, details string) (PendingTx, error)

	GetComponentDetails(ctx context.Context, componentID *big.Int) (*ComponentRecord, error)
	GetComponentHistory(ctx context.Context, componentID *big.Int) ([]HistoryRecord, error)
	HasRole(ctx context.Context, role [32]byte, account common.Address) (bool, error)

	// WatchEvent installs cb for the named registry event. Unsubscribing the
	// returned subscription removes the listener.
	WatchEvent(name string, cb func(RegistryEvent)) (event.Subscription, error)

	// Close releases resources held by the handle.
	Close()
}

// Descriptor is the static document describing the deployed registry.
type Descriptor struct {
	// Schema is the contract interface description (ABI JSON).
	Schema json.RawMessage `json:"abi"`

	// Address is the deployed location of the registry.
	Address string `json:"address"`
}

// HandleFactory constructs registry handles bound to a signer.
type HandleFactory interface {
	NewHandle(desc *Descriptor, signer Signer) (RegistryHandle, error)
}

// DescriptorSource fetches the raw registry descriptor document.
type DescriptorSource interface {
	Fetch(ctx context.Context) ([]byte, error)
	Available(ctx context.Context) bool
	Name() string
	LocationURI() string
}

// Navigator requests a view change from whatever renders the client.
type Navigator interface {
	Navigate(route string, params map[string]string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(route string, params map[string]string)

// Navigate calls f(route, params).
func (f NavigatorFunc) Navigate(route string, params map[string]string) {
	f(route, params)
}

// ParseComponentID converts a decimal component identifier.
func ParseComponentID(id string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(id, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}
