package interfaces

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ConnectionStatus is the state of the wallet connection state machine.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is a full snapshot of the wallet session.
// Account, ChainID and Signer are set iff Status is StatusConnected.
type ConnectionState struct {
	Status       ConnectionStatus `json:"status"`
	Account      *common.Address  `json:"account,omitempty"`
	ChainID      *uint64          `json:"chainId,omitempty"`
	NetworkName  string           `json:"networkName,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`

	// Signer is the capability derived from the provider for Account.
	// A new Signer value is handed out every time the session re-populates
	// its connected state, so identity comparison detects signer changes.
	Signer Signer `json:"-"`
}

// IsConnected reports whether the state carries a usable signer.
func (s ConnectionState) IsConnected() bool {
	return s.Status == StatusConnected && s.Signer != nil
}

// BindingState is a full snapshot of the registry binding.
// Handle is non-nil iff the last observed ConnectionState had a signer and
// construction succeeded.
type BindingState struct {
	Ready        bool            `json:"ready"`
	Address      string          `json:"address,omitempty"`
	Schema       json.RawMessage `json:"-"`
	ErrorMessage string          `json:"errorMessage,omitempty"`

	Handle RegistryHandle `json:"-"`
}

// DomainEventType names one of the registry events the binding listens for.
type DomainEventType string

const (
	EventComponentRegistered  DomainEventType = "ComponentRegistered"
	EventOwnershipTransferred DomainEventType = "OwnershipTransferred"
	EventStatusUpdated        DomainEventType = "StatusUpdated"
)

// DomainEventTypes is the event set installed on every handle.
var DomainEventTypes = []DomainEventType{
	EventComponentRegistered,
	EventOwnershipTransferred,
	EventStatusUpdated,
}

// DomainEvent is a registry event with its fields coerced to display-safe strings.
type DomainEvent struct {
	Type DomainEventType   `json:"type"`
	Data map[string]string `json:"data"`
}

// BindingUpdate is what the binding publishes: the current state and, when the
// publication was caused by a registry event, that event.
type BindingUpdate struct {
	State BindingState `json:"state"`
	Event *DomainEvent `json:"event,omitempty"`
}

// NotificationKind classifies a notification.
type NotificationKind string

const (
	NotificationPending NotificationKind = "pending"
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Notification is a single ephemeral status message.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Kind      NotificationKind `json:"kind"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Component is a registry component with numeric fields converted to decimal strings.
type Component struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	CurrentOwner    string `json:"currentOwner"`
	CurrentStatus   string `json:"currentStatus"`
	Timestamp       string `json:"timestamp"`
	InitialMetadata string `json:"initialMetadata"`
}

// HistoryEntry is one entry of a component's history.
type HistoryEntry struct {
	Action    string `json:"action"`
	Details   string `json:"details"`
	By        string `json:"by"`
	Timestamp string `json:"timestamp"`
}

// ComponentRecord is a component as returned by the registry contract.
// Field names follow the contract's tuple layout.
type ComponentRecord struct {
	Id              *big.Int
	Name            string
	Description     string
	CurrentOwner    common.Address
	CurrentStatus   string
	Timestamp       *big.Int
	InitialMetadata string
}

// HistoryRecord is a history entry as returned by the registry contract.
type HistoryRecord struct {
	Action    string
	Details   string
	By        common.Address
	Timestamp *big.Int
}
