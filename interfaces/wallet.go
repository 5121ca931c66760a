package interfaces

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// Network identifies the chain the wallet provider is connected to.
type Network struct {
	ChainID uint64 `json:"chainId"`
	Name    string `json:"name"`
}

// ProviderEventKind distinguishes provider notifications.
type ProviderEventKind int

const (
	AccountsChanged ProviderEventKind = iota
	ChainChanged
)

// ProviderEvent is an asynchronous notification from the wallet provider.
type ProviderEvent struct {
	Kind     ProviderEventKind
	Accounts []common.Address
	ChainID  uint64
}

// WalletProvider is the external signing identity capability.
type WalletProvider interface {
	IsPresent() bool

	// RequestAccounts asks the user to authorize the client.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// ListAuthorizedAccounts returns already authorized accounts without prompting.
	ListAuthorizedAccounts(ctx context.Context) ([]common.Address, error)

	GetNetwork(ctx context.Context) (Network, error)

	// Signer returns a signing capability for an authorized account.
	Signer(ctx context.Context, account common.Address) (Signer, error)

	// SubscribeEvents delivers provider notifications to ch.
	SubscribeEvents(ch chan<- ProviderEvent) event.Subscription
}

// Signer authorizes submissions on behalf of a single account on a single chain.
// Implementations must be comparable (pointer types) since the binding detects
// signer changes by identity.
type Signer interface {
	Address() common.Address
	ChainID() *big.Int
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}
