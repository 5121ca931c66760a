package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// ChainReader reports the chain the provider signs for. *ethclient.Client
// satisfies it.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Approver decides whether accounts may be exposed to the client. A non-nil
// error is treated as the user declining.
type Approver func(ctx context.Context, accounts []common.Address) error

// ApproveAll grants every request.
func ApproveAll(context.Context, []common.Address) error { return nil }

// KeyedProvider is a WalletProvider over a fixed set of private keys.
type KeyedProvider struct {
	chain   ChainReader
	approve Approver
	clock   clock.Clock
	log     *slog.Logger

	keys  map[common.Address]*ecdsa.PrivateKey
	order []common.Address

	mu sync.Mutex
	// authorized is empty until accounts are requested; the first entry is selected
	authorized []common.Address

	feed event.Feed
}

// Option configures a KeyedProvider.
type Option func(*KeyedProvider)

// WithApprover sets the approval policy, ApproveAll by default.
func WithApprover(a Approver) Option {
	return func(p *KeyedProvider) { p.approve = a }
}

// WithPreauthorized makes every key visible without a request, as if the
// user had connected in an earlier session.
func WithPreauthorized() Option {
	return func(p *KeyedProvider) {
		p.authorized = append([]common.Address(nil), p.order...)
	}
}

// WithClock sets the clock used by WatchChain.
func WithClock(c clock.Clock) Option {
	return func(p *KeyedProvider) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *KeyedProvider) { p.log = log }
}

// NewKeyedProvider creates a provider for keys on the chain reported by chain.
// The first key is the default account.
func NewKeyedProvider(chain ChainReader, keys []*ecdsa.PrivateKey, opts ...Option) *KeyedProvider {
	p := &KeyedProvider{
		chain:   chain,
		approve: ApproveAll,
		clock:   clock.New(),
		log:     slog.Default(),
		keys:    make(map[common.Address]*ecdsa.PrivateKey, len(keys)),
	}
	for _, key := range keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := p.keys[addr]; dup {
			continue
		}
		p.keys[addr] = key
		p.order = append(p.order, addr)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KeyedProvider) IsPresent() bool {
	return p != nil
}

// RequestAccounts asks the approver to expose every held key.
func (p *KeyedProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	requested := p.orderedLocked()
	p.mu.Unlock()

	if err := p.approve(ctx, requested); err != nil {
		p.log.Info("Account request declined", "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUserRejected, err)
	}

	p.mu.Lock()
	p.authorized = requested
	out := append([]common.Address(nil), p.authorized...)
	p.mu.Unlock()

	return out, nil
}

// orderedLocked returns all keys, the currently selected one first.
func (p *KeyedProvider) orderedLocked() []common.Address {
	out := make([]common.Address, 0, len(p.order))
	if len(p.authorized) > 0 {
		out = append(out, p.authorized[0])
	}
	for _, addr := range p.order {
		if len(out) > 0 && out[0] == addr {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func (p *KeyedProvider) ListAuthorizedAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]common.Address(nil), p.authorized...), nil
}

func (p *KeyedProvider) GetNetwork(ctx context.Context) (interfaces.Network, error) {
	chainID, err := p.chain.ChainID(ctx)
	if err != nil {
		return interfaces.Network{}, fmt.Errorf("failed to read chain id: %w", err)
	}
	id := chainID.Uint64()
	return interfaces.Network{ChainID: id, Name: NetworkName(id)}, nil
}

// Signer returns a new signer for an authorized account on the current chain.
func (p *KeyedProvider) Signer(ctx context.Context, account common.Address) (interfaces.Signer, error) {
	p.mu.Lock()
	authorized := false
	for _, addr := range p.authorized {
		if addr == account {
			authorized = true
			break
		}
	}
	p.mu.Unlock()

	key, ok := p.keys[account]
	if !ok || !authorized {
		return nil, fmt.Errorf("%w: account %s is not authorized", interfaces.ErrUserRejected, account.Hex())
	}

	chainID, err := p.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	return NewKeyedSigner(key, chainID), nil
}

func (p *KeyedProvider) SubscribeEvents(ch chan<- interfaces.ProviderEvent) event.Subscription {
	return p.feed.Subscribe(ch)
}

// SwitchAccount selects account and announces the change.
func (p *KeyedProvider) SwitchAccount(account common.Address) error {
	if _, ok := p.keys[account]; !ok {
		return fmt.Errorf("%w: unknown account %s", interfaces.ErrInvalidInput, account.Hex())
	}

	p.mu.Lock()
	if len(p.authorized) == 0 {
		p.mu.Unlock()
		return errors.New("no accounts authorized")
	}
	p.authorized = append([]common.Address{account}, p.authorized...)
	p.authorized = dedupe(p.authorized)
	accounts := append([]common.Address(nil), p.authorized...)
	p.mu.Unlock()

	p.feed.Send(interfaces.ProviderEvent{Kind: interfaces.AccountsChanged, Accounts: accounts})
	return nil
}

// Revoke withdraws every authorization and announces an empty account list.
func (p *KeyedProvider) Revoke() {
	p.mu.Lock()
	p.authorized = nil
	p.mu.Unlock()

	p.feed.Send(interfaces.ProviderEvent{Kind: interfaces.AccountsChanged, Accounts: []common.Address{}})
}

// NotifyChainChanged announces the chain currently reported by the backend.
func (p *KeyedProvider) NotifyChainChanged(ctx context.Context) error {
	chainID, err := p.chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	p.feed.Send(interfaces.ProviderEvent{Kind: interfaces.ChainChanged, ChainID: chainID.Uint64()})
	return nil
}

// WatchChain polls the backend every interval and announces chain id changes
// until ctx is done.
func (p *KeyedProvider) WatchChain(ctx context.Context, interval time.Duration) error {
	current, err := p.chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	last := current.Uint64()

	ticker := p.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			chainID, err := p.chain.ChainID(ctx)
			if err != nil {
				p.log.Warn("Failed to poll chain id", "err", err)
				continue
			}
			if id := chainID.Uint64(); id != last {
				p.log.Info("Chain changed", slog.Uint64("from", last), slog.Uint64("to", id))
				last = id
				p.feed.Send(interfaces.ProviderEvent{Kind: interfaces.ChainChanged, ChainID: id})
			}
		}
	}
}

func dedupe(in []common.Address) []common.Address {
	seen := make(map[common.Address]bool, len(in))
	out := in[:0]
	for _, addr := range in {
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}
