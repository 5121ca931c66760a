// Package session implements the wallet connection state machine.
//
// A Session tracks an external wallet provider whose availability and identity
// can change outside the client's control. Every mutation publishes a full
// ConnectionState snapshot to subscribers. Connection failures are absorbed
// into the published state's ErrorMessage; Connect additionally returns them
// so command line callers can exit early.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/ruteri/supplychain-registry-client/pubsub"
)

const (
	msgProviderMissing = "wallet provider is not installed"
	msgNoAccounts      = "No accounts found"
)

// Session owns the ConnectionState.
type Session struct {
	provider interfaces.WalletProvider
	log      *slog.Logger

	mu    sync.Mutex
	state interfaces.ConnectionState
	// generation is bumped by every transition that invalidates in-flight
	// population (disconnect, a new connect, provider events)
	generation uint64

	pub pubsub.Publisher[interfaces.ConnectionState]
}

// New creates a disconnected session over provider. provider may be nil, which
// behaves like a provider that is not present.
func New(provider interfaces.WalletProvider, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		provider: provider,
		log:      log,
		state:    interfaces.ConnectionState{Status: interfaces.StatusDisconnected},
	}
}

// State returns the current snapshot.
func (s *Session) State() interfaces.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive every published snapshot.
func (s *Session) Subscribe(fn func(interfaces.ConnectionState)) (unsubscribe func()) {
	return s.pub.Subscribe(fn)
}

func (s *Session) providerPresent() bool {
	return s.provider != nil && s.provider.IsPresent()
}

// setLocked replaces the state and queues its publication. The caller flushes
// after releasing s.mu.
func (s *Session) setLocked(state interfaces.ConnectionState) {
	s.state = state
	s.pub.Enqueue(state)
}

// Init silently restores an already authorized session. It never passes
// through StatusConnecting and never prompts the user.
func (s *Session) Init(ctx context.Context) {
	if !s.providerPresent() {
		s.log.Debug("no wallet provider present, staying disconnected")
		return
	}

	accounts, err := s.provider.ListAuthorizedAccounts(ctx)
	if err != nil {
		s.log.Warn("Failed to list authorized accounts", "err", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	s.mu.Lock()
	if s.state.Status != interfaces.StatusDisconnected {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if err := s.populate(ctx, gen, accounts[0]); err != nil {
		s.log.Warn("Failed to restore authorized session", "err", err)
	}
}

// Connect requests account access from the provider. It is valid from
// StatusDisconnected and StatusError; while a connection attempt is already
// in progress, or once connected, it is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state.Status {
	case interfaces.StatusConnecting, interfaces.StatusConnected:
		s.mu.Unlock()
		return nil
	}

	if !s.providerPresent() {
		s.setLocked(errorState(msgProviderMissing))
		s.mu.Unlock()
		s.pub.Flush()
		return fmt.Errorf("%w: %s", interfaces.ErrProviderUnavailable, msgProviderMissing)
	}

	s.generation++
	gen := s.generation
	s.setLocked(interfaces.ConnectionState{Status: interfaces.StatusConnecting})
	s.mu.Unlock()
	s.pub.Flush()

	s.log.Info("Requesting wallet accounts")
	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		s.fail(gen, err.Error())
		return fmt.Errorf("%w: %v", interfaces.ErrUserRejected, err)
	}
	if len(accounts) == 0 {
		s.fail(gen, msgNoAccounts)
		return fmt.Errorf("%w: %s", interfaces.ErrUserRejected, msgNoAccounts)
	}

	return s.populate(ctx, gen, accounts[0])
}

// Disconnect resets the session to StatusDisconnected. It always succeeds and
// invalidates any connection attempt still in flight.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.generation++
	s.setLocked(interfaces.ConnectionState{Status: interfaces.StatusDisconnected})
	s.mu.Unlock()

	s.log.Info("Wallet disconnected")
	s.pub.Flush()
}

// populate reads the network and signer for account and, unless the attempt
// was superseded, transitions to StatusConnected.
func (s *Session) populate(ctx context.Context, gen uint64, account common.Address) error {
	network, err := s.provider.GetNetwork(ctx)
	if err != nil {
		s.fail(gen, fmt.Sprintf("could not read network: %v", err))
		return fmt.Errorf("%w: could not read network: %v", interfaces.ErrRemoteCallFailed, err)
	}

	signer, err := s.provider.Signer(ctx, account)
	if err != nil {
		s.fail(gen, fmt.Sprintf("could not obtain signer: %v", err))
		return fmt.Errorf("%w: could not obtain signer: %v", interfaces.ErrRemoteCallFailed, err)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.log.Debug("discarding superseded connection attempt", slog.String("account", account.Hex()))
		return nil
	}
	acct := account
	chainID := network.ChainID
	s.setLocked(interfaces.ConnectionState{
		Status:      interfaces.StatusConnected,
		Account:     &acct,
		ChainID:     &chainID,
		NetworkName: network.Name,
		Signer:      signer,
	})
	s.mu.Unlock()

	s.log.Info("Wallet connected",
		slog.String("account", account.Hex()),
		slog.Uint64("chainId", chainID),
		slog.String("network", network.Name))
	s.pub.Flush()
	return nil
}

func (s *Session) fail(gen uint64, message string) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.setLocked(errorState(message))
	s.mu.Unlock()

	s.log.Warn("Wallet connection failed", slog.String("error", message))
	s.pub.Flush()
}

func errorState(message string) interfaces.ConnectionState {
	return interfaces.ConnectionState{
		Status:       interfaces.StatusError,
		ErrorMessage: message,
	}
}

// HandleProviderEvent applies an asynchronous provider notification.
//
// An empty account list is equivalent to Disconnect. A non-empty list
// re-enters the connected population with the primary account, even when the
// session is currently disconnected. A chain change re-populates the
// connected state with a fresh signer, which forces every derived binding and
// its event subscriptions to be rebuilt.
func (s *Session) HandleProviderEvent(ctx context.Context, ev interfaces.ProviderEvent) {
	switch ev.Kind {
	case interfaces.AccountsChanged:
		if len(ev.Accounts) == 0 {
			s.Disconnect()
			return
		}
		s.mu.Lock()
		s.generation++
		gen := s.generation
		s.mu.Unlock()

		s.log.Info("Wallet accounts changed", slog.String("account", ev.Accounts[0].Hex()))
		if err := s.populate(ctx, gen, ev.Accounts[0]); err != nil {
			s.log.Warn("Failed to apply account change", "err", err)
		}

	case interfaces.ChainChanged:
		s.mu.Lock()
		if s.state.Status != interfaces.StatusConnected || s.state.Account == nil {
			s.mu.Unlock()
			s.log.Debug("chain changed while not connected", slog.Uint64("chainId", ev.ChainID))
			return
		}
		account := *s.state.Account
		s.generation++
		gen := s.generation
		s.mu.Unlock()

		s.log.Info("Wallet chain changed", slog.Uint64("chainId", ev.ChainID))
		if err := s.populate(ctx, gen, account); err != nil {
			s.log.Warn("Failed to apply chain change", "err", err)
		}
	}
}

// Start forwards provider notifications to HandleProviderEvent until ctx is
// done or the provider subscription fails.
func (s *Session) Start(ctx context.Context) error {
	if !s.providerPresent() {
		return interfaces.ErrProviderUnavailable
	}

	events := make(chan interfaces.ProviderEvent, 16)
	sub := s.provider.SubscribeEvents(events)
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-events:
			s.HandleProviderEvent(ctx, ev)
		case err := <-sub.Err():
			if err == nil {
				return nil
			}
			return fmt.Errorf("provider event subscription failed: %w", err)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}
