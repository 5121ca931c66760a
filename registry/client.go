package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted by a handle without a signer.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// Backend is what the client needs from the chain: calls, transactions, log
// subscriptions and receipts. *ethclient.Client and simulated clients satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Client implements interfaces.RegistryHandle for a registry contract
// deployed on an Ethereum-compatible chain.
type Client struct {
	contract *bind.BoundContract
	parsed   abi.ABI
	backend  Backend
	address  common.Address
	signer   interfaces.Signer
	log      *slog.Logger

	mu     sync.Mutex
	subs   []event.Subscription
	closed bool
}

// NewClient binds the registry at address. signer may be nil for a read-only client.
func NewClient(backend Backend, address common.Address, parsed abi.ABI, signer interfaces.Signer, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		parsed:   parsed,
		backend:  backend,
		address:  address,
		signer:   signer,
		log:      log,
	}
}

// Address returns the registry contract address.
func (c *Client) Address() common.Address {
	return c.address
}

// RegisterComponent submits registerComponent.
func (c *Client) RegisterComponent(ctx context.Context, name, description, initialMetadata string) (interfaces.PendingTx, error) {
	return c.transact(ctx, MethodRegisterComponent, name, description, initialMetadata)
}

// TransferOwnership submits transferOwnership.
func (c *Client) TransferOwnership(ctx context.Context, componentID *big.Int, newOwner common.Address) (interfaces.PendingTx, error) {
	return c.transact(ctx, MethodTransferOwnership, componentID, newOwner)
}

// UpdateComponentStatus submits updateComponentStatus.
func (c *Client) UpdateComponentStatus(ctx context.Context, componentID *big.Int, newStatus, details string) (interfaces.PendingTx, error) {
	return c.transact(ctx, MethodUpdateComponentStatus, componentID, newStatus, details)
}

func (c *Client) transact(ctx context.Context, method string, params ...interface{}) (interfaces.PendingTx, error) {
	if c.signer == nil {
		return nil, ErrNoTransactOpts
	}

	auth, err := c.signer.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not obtain transact opts: %w", err)
	}
	opts := *auth
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, err
	}

	c.log.Debug("Submitted registry transaction",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.String("from", opts.From.Hex()))

	return &pendingTx{tx: tx, client: c}, nil
}

// GetComponentDetails calls getComponentDetails.
func (c *Client) GetComponentDetails(ctx context.Context, componentID *big.Int) (*interfaces.ComponentRecord, error) {
	out, err := c.call(ctx, MethodGetComponentDetails, componentID)
	if err != nil {
		return nil, err
	}

	record := new(interfaces.ComponentRecord)
	if err := convertOutput(out, record); err != nil {
		return nil, err
	}
	return record, nil
}

// GetComponentHistory calls getComponentHistory.
func (c *Client) GetComponentHistory(ctx context.Context, componentID *big.Int) ([]interfaces.HistoryRecord, error) {
	out, err := c.call(ctx, MethodGetComponentHistory, componentID)
	if err != nil {
		return nil, err
	}

	var history []interfaces.HistoryRecord
	if err := convertOutput(out, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// HasRole calls hasRole.
func (c *Client) HasRole(ctx context.Context, role [32]byte, account common.Address) (bool, error) {
	out, err := c.call(ctx, MethodHasRole, role, account)
	if err != nil {
		return false, err
	}

	var has bool
	if err := convertOutput(out, &has); err != nil {
		return false, err
	}
	return has, nil
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	opts := &bind.CallOpts{Context: ctx}
	if c.signer != nil {
		opts.From = c.signer.Address()
	}

	var out []interface{}
	if err := c.contract.Call(opts, &out, method, params...); err != nil {
		return nil, err
	}
	return out, nil
}

// convertOutput copies the first call output into dst, a pointer. A descriptor
// ABI whose output shape does not match dst yields an error rather than a panic.
func convertOutput(out []interface{}, dst interface{}) (err error) {
	if len(out) == 0 {
		return errors.New("empty call result")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected call result shape: %v", r)
		}
	}()
	abi.ConvertType(out[0], dst)
	return nil
}

// WatchEvent subscribes to the named contract event. Removed (reorged) logs
// are skipped. The returned subscription stops the watcher when unsubscribed.
func (c *Client) WatchEvent(name string, cb func(interfaces.RegistryEvent)) (event.Subscription, error) {
	if _, ok := c.parsed.Events[name]; !ok {
		return nil, fmt.Errorf("event %s not in registry abi", name)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, errors.New("registry client closed")
	}

	logs, sub, err := c.contract.WatchLogs(&bind.WatchOpts{Context: context.Background()}, name)
	if err != nil {
		return nil, err
	}

	watcher := event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case log := <-logs:
				if log.Removed {
					continue
				}
				ev, err := c.decodeLog(name, log)
				if err != nil {
					c.log.Warn("Failed to decode registry event", slog.String("event", name), "err", err)
					continue
				}
				cb(ev)
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})

	c.mu.Lock()
	c.subs = append(c.subs, watcher)
	c.mu.Unlock()

	return watcher, nil
}

func (c *Client) decodeLog(name string, log types.Log) (interfaces.RegistryEvent, error) {
	args := make(map[string]interface{})
	if err := c.contract.UnpackLogIntoMap(args, name, log); err != nil {
		return interfaces.RegistryEvent{}, err
	}
	return interfaces.RegistryEvent{
		Name:        name,
		Args:        args,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
	}, nil
}

// decodeReceiptLogs decodes the registry events emitted in a receipt, in log order.
func (c *Client) decodeReceiptLogs(logs []*types.Log) []interfaces.RegistryEvent {
	var events []interfaces.RegistryEvent
	for _, log := range logs {
		if log == nil || log.Address != c.address || len(log.Topics) == 0 {
			continue
		}
		abiEvent, err := c.parsed.EventByID(log.Topics[0])
		if err != nil {
			continue
		}
		ev, err := c.decodeLog(abiEvent.Name, *log)
		if err != nil {
			c.log.Warn("Failed to decode receipt log", slog.String("event", abiEvent.Name), "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events
}

// Close stops every event watcher started by this client.
func (c *Client) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.closed = true
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

type pendingTx struct {
	tx     *types.Transaction
	client *Client
}

func (p *pendingTx) Hash() common.Hash {
	return p.tx.Hash()
}

// Wait blocks until the transaction is mined and decodes its registry events.
func (p *pendingTx) Wait(ctx context.Context) (*interfaces.Confirmation, error) {
	receipt, err := bind.WaitMined(ctx, p.client.backend, p.tx)
	if err != nil {
		return nil, err
	}

	conf := &interfaces.Confirmation{
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		Events:  p.client.decodeReceiptLogs(receipt.Logs),
	}
	if receipt.BlockNumber != nil {
		conf.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return conf, nil
}
