// Package gateway is the façade every registry operation goes through.
//
// Mutations run a four-phase protocol: check that a registry handle exists,
// announce the intent, submit and announce the transaction hash, then wait
// for confirmation and announce the outcome. Failures at any phase after the
// first are normalized to a single message, recorded as exactly one Error
// notification and returned as an *OperationError. Reads produce no
// notifications.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/ruteri/supplychain-registry-client/metrics"
	"github.com/ruteri/supplychain-registry-client/registry"
)

// Operation labels, used as error message prefixes.
const (
	OpRegister     = "Registration"
	OpTransfer     = "Transfer"
	OpStatusUpdate = "Status update"
)

const (
	msgNotInitialized     = "Contract not initialized"
	msgTransactionFailed  = "Transaction failed"
	prefixDetailsFailed   = "Failed to get component details"
	prefixHistoryFailed   = "Failed to get component history"
	defaultConfirmTimeout = 0
)

// HandleSource provides the current registry handle, nil when unavailable.
type HandleSource interface {
	Handle() interfaces.RegistryHandle
}

// Notifier records user-visible progress.
type Notifier interface {
	ShowPending(message string) string
	ShowSuccess(message string) string
	ShowError(message string) string
	Dismiss(id string)
}

// RegisterResult is returned by a successful RegisterComponent.
type RegisterResult struct {
	Success     bool   `json:"success"`
	ComponentID string `json:"componentId"`
	TxHash      string `json:"txHash"`
}

// TxResult is returned by successful transfers and status updates.
type TxResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
}

// Gateway holds no registry state; it resolves the handle on every call.
type Gateway struct {
	handles        HandleSource
	notifier       Notifier
	log            *slog.Logger
	metrics        *metrics.Metrics
	confirmTimeout time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// WithMetrics records operation outcomes and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithConfirmTimeout bounds how long a mutation waits for confirmation.
// Zero waits as long as the caller's context allows.
func WithConfirmTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.confirmTimeout = d }
}

// New creates a gateway.
func New(handles HandleSource, notifier Notifier, opts ...Option) *Gateway {
	g := &Gateway{
		handles:        handles,
		notifier:       notifier,
		log:            slog.Default(),
		confirmTimeout: defaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// mutation describes one run of the four-phase protocol.
type mutation struct {
	op      string
	metric  string
	intent  string
	// check validates arguments against the handle execute resolved. Optional.
	check   func() error
	submit  func(ctx context.Context, h interfaces.RegistryHandle) (interfaces.PendingTx, error)
	success func(conf *interfaces.Confirmation) string
}

// execute runs m and returns the transaction hash and confirmation.
func (g *Gateway) execute(ctx context.Context, m mutation) (common.Hash, *interfaces.Confirmation, error) {
	start := time.Now()

	handle := g.handles.Handle()
	if handle == nil {
		err := &OperationError{Op: m.op, Kind: interfaces.ErrBindingUnavailable, Message: msgNotInitialized}
		g.metrics.ObserveOperation(m.metric, err, time.Since(start))
		return common.Hash{}, nil, err
	}

	if m.check != nil {
		if err := m.check(); err != nil {
			return common.Hash{}, nil, g.invalid(m.op, m.metric, err.Error())
		}
	}

	var pending []string
	defer func() {
		for _, id := range pending {
			g.notifier.Dismiss(id)
		}
	}()

	pending = append(pending, g.notifier.ShowPending(m.intent))

	tx, err := m.submit(ctx, handle)
	if err != nil {
		return common.Hash{}, nil, g.fail(m, interfaces.ErrRemoteCallFailed, err, start)
	}
	hash := tx.Hash()
	pending = append(pending, g.notifier.ShowPending("Transaction sent: "+hash.Hex()))
	g.log.Info("Transaction submitted", slog.String("op", m.op), slog.String("tx", hash.Hex()))

	waitCtx := ctx
	if g.confirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.confirmTimeout)
		defer cancel()
	}

	conf, err := tx.Wait(waitCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			timeoutErr := fmt.Errorf("confirmation not received within %s", g.confirmTimeout)
			return hash, nil, g.fail(m, interfaces.ErrTimeout, timeoutErr, start)
		}
		return hash, nil, g.fail(m, interfaces.ErrRemoteCallFailed, err, start)
	}
	if conf == nil || !conf.Success {
		return hash, conf, g.fail(m, interfaces.ErrTransactionFailed, errors.New(msgTransactionFailed), start)
	}

	g.notifier.ShowSuccess(m.success(conf))
	g.metrics.ObserveOperation(m.metric, nil, time.Since(start))
	g.log.Info("Transaction confirmed",
		slog.String("op", m.op),
		slog.String("tx", hash.Hex()),
		slog.Uint64("block", conf.BlockNumber),
		slog.Duration("duration", time.Since(start)))

	return hash, conf, nil
}

// fail normalizes err, records the Error notification and returns the OperationError.
func (g *Gateway) fail(m mutation, kind error, err error, start time.Time) error {
	opErr := &OperationError{
		Op:      m.op,
		Kind:    kind,
		Message: ErrorMessage(err),
		Err:     err,
	}
	g.notifier.ShowError(opErr.Error())
	g.metrics.ObserveOperation(m.metric, opErr, time.Since(start))
	g.log.Warn("Registry operation failed", slog.String("op", m.op), "err", err)
	return opErr
}

// invalid records an input error. The handle exists, so the user is told.
func (g *Gateway) invalid(op, metric, message string) error {
	opErr := &OperationError{Op: op, Kind: interfaces.ErrInvalidInput, Message: message}
	g.notifier.ShowError(opErr.Error())
	g.metrics.ObserveOperation(metric, opErr, 0)
	return opErr
}

// RegisterComponent registers a new component owned by the signer.
func (g *Gateway) RegisterComponent(ctx context.Context, name, description, initialMetadata string) (*RegisterResult, error) {
	var componentID string

	hash, _, err := g.execute(ctx, mutation{
		op:     OpRegister,
		metric: "register",
		intent: "Registering component...",
		submit: func(ctx context.Context, h interfaces.RegistryHandle) (interfaces.PendingTx, error) {
			return h.RegisterComponent(ctx, name, description, initialMetadata)
		},
		success: func(conf *interfaces.Confirmation) string {
			componentID = registeredID(conf)
			return "Component registered successfully! ID: " + componentID
		},
	})
	if err != nil {
		return nil, err
	}

	return &RegisterResult{Success: true, ComponentID: componentID, TxHash: hash.Hex()}, nil
}

// registeredID reads componentId from the confirmation's first event.
func registeredID(conf *interfaces.Confirmation) string {
	if len(conf.Events) == 0 {
		return ""
	}
	switch id := conf.Events[0].Args["componentId"].(type) {
	case *big.Int:
		if id != nil {
			return id.String()
		}
	case string:
		return id
	}
	return ""
}

// TransferOwnership transfers componentID to newOwner.
func (g *Gateway) TransferOwnership(ctx context.Context, componentID, newOwner string) (*TxResult, error) {
	var id *big.Int

	hash, _, err := g.execute(ctx, mutation{
		op:     OpTransfer,
		metric: "transfer",
		intent: "Transferring ownership...",
		check: func() error {
			var ok bool
			if id, ok = interfaces.ParseComponentID(componentID); !ok {
				return fmt.Errorf("invalid component id %q", componentID)
			}
			if !common.IsHexAddress(newOwner) {
				return fmt.Errorf("invalid address %q", newOwner)
			}
			return nil
		},
		submit: func(ctx context.Context, h interfaces.RegistryHandle) (interfaces.PendingTx, error) {
			return h.TransferOwnership(ctx, id, common.HexToAddress(newOwner))
		},
		success: func(*interfaces.Confirmation) string {
			return "Ownership transferred successfully!"
		},
	})
	if err != nil {
		return nil, err
	}

	return &TxResult{Success: true, TxHash: hash.Hex()}, nil
}

// UpdateComponentStatus sets the component's status.
func (g *Gateway) UpdateComponentStatus(ctx context.Context, componentID, newStatus, details string) (*TxResult, error) {
	var id *big.Int

	hash, _, err := g.execute(ctx, mutation{
		op:     OpStatusUpdate,
		metric: "update_status",
		intent: "Updating status...",
		check: func() error {
			var ok bool
			if id, ok = interfaces.ParseComponentID(componentID); !ok {
				return fmt.Errorf("invalid component id %q", componentID)
			}
			return nil
		},
		submit: func(ctx context.Context, h interfaces.RegistryHandle) (interfaces.PendingTx, error) {
			return h.UpdateComponentStatus(ctx, id, newStatus, details)
		},
		success: func(*interfaces.Confirmation) string {
			return "Status updated successfully!"
		},
	})
	if err != nil {
		return nil, err
	}

	return &TxResult{Success: true, TxHash: hash.Hex()}, nil
}

// GetComponentDetails reads a component.
func (g *Gateway) GetComponentDetails(ctx context.Context, componentID string) (*interfaces.Component, error) {
	handle, id, err := g.readPreconditions(prefixDetailsFailed, componentID)
	if err != nil {
		return nil, err
	}

	record, err := handle.GetComponentDetails(ctx, id)
	if err != nil {
		return nil, &QueryError{Prefix: prefixDetailsFailed, Kind: interfaces.ErrRemoteCallFailed, Message: ErrorMessage(err), Err: err}
	}

	return &interfaces.Component{
		ID:              decimal(record.Id),
		Name:            record.Name,
		Description:     record.Description,
		CurrentOwner:    record.CurrentOwner.Hex(),
		CurrentStatus:   record.CurrentStatus,
		Timestamp:       decimal(record.Timestamp),
		InitialMetadata: record.InitialMetadata,
	}, nil
}

// GetComponentHistory reads a component's history, oldest first.
func (g *Gateway) GetComponentHistory(ctx context.Context, componentID string) ([]interfaces.HistoryEntry, error) {
	handle, id, err := g.readPreconditions(prefixHistoryFailed, componentID)
	if err != nil {
		return nil, err
	}

	records, err := handle.GetComponentHistory(ctx, id)
	if err != nil {
		return nil, &QueryError{Prefix: prefixHistoryFailed, Kind: interfaces.ErrRemoteCallFailed, Message: ErrorMessage(err), Err: err}
	}

	history := make([]interfaces.HistoryEntry, 0, len(records))
	for _, r := range records {
		history = append(history, interfaces.HistoryEntry{
			Action:    r.Action,
			Details:   r.Details,
			By:        r.By.Hex(),
			Timestamp: decimal(r.Timestamp),
		})
	}
	return history, nil
}

func (g *Gateway) readPreconditions(prefix, componentID string) (interfaces.RegistryHandle, *big.Int, error) {
	handle := g.handles.Handle()
	if handle == nil {
		return nil, nil, &QueryError{Prefix: prefix, Kind: interfaces.ErrBindingUnavailable, Message: msgNotInitialized}
	}
	id, ok := interfaces.ParseComponentID(componentID)
	if !ok {
		return nil, nil, &QueryError{Prefix: prefix, Kind: interfaces.ErrInvalidInput, Message: fmt.Sprintf("invalid component id %q", componentID)}
	}
	return handle, id, nil
}

// HasRole reports whether account holds role. role is a role name or a
// 0x-prefixed hash. Any failure is logged and reported as false.
func (g *Gateway) HasRole(ctx context.Context, role, account string) bool {
	handle := g.handles.Handle()
	if handle == nil {
		g.log.Warn("Failed to check role", "err", interfaces.ErrBindingUnavailable)
		return false
	}

	roleID, err := registry.ParseRole(role)
	if err != nil {
		g.log.Warn("Failed to check role", slog.String("role", role), "err", err)
		return false
	}
	if !common.IsHexAddress(account) {
		g.log.Warn("Failed to check role", slog.String("account", account), "err", interfaces.ErrInvalidInput)
		return false
	}

	has, err := handle.HasRole(ctx, roleID, common.HexToAddress(account))
	if err != nil {
		g.log.Warn("Failed to check role", slog.String("role", role), "err", err)
		return false
	}
	return has
}

func decimal(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
