package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/ruteri/supplychain-registry-client/metrics"
	"github.com/ruteri/supplychain-registry-client/notify"
	"github.com/ruteri/supplychain-registry-client/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	txHash   = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

type staticHandles struct {
	handle interfaces.RegistryHandle
}

func (s staticHandles) Handle() interfaces.RegistryHandle { return s.handle }

type testSigner struct {
	addr common.Address
}

func (s *testSigner) Address() common.Address { return s.addr }
func (s *testSigner) ChainID() *big.Int        { return big.NewInt(1337) }
func (s *testSigner) TransactOpts(context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: s.addr}, nil
}

type shown struct {
	kind    interfaces.NotificationKind
	message string
}

// recordingNotifier keeps every notification ever shown, in order.
type recordingNotifier struct {
	mu        sync.Mutex
	shown     []shown
	dismissed []string
}

func (r *recordingNotifier) show(kind interfaces.NotificationKind, message string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, shown{kind: kind, message: message})
	return message
}

func (r *recordingNotifier) ShowPending(message string) string {
	return r.show(interfaces.NotificationPending, message)
}

func (r *recordingNotifier) ShowSuccess(message string) string {
	return r.show(interfaces.NotificationSuccess, message)
}

func (r *recordingNotifier) ShowError(message string) string {
	return r.show(interfaces.NotificationError, message)
}

func (r *recordingNotifier) Dismiss(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissed = append(r.dismissed, id)
}

func (r *recordingNotifier) errors() []string {
	var out []string
	for _, s := range r.shown {
		if s.kind == interfaces.NotificationError {
			out = append(out, s.message)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(handle interfaces.RegistryHandle, n Notifier, opts ...Option) *Gateway {
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	return New(staticHandles{handle: handle}, n, opts...)
}

func TestRegisterComponent_Success(t *testing.T) {
	ctx := context.Background()
	handle := new(registry.MockHandle)
	tx := new(registry.MockPendingTx)

	handle.On("RegisterComponent", mock.Anything, "Bolt", "M8 steel", "{}").Return(tx, nil)
	tx.On("Hash").Return(txHash)
	tx.On("Wait", mock.Anything).Return(&interfaces.Confirmation{
		Success:     true,
		BlockNumber: 7,
		Events: []interfaces.RegistryEvent{{
			Name: registry.EventComponentRegistered,
			Args: map[string]interface{}{"componentId": big.NewInt(42)},
		}},
	}, nil)

	n := &recordingNotifier{}
	g := newTestGateway(handle, n)

	result, err := g.RegisterComponent(ctx, "Bolt", "M8 steel", "{}")
	require.NoError(t, err)
	assert.Equal(t, &RegisterResult{Success: true, ComponentID: "42", TxHash: txHash.Hex()}, result)

	assert.Equal(t, []shown{
		{interfaces.NotificationPending, "Registering component..."},
		{interfaces.NotificationPending, "Transaction sent: " + txHash.Hex()},
		{interfaces.NotificationSuccess, "Component registered successfully! ID: 42"},
	}, n.shown)
	// both pending entries are dismissed once the outcome is known
	assert.Equal(t, []string{"Registering component...", "Transaction sent: " + txHash.Hex()}, n.dismissed)

	handle.AssertExpectations(t)
	tx.AssertExpectations(t)
}

func TestRegisterComponent_RevertReason(t *testing.T) {
	handle := new(registry.MockHandle)
	reverted := fakeRevert{reason: "execution reverted: not owner"}
	handle.On("RegisterComponent", mock.Anything, "Bolt", "", "").Return(nil, reverted)

	center := notify.NewCenter(notify.WithClock(clock.NewMock()), notify.WithLogger(testLogger()))
	g := newTestGateway(handle, center)

	result, err := g.RegisterComponent(context.Background(), "Bolt", "", "")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, "Registration failed: execution reverted: not owner", err.Error())
	assert.ErrorIs(t, err, interfaces.ErrRemoteCallFailed)

	var errorMessages []string
	for _, notification := range center.Notifications() {
		if notification.Kind == interfaces.NotificationError {
			errorMessages = append(errorMessages, notification.Message)
		}
	}
	assert.Equal(t, []string{"Registration failed: execution reverted: not owner"}, errorMessages)
}

type fakeRevert struct {
	reason string
}

func (f fakeRevert) Error() string  { return "call failed" }
func (f fakeRevert) Reason() string { return f.reason }

type fakeDataError struct {
	message string
	data    interface{}
}

func (f fakeDataError) Error() string          { return f.message }
func (f fakeDataError) ErrorCode() int         { return 3 }
func (f fakeDataError) ErrorData() interface{} { return f.data }

func TestMutations_Failures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *registry.MockHandle, tx *registry.MockPendingTx)
		run       func(g *Gateway) error
		kind      error
		wantError string
	}{
		{
			name: "submission rejected",
			setup: func(h *registry.MockHandle, tx *registry.MockPendingTx) {
				h.On("TransferOwnership", mock.Anything, big.NewInt(1), stranger).
					Return(nil, errors.New("user rejected transaction"))
			},
			run: func(g *Gateway) error {
				_, err := g.TransferOwnership(context.Background(), "1", stranger.Hex())
				return err
			},
			kind:      interfaces.ErrRemoteCallFailed,
			wantError: "Transfer failed: user rejected transaction",
		},
		{
			name: "message from error data",
			setup: func(h *registry.MockHandle, tx *registry.MockPendingTx) {
				h.On("UpdateComponentStatus", mock.Anything, big.NewInt(3), "Shipped", "").
					Return(nil, fakeDataError{message: "internal", data: map[string]interface{}{"message": "insufficient funds"}})
			},
			run: func(g *Gateway) error {
				_, err := g.UpdateComponentStatus(context.Background(), "3", "Shipped", "")
				return err
			},
			kind:      interfaces.ErrRemoteCallFailed,
			wantError: "Status update failed: insufficient funds",
		},
		{
			name: "confirmation reports failure",
			setup: func(h *registry.MockHandle, tx *registry.MockPendingTx) {
				h.On("UpdateComponentStatus", mock.Anything, big.NewInt(3), "Shipped", "dock 4").Return(tx, nil)
				tx.On("Hash").Return(txHash)
				tx.On("Wait", mock.Anything).Return(&interfaces.Confirmation{Success: false}, nil)
			},
			run: func(g *Gateway) error {
				_, err := g.UpdateComponentStatus(context.Background(), "3", "Shipped", "dock 4")
				return err
			},
			kind:      interfaces.ErrTransactionFailed,
			wantError: "Status update failed: Transaction failed",
		},
		{
			name: "error without text",
			setup: func(h *registry.MockHandle, tx *registry.MockPendingTx) {
				h.On("RegisterComponent", mock.Anything, "x", "", "").Return(nil, errors.New(""))
			},
			run: func(g *Gateway) error {
				_, err := g.RegisterComponent(context.Background(), "x", "", "")
				return err
			},
			kind:      interfaces.ErrRemoteCallFailed,
			wantError: "Registration failed: Unknown error occurred",
		},
		{
			name:  "invalid component id",
			setup: func(h *registry.MockHandle, tx *registry.MockPendingTx) {},
			run: func(g *Gateway) error {
				_, err := g.TransferOwnership(context.Background(), "abc", stranger.Hex())
				return err
			},
			kind:      interfaces.ErrInvalidInput,
			wantError: `Transfer failed: invalid component id "abc"`,
		},
		{
			name:  "invalid new owner",
			setup: func(h *registry.MockHandle, tx *registry.MockPendingTx) {},
			run: func(g *Gateway) error {
				_, err := g.TransferOwnership(context.Background(), "1", "not-an-address")
				return err
			},
			kind:      interfaces.ErrInvalidInput,
			wantError: `Transfer failed: invalid address "not-an-address"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle := new(registry.MockHandle)
			tx := new(registry.MockPendingTx)
			tt.setup(handle, tx)

			n := &recordingNotifier{}
			g := newTestGateway(handle, n)

			err := tt.run(g)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.wantError, err.Error())
			assert.Equal(t, []string{tt.wantError}, n.errors())

			handle.AssertExpectations(t)
		})
	}
}

func TestMutations_NoBinding(t *testing.T) {
	n := &recordingNotifier{}
	g := New(staticHandles{}, n, WithLogger(testLogger()))

	_, err := g.RegisterComponent(context.Background(), "Bolt", "", "")
	assert.ErrorIs(t, err, interfaces.ErrBindingUnavailable)

	_, err = g.TransferOwnership(context.Background(), "nope", "nope")
	assert.ErrorIs(t, err, interfaces.ErrBindingUnavailable)

	_, err = g.UpdateComponentStatus(context.Background(), "1", "Shipped", "")
	assert.ErrorIs(t, err, interfaces.ErrBindingUnavailable)

	assert.Empty(t, n.shown)
}

// lateHandles reports no handle on its first lookup and handle afterwards.
type lateHandles struct {
	lookups atomic.Int32
	handle  interfaces.RegistryHandle
}

func (l *lateHandles) Handle() interfaces.RegistryHandle {
	if l.lookups.Add(1) == 1 {
		return nil
	}
	return l.handle
}

func TestMutations_HandleResolvedOnce(t *testing.T) {
	handle := new(registry.MockHandle)
	handles := &lateHandles{handle: handle}
	n := &recordingNotifier{}
	g := New(handles, n, WithLogger(testLogger()))

	// the handle connects while the call is in flight; the call must not use it
	_, err := g.TransferOwnership(context.Background(), "not-a-number", stranger.Hex())
	assert.ErrorIs(t, err, interfaces.ErrBindingUnavailable)
	assert.Empty(t, n.shown)
	assert.Equal(t, int32(1), handles.lookups.Load())

	_, err = g.TransferOwnership(context.Background(), "not-a-number", stranger.Hex())
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)
	_, err = g.UpdateComponentStatus(context.Background(), "-1", "Shipped", "")
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)
	assert.Len(t, n.errors(), 2)

	handle.AssertNotCalled(t, "TransferOwnership", mock.Anything, mock.Anything, mock.Anything)
	handle.AssertNotCalled(t, "UpdateComponentStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMutations_ConcurrentWhileConfirming(t *testing.T) {
	handle := new(registry.MockHandle)
	slow := new(registry.MockPendingTx)
	fast := new(registry.MockPendingTx)
	fastHash := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")

	waiting := make(chan struct{})
	release := make(chan struct{})

	handle.On("RegisterComponent", mock.Anything, "Slow", "", "").Return(slow, nil)
	handle.On("RegisterComponent", mock.Anything, "Fast", "", "").Return(fast, nil)
	slow.On("Hash").Return(txHash)
	slow.On("Wait", mock.Anything).Run(func(mock.Arguments) {
		close(waiting)
		<-release
	}).Return(&interfaces.Confirmation{Success: true}, nil)
	fast.On("Hash").Return(fastHash)
	fast.On("Wait", mock.Anything).Return(&interfaces.Confirmation{Success: true}, nil)

	n := &recordingNotifier{}
	g := newTestGateway(handle, n)

	slowDone := make(chan error, 1)
	go func() {
		_, err := g.RegisterComponent(context.Background(), "Slow", "", "")
		slowDone <- err
	}()

	select {
	case <-waiting:
	case <-time.After(2 * time.Second):
		t.Fatal("first registration never reached confirmation")
	}

	result, err := g.RegisterComponent(context.Background(), "Fast", "", "")
	require.NoError(t, err)
	assert.Equal(t, fastHash.Hex(), result.TxHash)

	select {
	case <-slowDone:
		t.Fatal("first registration finished before it was confirmed")
	default:
	}

	close(release)
	require.NoError(t, <-slowDone)
	assert.Empty(t, n.errors())

	handle.AssertExpectations(t)
	slow.AssertExpectations(t)
	fast.AssertExpectations(t)
}

func TestMutations_ConfirmTimeout(t *testing.T) {
	handle := new(registry.MockHandle)
	tx := new(registry.MockPendingTx)

	handle.On("RegisterComponent", mock.Anything, "Bolt", "", "").Return(tx, nil)
	tx.On("Hash").Return(txHash)
	tx.On("Wait", mock.Anything).Return(nil, context.DeadlineExceeded).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	})

	n := &recordingNotifier{}
	g := newTestGateway(handle, n, WithConfirmTimeout(10*time.Millisecond))

	_, err := g.RegisterComponent(context.Background(), "Bolt", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrTimeout)
	assert.Equal(t, "Registration failed: confirmation not received within 10ms", err.Error())
	require.Len(t, n.errors(), 1)
}

func TestMutations_MetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)

	registryState := registry.NewMemoryRegistry(common.HexToAddress(registryAddressHex), owner)
	g := newTestGateway(registryState.Handle(&testSigner{addr: owner}), &recordingNotifier{}, WithMetrics(m))

	_, err := g.RegisterComponent(context.Background(), "Bolt", "", "")
	require.NoError(t, err)
	_, err = g.RegisterComponent(context.Background(), "", "", "")
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	outcomes := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "test_registry_operations_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["operation"] == "register" {
				outcomes[labels["outcome"]] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{metrics.OutcomeSuccess: 1, metrics.OutcomeFailure: 1}, outcomes)
}

const registryAddressHex = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestGateway_MemoryRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	state := registry.NewMemoryRegistry(common.HexToAddress(registryAddressHex), owner)

	center := notify.NewCenter(notify.WithClock(clock.NewMock()), notify.WithLogger(testLogger()))
	g := newTestGateway(state.Handle(&testSigner{addr: owner}), center)

	registered, err := g.RegisterComponent(ctx, "Bolt", "M8 steel", `{"lot":1}`)
	require.NoError(t, err)
	assert.Equal(t, "1", registered.ComponentID)

	_, err = g.UpdateComponentStatus(ctx, "1", "Shipped", "dock 4")
	require.NoError(t, err)

	_, err = g.TransferOwnership(ctx, "1", stranger.Hex())
	require.NoError(t, err)

	// the previous owner may no longer update
	_, err = g.UpdateComponentStatus(ctx, "1", "Installed", "")
	require.Error(t, err)
	assert.Equal(t, "Status update failed: execution reverted: not owner", err.Error())

	details, err := g.GetComponentDetails(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Shipped", details.CurrentStatus)
	assert.Equal(t, stranger.Hex(), details.CurrentOwner)

	history, err := g.GetComponentHistory(ctx, "1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Registered", history[0].Action)
	assert.Equal(t, "dock 4", history[1].Details)

	// no pending entries remain once every operation has resolved
	for _, notification := range center.Notifications() {
		assert.NotEqual(t, interfaces.NotificationPending, notification.Kind)
	}
}

func TestGetComponentDetails(t *testing.T) {
	handle := new(registry.MockHandle)
	handle.On("GetComponentDetails", mock.Anything, big.NewInt(42)).Return(&interfaces.ComponentRecord{
		Id:              big.NewInt(42),
		Name:            "Bolt",
		Description:     "M8 steel",
		CurrentOwner:    owner,
		CurrentStatus:   "Manufactured",
		Timestamp:       big.NewInt(1700000000),
		InitialMetadata: "{}",
	}, nil)
	handle.On("GetComponentDetails", mock.Anything, big.NewInt(7)).Return(nil, fakeRevert{reason: "execution reverted: component does not exist"})

	n := &recordingNotifier{}
	g := newTestGateway(handle, n)

	details, err := g.GetComponentDetails(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, &interfaces.Component{
		ID:              "42",
		Name:            "Bolt",
		Description:     "M8 steel",
		CurrentOwner:    owner.Hex(),
		CurrentStatus:   "Manufactured",
		Timestamp:       "1700000000",
		InitialMetadata: "{}",
	}, details)

	_, err = g.GetComponentDetails(context.Background(), "7")
	require.Error(t, err)
	assert.Equal(t, "Failed to get component details: execution reverted: component does not exist", err.Error())
	assert.ErrorIs(t, err, interfaces.ErrRemoteCallFailed)

	_, err = g.GetComponentDetails(context.Background(), "-1")
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)

	// reads never notify
	assert.Empty(t, n.shown)
}

func TestGetComponentHistory(t *testing.T) {
	handle := new(registry.MockHandle)
	handle.On("GetComponentHistory", mock.Anything, big.NewInt(5)).Return([]interfaces.HistoryRecord{
		{Action: "Registered", Details: "{}", By: owner, Timestamp: big.NewInt(100)},
		{Action: "StatusUpdated: Shipped", Details: "", By: owner, Timestamp: big.NewInt(200)},
	}, nil)

	g := newTestGateway(handle, &recordingNotifier{})

	history, err := g.GetComponentHistory(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.HistoryEntry{
		{Action: "Registered", Details: "{}", By: owner.Hex(), Timestamp: "100"},
		{Action: "StatusUpdated: Shipped", Details: "", By: owner.Hex(), Timestamp: "200"},
	}, history)

	g = New(staticHandles{}, &recordingNotifier{}, WithLogger(testLogger()))
	_, err = g.GetComponentHistory(context.Background(), "5")
	assert.ErrorIs(t, err, interfaces.ErrBindingUnavailable)
	assert.Equal(t, "Failed to get component history: Contract not initialized", err.Error())
}

func TestHasRole(t *testing.T) {
	handle := new(registry.MockHandle)
	handle.On("HasRole", mock.Anything, [32]byte{}, owner).Return(true, nil)
	handle.On("HasRole", mock.Anything, [32]byte{}, stranger).Return(false, errors.New("rpc down"))

	g := newTestGateway(handle, &recordingNotifier{})

	assert.True(t, g.HasRole(context.Background(), "DEFAULT_ADMIN_ROLE", owner.Hex()))
	assert.False(t, g.HasRole(context.Background(), "DEFAULT_ADMIN_ROLE", stranger.Hex()))
	assert.False(t, g.HasRole(context.Background(), "DEFAULT_ADMIN_ROLE", "bogus"))
	assert.False(t, g.HasRole(context.Background(), "0x1234", owner.Hex()))

	g = New(staticHandles{}, &recordingNotifier{}, WithLogger(testLogger()))
	assert.False(t, g.HasRole(context.Background(), "DEFAULT_ADMIN_ROLE", owner.Hex()))
}

func TestErrorMessage(t *testing.T) {
	// Error(string) selector followed by the ABI encoding of "not owner"
	revertData := "0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"0000000000000000000000000000000000000000000000000000000000000009" +
		"6e6f74206f776e65720000000000000000000000000000000000000000000000"

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "Unknown error occurred"},
		{"reason", fakeRevert{reason: "execution reverted: not owner"}, "execution reverted: not owner"},
		{"wrapped reason", errors.Join(errors.New("outer"), fakeRevert{reason: "r"}), "r"},
		{"encoded revert data", fakeDataError{message: "execution reverted", data: revertData}, "execution reverted: not owner"},
		{"data message", fakeDataError{message: "x", data: map[string]interface{}{"message": "nonce too low"}}, "nonce too low"},
		{"blank data message", fakeDataError{message: "x", data: map[string]interface{}{"message": " "}}, "x"},
		{"plain", errors.New("boom"), "boom"},
		{"empty", errors.New(""), "Unknown error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorMessage(tt.err))
		})
	}
}
