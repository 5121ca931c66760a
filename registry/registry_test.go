package registry

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSigner struct {
	auth *bind.TransactOpts
}

func (s *testSigner) Address() common.Address { return s.auth.From }
func (s *testSigner) ChainID() *big.Int       { return big.NewInt(1337) }
func (s *testSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return s.auth, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parsedABI(t *testing.T) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(SupplyChainABI))
	require.NoError(t, err)
	return parsed
}

func TestParseRole(t *testing.T) {
	manufacturer := crypto.Keccak256Hash([]byte("MANUFACTURER_ROLE"))

	tests := []struct {
		name    string
		role    string
		want    [32]byte
		wantErr bool
	}{
		{name: "admin", role: "DEFAULT_ADMIN_ROLE", want: [32]byte{}},
		{name: "name", role: "MANUFACTURER_ROLE", want: manufacturer},
		{name: "hash", role: manufacturer.Hex(), want: manufacturer},
		{name: "short hash", role: "0x1234", wantErr: true},
		{name: "bad hex", role: "0x" + strings.Repeat("zz", 32), wantErr: true},
		{name: "empty", role: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRole(tt.role)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleFactory_NewHandle(t *testing.T) {
	partialABI := `[{"type":"function","name":"hasRole","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]}]`

	tests := []struct {
		name    string
		desc    *interfaces.Descriptor
		wantErr string
	}{
		{
			name: "valid",
			desc: &interfaces.Descriptor{Schema: []byte(SupplyChainABI), Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"},
		},
		{
			name:    "nil descriptor",
			wantErr: "no registry descriptor",
		},
		{
			name:    "bad address",
			desc:    &interfaces.Descriptor{Schema: []byte(SupplyChainABI), Address: "nope"},
			wantErr: "invalid registry address",
		},
		{
			name:    "bad abi",
			desc:    &interfaces.Descriptor{Schema: []byte(`{`), Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"},
			wantErr: "invalid registry abi",
		},
		{
			name:    "incomplete abi",
			desc:    &interfaces.Descriptor{Schema: []byte(partialABI), Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"},
			wantErr: "missing method registerComponent",
		},
	}

	backend := simulated.NewBackend(types.GenesisAlloc{})
	defer backend.Close()
	factory := NewHandleFactory(backend.Client(), testLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle, err := factory.NewHandle(tt.desc, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, common.HexToAddress(tt.desc.Address), handle.Address())
			handle.Close()
		})
	}
}

func TestClient_DecodeReceiptLogs(t *testing.T) {
	parsed := parsedABI(t)
	address := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	manufacturer := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	client := NewClient(nil, address, parsed, nil, testLogger())

	registered := parsed.Events[EventComponentRegistered]
	data, err := registered.Inputs.NonIndexed().Pack("Brake assembly")
	require.NoError(t, err)

	txHash := common.HexToHash("0xabc")
	logs := []*types.Log{
		{
			Address:     address,
			Topics:      []common.Hash{registered.ID, common.BigToHash(big.NewInt(42)), common.BytesToHash(manufacturer.Bytes())},
			Data:        data,
			TxHash:      txHash,
			BlockNumber: 7,
		},
		// emitted by another contract
		{
			Address: common.HexToAddress("0x01"),
			Topics:  []common.Hash{registered.ID, common.BigToHash(big.NewInt(1)), common.BytesToHash(manufacturer.Bytes())},
			Data:    data,
		},
		// not a registry event
		{
			Address: address,
			Topics:  []common.Hash{crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))},
		},
	}

	events := client.decodeReceiptLogs(logs)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, EventComponentRegistered, ev.Name)
	assert.Equal(t, txHash, ev.TxHash)
	assert.Equal(t, uint64(7), ev.BlockNumber)
	assert.Equal(t, big.NewInt(42), ev.Args["componentId"])
	assert.Equal(t, manufacturer, ev.Args["manufacturer"])
	assert.Equal(t, "Brake assembly", ev.Args["name"])
}

func TestClient_TransactWithoutSigner(t *testing.T) {
	client := NewClient(nil, common.Address{}, parsedABI(t), nil, testLogger())

	_, err := client.RegisterComponent(context.Background(), "a", "b", "c")
	assert.ErrorIs(t, err, ErrNoTransactOpts)
}

func TestClient_WatchUnknownEvent(t *testing.T) {
	client := NewClient(nil, common.Address{}, parsedABI(t), nil, testLogger())

	_, err := client.WatchEvent("Transfer", func(interfaces.RegistryEvent) {})
	assert.Error(t, err)
}

func TestClient_ReadWithoutContractCode(t *testing.T) {
	backend, auth, _, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	client := NewClient(backend.Client(), common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), parsedABI(t), &testSigner{auth: auth}, testLogger())

	_, err = client.GetComponentDetails(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, bind.ErrNoCode)
}

func TestPendingTx_WaitReportsReceipt(t *testing.T) {
	backend, auth, _, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	recipient := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	client := NewClient(backend.Client(), recipient, parsedABI(t), &testSigner{auth: auth}, testLogger())

	opts := *auth
	opts.Value = big.NewInt(1000)
	// plain transfers to an account without code skip gas estimation
	opts.GasLimit = 21000
	tx, err := client.contract.Transfer(&opts)
	require.NoError(t, err)
	backend.Commit()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending := &pendingTx{tx: tx, client: client}
	assert.Equal(t, tx.Hash(), pending.Hash())

	conf, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, conf.Success)
	assert.Equal(t, uint64(1), conf.BlockNumber)
	assert.Empty(t, conf.Events)
}

// SetupTestChain creates a simulated blockchain for testing purposes.
// It returns:
// - The simulated backend for direct control (commit blocks, etc.)
// - The transaction auth with the funded account
// - The private key for the funded account
func SetupTestChain() (*simulated.Backend, *bind.TransactOpts, *ecdsa.PrivateKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, nil, err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(1337))
	if err != nil {
		return nil, nil, nil, err
	}

	balance := new(big.Int)
	balance.SetString("10000000000000000000", 10) // 10 ETH

	genesisAlloc := map[common.Address]types.Account{
		auth.From: {
			Balance: balance,
		},
	}

	blockGasLimit := uint64(8000000)
	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(blockGasLimit))

	return backend, auth, privateKey, nil
}
