package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/supplychain-registry-client/binding"
	"github.com/ruteri/supplychain-registry-client/catalog"
	"github.com/ruteri/supplychain-registry-client/cmd/flags"
	"github.com/ruteri/supplychain-registry-client/common"
	"github.com/ruteri/supplychain-registry-client/descriptor"
	"github.com/ruteri/supplychain-registry-client/gateway"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/ruteri/supplychain-registry-client/metrics"
	"github.com/ruteri/supplychain-registry-client/notify"
	"github.com/ruteri/supplychain-registry-client/registry"
	"github.com/ruteri/supplychain-registry-client/session"
	"github.com/ruteri/supplychain-registry-client/wallet"
	"github.com/urfave/cli/v2"
)

// devChainID is the chain id reported in --dev mode.
const devChainID = 1337

type devChain struct{}

func (devChain) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(devChainID), nil
}

// Client is the fully wired registry client.
type Client struct {
	log         *slog.Logger
	provider    *wallet.KeyedProvider
	session     *session.Session
	binding     *binding.Binding
	center      *notify.Center
	gateway     *gateway.Gateway
	catalog     *catalog.Catalog
	promMetrics *prometheus.Registry

	closers []func()
}

// NewClient wires the client from the command line. nav may be nil.
func NewClient(cCtx *cli.Context, log *slog.Logger, nav interfaces.Navigator) (*Client, error) {
	ctx := cCtx.Context

	keys, err := loadKeys(cCtx, log)
	if err != nil {
		return nil, err
	}

	c := &Client{log: log, promMetrics: prometheus.NewRegistry()}
	m := metrics.New(common.PackageName, c.promMetrics)

	var chain wallet.ChainReader
	var factory interfaces.HandleFactory
	if cCtx.Bool(flags.DevFlag.Name) {
		admin := gethcommon.Address{}
		if len(keys) > 0 {
			admin = crypto.PubkeyToAddress(keys[0].PublicKey)
		}
		memory := registry.NewMemoryRegistry(gethcommon.HexToAddress(descriptor.DefaultRegistryAddress), admin)
		log.Info("Using in-memory registry", slog.String("admin", admin.Hex()))
		chain = devChain{}
		factory = memory.Factory()
	} else {
		rpcAddress := cCtx.String(flags.RpcAddrFlag.Name)
		log.Info("Connecting to Ethereum RPC", "address", rpcAddress)
		ethClient, err := ethclient.DialContext(ctx, rpcAddress)
		if err != nil {
			log.Error("Failed to dial RPC", "err", err)
			return nil, err
		}
		c.closers = append(c.closers, ethClient.Close)
		chain = ethClient
		factory = registry.NewHandleFactory(ethClient, log)
	}

	c.provider = wallet.NewKeyedProvider(chain, keys, wallet.WithLogger(log))
	c.session = session.New(c.provider, log)

	c.center = notify.NewCenter(notify.WithLogger(log))
	c.center.Subscribe(func(ns []interfaces.Notification) { m.SetNotifications(len(ns)) })

	c.binding = binding.New(factory, log, binding.WithMetrics(m))
	c.closers = append(c.closers, c.binding.Attach(c.session), c.binding.Close)

	if err := c.loadDescriptor(cCtx); err != nil {
		c.Close()
		return nil, err
	}

	c.gateway = gateway.New(c.binding, c.center,
		gateway.WithLogger(log),
		gateway.WithMetrics(m),
		gateway.WithConfirmTimeout(cCtx.Duration(flags.ConfirmTimeoutFlag.Name)))
	c.catalog = catalog.New(c.gateway, nav, log)

	return c, nil
}

// loadKeys collects signing keys from every configured source. In --dev
// mode a random key is generated when none is configured.
func loadKeys(cCtx *cli.Context, log *slog.Logger) ([]*ecdsa.PrivateKey, error) {
	var keys []*ecdsa.PrivateKey

	if hexKey := cCtx.String(flags.KeyFlag.Name); hexKey != "" {
		key, err := wallet.KeyFromHex(hexKey)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if path := cCtx.String(flags.KeystoreFlag.Name); path != "" {
		key, err := wallet.KeyFromKeystore(path, cCtx.String(flags.KeystorePasswordFlag.Name))
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if uri := cCtx.String(flags.VaultKeyFlag.Name); uri != "" {
		src, err := wallet.NewVaultKeySource(uri, cCtx.String(flags.VaultTokenFlag.Name), log)
		if err != nil {
			return nil, err
		}
		key, err := src.Key(cCtx.Context)
		if err != nil {
			return nil, fmt.Errorf("could not read key from Vault: %w", err)
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 && cCtx.Bool(flags.DevFlag.Name) {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		log.Info("Generated development key", slog.String("account", crypto.PubkeyToAddress(key.PublicKey).Hex()))
		keys = append(keys, key)
	}

	return keys, nil
}

// loadDescriptor installs the registry descriptor: from the configured
// locations if any, otherwise the built-in interface at the default address.
func (c *Client) loadDescriptor(cCtx *cli.Context) error {
	override := cCtx.String(flags.RegistryAddressFlag.Name)
	if override != "" && !gethcommon.IsHexAddress(override) {
		return fmt.Errorf("%w: invalid registry address %q", interfaces.ErrInvalidInput, override)
	}

	uris := cCtx.StringSlice(flags.DescriptorFlag.Name)
	if len(uris) == 0 {
		desc := &interfaces.Descriptor{
			Schema:  json.RawMessage(registry.SupplyChainABI),
			Address: descriptor.DefaultRegistryAddress,
		}
		if override != "" {
			desc.Address = override
		}
		c.binding.SetDescriptor(desc)
		return nil
	}

	loader, err := descriptor.NewLoaderFromURIs(uris, c.log)
	if err != nil {
		return err
	}
	if override == "" {
		return c.binding.Load(cCtx.Context, loader)
	}

	desc, err := loader.Load(cCtx.Context)
	if err != nil {
		return err
	}
	desc.Address = override
	c.binding.SetDescriptor(desc)
	return nil
}

// Connect authorizes the wallet and waits until the registry handle is ready.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.session.Connect(ctx); err != nil {
		return err
	}
	state := c.binding.State()
	if !state.Ready {
		return fmt.Errorf("%w: %s", interfaces.ErrBindingUnavailable, state.ErrorMessage)
	}
	return nil
}

// LogNotifications writes every new notification to the log.
func (c *Client) LogNotifications() {
	var mu sync.Mutex
	seen := map[string]bool{}

	c.center.Subscribe(func(ns []interfaces.Notification) {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range ns {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			c.log.Info(n.Message, slog.String("kind", string(n.Kind)))
		}
	})
}

func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// errNoAccount is returned by commands that need an account when no key is configured.
var errNoAccount = errors.New("no signing key configured, use --key, --keystore, --vault-key or --dev")
