package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/vault/api"
	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// DefaultVaultField is the secret field holding the hex private key.
const DefaultVaultField = "private_key"

// KeyFromHex parses a hex encoded secp256k1 private key, with or without 0x.
func KeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %v", interfaces.ErrInvalidInput, err)
	}
	return key, nil
}

// KeyFromKeystore decrypts an encrypted JSON key file.
func KeyFromKeystore(path, password string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore file: %w", err)
	}
	return key.PrivateKey, nil
}

// VaultKeySource reads a private key from a Vault KV v2 secret.
type VaultKeySource struct {
	client    *api.Client
	mountPath string
	dataPath  string
	field     string
	log       *slog.Logger
}

// NewVaultKeySource creates a key source from a URI of the form
// vault://host:port/<mount>/<path>#<field>. The server is reached over https
// unless the query sets scheme=http. field defaults to DefaultVaultField.
func NewVaultKeySource(uri, token string, log *slog.Logger) (*VaultKeySource, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "vault" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrInvalidLocationURI, uri)
	}

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: vault URI must name a mount and a path: %q", interfaces.ErrInvalidLocationURI, uri)
	}

	scheme := u.Query().Get("scheme")
	if scheme == "" {
		scheme = "https"
	}
	field := u.Fragment
	if field == "" {
		field = DefaultVaultField
	}

	config := api.DefaultConfig()
	config.Address = fmt.Sprintf("%s://%s", scheme, u.Host)
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultKeySource{
		client:    client,
		mountPath: parts[0],
		dataPath:  parts[1],
		field:     field,
		log:       log,
	}, nil
}

// Key reads and parses the private key.
func (s *VaultKeySource) Key(ctx context.Context) (*ecdsa.PrivateKey, error) {
	path := fmt.Sprintf("%s/data/%s", s.mountPath, s.dataPath)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}
	value, ok := data[s.field].(string)
	if !ok {
		return nil, fmt.Errorf("%w: field %q not found in %s", interfaces.ErrContentNotFound, s.field, path)
	}

	return KeyFromHex(value)
}
