package registry

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// HandleFactory creates registry clients bound to a signer.
type HandleFactory struct {
	backend Backend
	log     *slog.Logger
}

// NewHandleFactory creates a factory whose clients use backend for reads,
// submissions and event subscriptions.
func NewHandleFactory(backend Backend, log *slog.Logger) *HandleFactory {
	if log == nil {
		log = slog.Default()
	}
	return &HandleFactory{backend: backend, log: log}
}

// NewHandle parses the descriptor and binds the registry for signer.
func (f *HandleFactory) NewHandle(desc *interfaces.Descriptor, signer interfaces.Signer) (interfaces.RegistryHandle, error) {
	if desc == nil {
		return nil, fmt.Errorf("no registry descriptor")
	}
	if !common.IsHexAddress(desc.Address) {
		return nil, fmt.Errorf("invalid registry address %q", desc.Address)
	}

	parsed, err := abi.JSON(bytes.NewReader(desc.Schema))
	if err != nil {
		return nil, fmt.Errorf("invalid registry abi: %w", err)
	}
	if err := ValidateABI(parsed); err != nil {
		return nil, err
	}

	address := common.HexToAddress(desc.Address)
	f.log.Debug("Binding registry contract", slog.String("address", address.Hex()))

	return NewClient(f.backend, address, parsed, signer, f.log), nil
}

// ValidateABI checks that parsed declares every method and event the client uses.
func ValidateABI(parsed abi.ABI) error {
	for _, name := range requiredMethods {
		if _, ok := parsed.Methods[name]; !ok {
			return fmt.Errorf("registry abi is missing method %s", name)
		}
	}
	for _, name := range requiredEvents {
		if _, ok := parsed.Events[name]; !ok {
			return fmt.Errorf("registry abi is missing event %s", name)
		}
	}
	return nil
}
