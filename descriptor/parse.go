package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// DefaultRegistryAddress is used when the descriptor omits an address. It is
// the first contract deployed by the default account of a local development chain.
const DefaultRegistryAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// Parse decodes and validates a descriptor document.
func Parse(data []byte) (*interfaces.Descriptor, error) {
	var desc interfaces.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: malformed descriptor: %v", interfaces.ErrDescriptorLoadFailed, err)
	}

	if len(bytes.TrimSpace(desc.Schema)) == 0 || bytes.Equal(bytes.TrimSpace(desc.Schema), []byte("null")) {
		return nil, fmt.Errorf("%w: descriptor has no abi", interfaces.ErrDescriptorLoadFailed)
	}
	if _, err := abi.JSON(bytes.NewReader(desc.Schema)); err != nil {
		return nil, fmt.Errorf("%w: invalid abi: %v", interfaces.ErrDescriptorLoadFailed, err)
	}

	if desc.Address == "" {
		desc.Address = DefaultRegistryAddress
	}
	if !common.IsHexAddress(desc.Address) {
		return nil, fmt.Errorf("%w: invalid registry address %q", interfaces.ErrDescriptorLoadFailed, desc.Address)
	}

	return &desc, nil
}
