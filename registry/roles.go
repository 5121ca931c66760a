package registry

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultAdminRole is the access control admin role, the zero hash.
const DefaultAdminRole = "DEFAULT_ADMIN_ROLE"

// ParseRole converts a role given either as a 0x-prefixed 32 byte hex string
// or as a role name. Names hash to keccak256(name), except DEFAULT_ADMIN_ROLE
// which is the zero hash.
func ParseRole(role string) ([32]byte, error) {
	var out [32]byte

	role = strings.TrimSpace(role)
	if role == "" {
		return out, fmt.Errorf("empty role")
	}
	if role == DefaultAdminRole {
		return out, nil
	}

	if strings.HasPrefix(role, "0x") || strings.HasPrefix(role, "0X") {
		raw, err := hex.DecodeString(role[2:])
		if err != nil || len(raw) != 32 {
			return out, fmt.Errorf("invalid role hash %q", role)
		}
		copy(out[:], raw)
		return out, nil
	}

	copy(out[:], crypto.Keccak256([]byte(role)))
	return out, nil
}
