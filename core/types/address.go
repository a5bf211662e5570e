package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of ledger account addresses.
const AddressLength = 20

// Address identifies an account on the token or payment ledgers.
type Address [AddressLength]byte

// ParseAddress decodes a 0x-prefixed or bare hex string into an Address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	if len(trimmed) != AddressLength*2 {
		return addr, fmt.Errorf("address must be %d hex characters, got %q", AddressLength*2, s)
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(addr[:], raw)
	return addr, nil
}

// Hex returns the canonical 0x-prefixed lowercase encoding.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Bytes returns the address as a byte slice copy.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is the all-zero sentinel.
func (a Address) IsZero() bool {
	var zero Address
	return a == zero
}

func (a Address) String() string { return a.Hex() }
