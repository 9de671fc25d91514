package timelock

import (
	"encoding/hex"
	"errors"
	"strings"
)

// AddressLength is the size of an Address, in bytes.
const AddressLength = 20

// Address identifies an account: the owner, a caller, or the target of a call.
// The zero Address is used as the "no owner" sentinel.
type Address [AddressLength]byte

// ErrInvalidAddress is returned when parsing a malformed address.
var ErrInvalidAddress = errors.New("timelock: invalid address")

// ParseAddress parses a hex-encoded address, with or without the "0x" prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*AddressLength {
		return a, ErrInvalidAddress
	}
	_, err := hex.Decode(a[:], []byte(s))
	if err != nil {
		return a, ErrInvalidAddress
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// It is meant for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero returns true if the address is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Hex returns the address as a lowercase, 0x-prefixed hex string.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
