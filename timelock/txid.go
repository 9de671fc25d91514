package timelock

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// TxIDLength is the size of a TxID, in bytes.
const TxIDLength = 32

// TxID is the identifier of a queued call.
// It's the Keccak-256 hash of the ABI encoding of (target, value, func, data, timestamp).
type TxID [TxIDLength]byte

// ErrInvalidTxID is returned when parsing a malformed TxID.
var ErrInvalidTxID = errors.New("timelock: invalid transaction ID")

// ComputeID returns the TxID for the descriptor.
// The result is deterministic and changes if any field of the descriptor changes.
func ComputeID(d Descriptor) TxID {
	var id TxID
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(encodeDescriptor(d))
	h.Sum(id[:0])
	return id
}

// Selector returns the first 4 bytes of the Keccak-256 hash of a function signature.
func Selector(funcSig string) [4]byte {
	var sel [4]byte
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(funcSig))
	copy(sel[:], h.Sum(nil))
	return sel
}

// ParseTxID parses a hex-encoded TxID, with or without the "0x" prefix.
func ParseTxID(s string) (TxID, error) {
	var id TxID
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*TxIDLength {
		return id, ErrInvalidTxID
	}
	_, err := hex.Decode(id[:], []byte(s))
	if err != nil {
		return id, ErrInvalidTxID
	}
	return id, nil
}

// Hex returns the TxID as a lowercase, 0x-prefixed hex string.
func (id TxID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id TxID) String() string {
	return id.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (id TxID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TxID) UnmarshalText(text []byte) error {
	parsed, err := ParseTxID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
