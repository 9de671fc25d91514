package timelock

import (
	"math/big"
)

// Descriptor contains the parameters of a call gated by the timelock.
// A Descriptor is never stored: the timelock only remembers its TxID.
type Descriptor struct {
	// Address of the account that receives the call
	Target Address
	// Value transferred with the call; nil is treated as zero
	Value *big.Int
	// Function signature, such as "transfer(address,uint256)"
	Func string
	// ABI-encoded arguments appended after the function selector
	Data []byte
	// Ledger time (in seconds) after which the call can be executed
	Timestamp uint64
}

// ID returns the TxID of the descriptor.
func (d Descriptor) ID() TxID {
	return ComputeID(d)
}

// Calldata returns the payload sent to the target: the function selector followed by the raw data.
func (d Descriptor) Calldata() []byte {
	sel := Selector(d.Func)
	out := make([]byte, 0, len(sel)+len(d.Data))
	out = append(out, sel[:]...)
	return append(out, d.Data...)
}

// ValueOrZero returns the value of the descriptor, or zero if it's nil.
func (d Descriptor) ValueOrZero() *big.Int {
	if d.Value == nil {
		return new(big.Int)
	}
	return d.Value
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	c := d
	if d.Value != nil {
		c.Value = new(big.Int).Set(d.Value)
	}
	if d.Data != nil {
		c.Data = append([]byte(nil), d.Data...)
	}
	return c
}
