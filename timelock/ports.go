package timelock

import (
	"context"
	"math/big"
)

// StateStore persists the two slots owned by the timelock: the owner and the set of queued transactions.
//
// Implementations must treat IDs that were never stored as not queued.
// A store may be shared by multiple timelock instances, so TransitionQueued must be atomic on the store's side.
type StateStore interface {
	// Owner returns the current owner, or the zero Address if not set.
	Owner(ctx context.Context) (Address, error)
	// ClaimOwner sets the owner if it's not set yet.
	// It returns ErrOwnerAlreadySet if an owner is already stored.
	ClaimOwner(ctx context.Context, owner Address) error
	// IsQueued returns the queued flag for a transaction.
	IsQueued(ctx context.Context, id TxID) (bool, error)
	// TransitionQueued sets the queued flag for a transaction to "to", but only if its current value is "from".
	// It returns false (and no error) when the current value is not "from".
	TransitionQueued(ctx context.Context, id TxID, from bool, to bool) (bool, error)
}

// CallPort dispatches an outbound call carrying a value and a payload.
//
// The context passed to Call must be used for any call made back into the timelock while the outbound call is in progress.
type CallPort interface {
	Call(ctx context.Context, from Address, target Address, value *big.Int, input []byte) error
}

// CallPortFunc adapts a function to the CallPort interface.
type CallPortFunc func(ctx context.Context, from Address, target Address, value *big.Int, input []byte) error

// Call implements CallPort.
func (fn CallPortFunc) Call(ctx context.Context, from Address, target Address, value *big.Int, input []byte) error {
	return fn(ctx, from, target, value, input)
}

// Treasury is the ledger that holds the timelock's balance.
type Treasury interface {
	// Credit adds amount to the balance of account.
	Credit(ctx context.Context, account Address, amount *big.Int) error
}
