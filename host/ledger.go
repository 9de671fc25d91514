package host

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/moonshotcommons/timelock/timelock"
)

var (
	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("host: amount must not be negative")
	// ErrInsufficientBalance is returned when a transfer exceeds the balance of the sender.
	ErrInsufficientBalance = errors.New("host: insufficient balance")
)

// Ledger keeps the balances of accounts in memory.
// It implements timelock.Treasury.
type Ledger struct {
	lock     sync.Mutex
	balances map[timelock.Address]*big.Int
}

// NewLedger returns a new, empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[timelock.Address]*big.Int),
	}
}

// Credit adds amount to the balance of account.
func (l *Ledger) Credit(_ context.Context, account timelock.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	l.add(account, amount)
	return nil
}

// BalanceOf returns the balance of account.
func (l *Ledger) BalanceOf(account timelock.Address) *big.Int {
	l.lock.Lock()
	defer l.lock.Unlock()

	bal := l.balances[account]
	if bal == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// Transfer moves amount from one account to another.
// It fails with ErrInsufficientBalance, without changing any balance, if from doesn't hold enough.
func (l *Ledger) Transfer(from, to timelock.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	bal := l.balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	bal.Sub(bal, amount)
	l.add(to, amount)
	return nil
}

// add must be invoked while holding the lock.
func (l *Ledger) add(account timelock.Address, amount *big.Int) {
	bal := l.balances[account]
	if bal == nil {
		bal = new(big.Int)
		l.balances[account] = bal
	}
	bal.Add(bal, amount)
}
