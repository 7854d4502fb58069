package asset

import (
	"fmt"

	"github.com/google/uuid"
)

// LedgerAdapter moves the reference asset in and out of the pool account.
// Transfers fail on insufficient balance; there is no partial transfer.
type LedgerAdapter interface {
	// TransferIn pulls amount from the holder into the pool.
	TransferIn(from uuid.UUID, amount int64) error

	// TransferOut pays amount from the pool to the holder.
	TransferOut(to uuid.UUID, amount int64) error

	// PoolBalance returns the pool's current liquid balance.
	PoolBalance() int64

	// BalanceOf returns any holder's balance.
	BalanceOf(holder uuid.UUID) int64
}

// MemoryLedger is an in-process LedgerAdapter used by tests and demo mode.
type MemoryLedger struct {
	pool     uuid.UUID
	balances map[uuid.UUID]int64
}

func NewMemoryLedger(pool uuid.UUID) *MemoryLedger {
	return &MemoryLedger{
		pool:     pool,
		balances: make(map[uuid.UUID]int64),
	}
}

// Mint credits a holder out of thin air. Test setup only.
func (l *MemoryLedger) Mint(holder uuid.UUID, amount int64) {
	l.balances[holder] += amount
}

func (l *MemoryLedger) TransferIn(from uuid.UUID, amount int64) error {
	return l.transfer(from, l.pool, amount)
}

func (l *MemoryLedger) TransferOut(to uuid.UUID, amount int64) error {
	return l.transfer(l.pool, to, amount)
}

func (l *MemoryLedger) transfer(from, to uuid.UUID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative transfer amount: %d", amount)
	}
	if amount == 0 {
		return nil
	}
	if l.balances[from] < amount {
		return fmt.Errorf("insufficient balance: holder %s has %d, need %d", from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *MemoryLedger) PoolBalance() int64 {
	return l.balances[l.pool]
}

func (l *MemoryLedger) BalanceOf(holder uuid.UUID) int64 {
	return l.balances[holder]
}

// TotalSupply sums every balance. Conservation checks in tests rely on this
// staying constant across arbitrary operation sequences.
func (l *MemoryLedger) TotalSupply() int64 {
	var total int64
	for _, b := range l.balances {
		total += b
	}
	return total
}
