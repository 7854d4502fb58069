// Package queue implements the FIFO deferred-redemption ledger: an
// append-only arena of slots with a head cursor. A slot is cancelled by
// zeroing its owner; length accessors and iteration skip cancelled holes.
// Compaction rewrites the arena and invalidates previously returned indexes.
package queue

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidRedemptionType     = errors.New("redemption must be share-denominated or asset-denominated, not both or neither")
	ErrInvalidOwner              = errors.New("redemption owner must be nonzero")
	ErrInvalidReceiver           = errors.New("redemption receiver must be nonzero")
	ErrInvalidQueueIndex         = errors.New("queue index out of range or cancelled")
	ErrQueueEmpty                = errors.New("redemption queue is empty")
	ErrAmountExceedsQueuedShares = errors.New("amount exceeds queued shares")
	ErrAmountExceedsQueuedAssets = errors.New("amount exceeds queued assets")
)

// QueuedRedemption occupies exactly one denomination: shares pending
// (asset field zero) or assets pending (share field zero).
type QueuedRedemption struct {
	Owner    uuid.UUID
	Receiver uuid.UUID
	Shares   int64
	Assets   int64
}

// Active reports whether the slot holds a live entry. Cancelled slots have
// a zeroed owner.
func (q QueuedRedemption) Active() bool {
	return q.Owner != uuid.Nil
}

// Stats summarizes the active portion of the queue.
type Stats struct {
	Length      int
	TotalShares int64
	TotalAssets int64
}

// RedemptionQueue is not safe for concurrent use; the engine serializes all
// access under its operation lock.
type RedemptionQueue struct {
	entries []QueuedRedemption
	head    int
	active  int
}

func NewRedemptionQueue() *RedemptionQueue {
	return &RedemptionQueue{}
}

// Queue appends a redemption for owner. If the owner already has an active
// entry it is cancelled first and the new entry goes to the back of the
// line: re-queuing is position-altering and non-cumulative. Returns the new
// entry's index.
func (q *RedemptionQueue) Queue(owner, receiver uuid.UUID, shares, assets int64) (int, error) {
	if owner == uuid.Nil {
		return 0, ErrInvalidOwner
	}
	if receiver == uuid.Nil {
		return 0, ErrInvalidReceiver
	}
	if shares < 0 || assets < 0 {
		return 0, ErrInvalidRedemptionType
	}
	if (shares == 0) == (assets == 0) {
		return 0, ErrInvalidRedemptionType
	}

	// One active slot per owner: cancel any prior entry in place.
	for i := q.head; i < len(q.entries); i++ {
		if q.entries[i].Owner == owner {
			q.cancelAt(i)
			break
		}
	}

	q.entries = append(q.entries, QueuedRedemption{
		Owner:    owner,
		Receiver: receiver,
		Shares:   shares,
		Assets:   assets,
	})
	q.active++
	return len(q.entries) - 1, nil
}

// Cancel marks the slot at index cancelled. If the slot is the current head
// the cursor advances past any run of cancelled slots; otherwise the hole is
// skipped lazily when the head reaches it.
func (q *RedemptionQueue) Cancel(index int) error {
	if index < q.head || index >= len(q.entries) || !q.entries[index].Active() {
		return ErrInvalidQueueIndex
	}
	q.cancelAt(index)
	return nil
}

func (q *RedemptionQueue) cancelAt(index int) {
	q.entries[index] = QueuedRedemption{}
	q.active--
	if index == q.head {
		q.advanceHead()
	}
}

func (q *RedemptionQueue) advanceHead() {
	for q.head < len(q.entries) && !q.entries[q.head].Active() {
		q.head++
	}
}

// RemoveAmountFromFirstOwner draws amount off the head entry in whichever
// denomination it holds. Exhausting the entry cancels it and advances the
// head. Returns the updated (possibly emptied) head entry.
func (q *RedemptionQueue) RemoveAmountFromFirstOwner(amount int64) (QueuedRedemption, error) {
	q.advanceHead()
	if q.head >= len(q.entries) {
		return QueuedRedemption{}, ErrQueueEmpty
	}

	entry := &q.entries[q.head]
	if entry.Shares > 0 {
		if amount > entry.Shares {
			return QueuedRedemption{}, ErrAmountExceedsQueuedShares
		}
		entry.Shares -= amount
	} else {
		if amount > entry.Assets {
			return QueuedRedemption{}, ErrAmountExceedsQueuedAssets
		}
		entry.Assets -= amount
	}

	updated := *entry
	if entry.Shares == 0 && entry.Assets == 0 {
		q.cancelAt(q.head)
	}
	return updated, nil
}

// Compact rewrites the arena to hold only active entries in their original
// relative order and resets the head to 0. Every previously observed index
// at or beyond the new length is invalidated.
func (q *RedemptionQueue) Compact() {
	if q.active == len(q.entries) && q.head == 0 {
		return
	}
	compacted := make([]QueuedRedemption, 0, q.active)
	for i := q.head; i < len(q.entries); i++ {
		if q.entries[i].Active() {
			compacted = append(compacted, q.entries[i])
		}
	}
	q.entries = compacted
	q.head = 0
}

// Clear drops all entries unconditionally. Emergency use.
func (q *RedemptionQueue) Clear() {
	q.entries = nil
	q.head = 0
	q.active = 0
}

// IsEmpty reports whether no active entry remains.
func (q *RedemptionQueue) IsEmpty() bool {
	return q.active == 0
}

// Length is the count of active entries from head to end. Distinct from the
// arena length, which includes cancelled holes.
func (q *RedemptionQueue) Length() int {
	return q.active
}

// ArenaLength is the raw slot count including cancelled holes.
func (q *RedemptionQueue) ArenaLength() int {
	return len(q.entries)
}

// Get returns the entry at index. Indexes below the head, out of range, or
// pointing at cancelled slots are invalid.
func (q *RedemptionQueue) Get(index int) (QueuedRedemption, error) {
	if index < q.head || index >= len(q.entries) || !q.entries[index].Active() {
		return QueuedRedemption{}, ErrInvalidQueueIndex
	}
	return q.entries[index], nil
}

// Owner returns the owner of the entry at index without validity checks
// beyond range; used by the engine for cancel authorization.
func (q *RedemptionQueue) Owner(index int) (uuid.UUID, error) {
	if index < q.head || index >= len(q.entries) || !q.entries[index].Active() {
		return uuid.Nil, ErrInvalidQueueIndex
	}
	return q.entries[index].Owner, nil
}

// IndexesForOwner scans the active region and returns the owner's entry
// indexes in queue order. O(arena length) by contract.
func (q *RedemptionQueue) IndexesForOwner(owner uuid.UUID) []int {
	var indexes []int
	for i := q.head; i < len(q.entries); i++ {
		if q.entries[i].Active() && q.entries[i].Owner == owner {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// TotalForOwner sums the owner's active queued shares and assets. With the
// one-active-slot invariant this is simply the owner's single entry.
func (q *RedemptionQueue) TotalForOwner(owner uuid.UUID) (shares, assets int64) {
	for i := q.head; i < len(q.entries); i++ {
		if q.entries[i].Active() && q.entries[i].Owner == owner {
			shares += q.entries[i].Shares
			assets += q.entries[i].Assets
		}
	}
	return shares, assets
}

// Next returns the head entry, or a zeroed sentinel if the queue is empty.
func (q *RedemptionQueue) Next() QueuedRedemption {
	q.advanceHead()
	if q.head >= len(q.entries) {
		return QueuedRedemption{}
	}
	return q.entries[q.head]
}

// HeadIndex returns the index of the current head entry. Only meaningful
// when the queue is non-empty.
func (q *RedemptionQueue) HeadIndex() int {
	q.advanceHead()
	return q.head
}

// GetStats summarizes active length and totals.
func (q *RedemptionQueue) GetStats() Stats {
	s := Stats{Length: q.active}
	for i := q.head; i < len(q.entries); i++ {
		if q.entries[i].Active() {
			s.TotalShares += q.entries[i].Shares
			s.TotalAssets += q.entries[i].Assets
		}
	}
	return s
}
