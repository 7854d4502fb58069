package queue_test

import (
	"FactorVault/internal/queue"
	"testing"

	"github.com/google/uuid"
)

// ============================================================================
// Test: Queue / validation
// ============================================================================

func TestQueue_ShareEntry(t *testing.T) {
	q := queue.NewRedemptionQueue()
	owner := uuid.New()

	idx, err := q.Queue(owner, owner, 1_000, 0)
	if err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if idx != 0 {
		t.Errorf("first index: got %d, want 0", idx)
	}

	entry, err := q.Get(idx)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if entry.Shares != 1_000 || entry.Assets != 0 {
		t.Errorf("entry: got shares=%d assets=%d, want 1000/0", entry.Shares, entry.Assets)
	}
}

func TestQueue_RejectsBothDenominations(t *testing.T) {
	q := queue.NewRedemptionQueue()
	owner := uuid.New()

	if _, err := q.Queue(owner, owner, 100, 100); err != queue.ErrInvalidRedemptionType {
		t.Errorf("both denominations: got %v, want ErrInvalidRedemptionType", err)
	}
	if _, err := q.Queue(owner, owner, 0, 0); err != queue.ErrInvalidRedemptionType {
		t.Errorf("neither denomination: got %v, want ErrInvalidRedemptionType", err)
	}
	if _, err := q.Queue(owner, owner, -1, 0); err != queue.ErrInvalidRedemptionType {
		t.Errorf("negative shares: got %v, want ErrInvalidRedemptionType", err)
	}
}

func TestQueue_RejectsNilParties(t *testing.T) {
	q := queue.NewRedemptionQueue()
	owner := uuid.New()

	if _, err := q.Queue(uuid.Nil, owner, 100, 0); err != queue.ErrInvalidOwner {
		t.Errorf("nil owner: got %v, want ErrInvalidOwner", err)
	}
	if _, err := q.Queue(owner, uuid.Nil, 100, 0); err != queue.ErrInvalidReceiver {
		t.Errorf("nil receiver: got %v, want ErrInvalidReceiver", err)
	}
}

// ============================================================================
// Test: FIFO order
// ============================================================================

func TestQueue_FIFOOrder(t *testing.T) {
	q := queue.NewRedemptionQueue()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	q.Queue(a, a, 100, 0)
	q.Queue(b, b, 200, 0)
	q.Queue(c, c, 300, 0)

	if head := q.Next(); head.Owner != a {
		t.Errorf("head should be first queued owner")
	}

	// Drain A completely; B becomes the head.
	if _, err := q.RemoveAmountFromFirstOwner(100); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if head := q.Next(); head.Owner != b {
		t.Errorf("head after draining A should be B")
	}
	if q.Length() != 2 {
		t.Errorf("length: got %d, want 2", q.Length())
	}
}

// ============================================================================
// Test: re-queue replaces
// ============================================================================

func TestQueue_RequeueCancelsAndMovesToBack(t *testing.T) {
	q := queue.NewRedemptionQueue()
	a, b := uuid.New(), uuid.New()

	first, _ := q.Queue(a, a, 100, 0)
	q.Queue(b, b, 200, 0)

	// A re-queues: old slot dies, new entry goes behind B.
	second, err := q.Queue(a, a, 500, 0)
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if second <= first {
		t.Errorf("requeued index should be later: %d vs %d", second, first)
	}
	if _, err := q.Get(first); err != queue.ErrInvalidQueueIndex {
		t.Errorf("old slot should be cancelled, got %v", err)
	}

	if head := q.Next(); head.Owner != b {
		t.Errorf("B should now be at the head")
	}

	shares, _ := q.TotalForOwner(a)
	if shares != 500 {
		t.Errorf("requeue replaces, never accumulates: got %d, want 500", shares)
	}
	if q.Length() != 2 {
		t.Errorf("length: got %d, want 2", q.Length())
	}
}

// ============================================================================
// Test: Cancel
// ============================================================================

func TestCancel_MidQueueLeavesHole(t *testing.T) {
	q := queue.NewRedemptionQueue()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	q.Queue(a, a, 100, 0)
	mid, _ := q.Queue(b, b, 200, 0)
	q.Queue(c, c, 300, 0)

	if err := q.Cancel(mid); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if q.Length() != 2 {
		t.Errorf("active length: got %d, want 2", q.Length())
	}
	if q.ArenaLength() != 3 {
		t.Errorf("arena keeps the hole: got %d, want 3", q.ArenaLength())
	}

	// Drain A: head must skip the hole straight to C.
	q.RemoveAmountFromFirstOwner(100)
	if head := q.Next(); head.Owner != c {
		t.Errorf("head should skip the cancelled slot")
	}
}

func TestCancel_HeadAdvancesPastRun(t *testing.T) {
	q := queue.NewRedemptionQueue()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	i0, _ := q.Queue(a, a, 100, 0)
	i1, _ := q.Queue(b, b, 200, 0)
	q.Queue(c, c, 300, 0)

	q.Cancel(i1)
	q.Cancel(i0)

	if head := q.Next(); head.Owner != c {
		t.Errorf("head should land on C after cancelling the leading run")
	}
}

func TestCancel_InvalidIndex(t *testing.T) {
	q := queue.NewRedemptionQueue()
	owner := uuid.New()
	idx, _ := q.Queue(owner, owner, 100, 0)

	if err := q.Cancel(idx + 1); err != queue.ErrInvalidQueueIndex {
		t.Errorf("out of range: got %v, want ErrInvalidQueueIndex", err)
	}

	q.Cancel(idx)
	if err := q.Cancel(idx); err != queue.ErrInvalidQueueIndex {
		t.Errorf("double cancel: got %v, want ErrInvalidQueueIndex", err)
	}
}

// ============================================================================
// Test: RemoveAmountFromFirstOwner
// ============================================================================

func TestRemoveAmount_PartialDrawLeavesHead(t *testing.T) {
	q := queue.NewRedemptionQueue()
	owner := uuid.New()
	q.Queue(owner, owner, 1_000, 0)

	updated, err := q.RemoveAmountFromFirstOwner(400)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if updated.Shares != 600 {
		t.Errorf("remaining shares: got %d, want 600", updated.Shares)
	}
	if head := q.Next(); head.Owner != owner {
		t.Errorf("partially drawn entry should stay at the head")
	}
}

func TestRemoveAmount_AssetDenominated(t *testing.T) {
	q := queue.NewRedemptionQueue()
	owner := uuid.New()
	q.Queue(owner, owner, 0, 5_000)

	updated, err := q.RemoveAmountFromFirstOwner(5_000)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if updated.Assets != 0 {
		t.Errorf("remaining assets: got %d, want 0", updated.Assets)
	}
	if !q.IsEmpty() {
		t.Error("exhausted entry should leave the queue empty")
	}
}

func TestRemoveAmount_Overdraw(t *testing.T) {
	q := queue.NewRedemptionQueue()
	owner := uuid.New()
	q.Queue(owner, owner, 100, 0)

	if _, err := q.RemoveAmountFromFirstOwner(101); err != queue.ErrAmountExceedsQueuedShares {
		t.Errorf("overdraw: got %v, want ErrAmountExceedsQueuedShares", err)
	}
}

func TestRemoveAmount_EmptyQueue(t *testing.T) {
	q := queue.NewRedemptionQueue()
	if _, err := q.RemoveAmountFromFirstOwner(1); err != queue.ErrQueueEmpty {
		t.Errorf("empty queue: got %v, want ErrQueueEmpty", err)
	}
}

// ============================================================================
// Test: Compact / Clear
// ============================================================================

func TestCompact_DropsHolesKeepsOrder(t *testing.T) {
	q := queue.NewRedemptionQueue()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	q.Queue(a, a, 100, 0)
	mid, _ := q.Queue(b, b, 200, 0)
	q.Queue(c, c, 300, 0)
	q.Cancel(mid)

	q.Compact()

	if q.ArenaLength() != 2 {
		t.Errorf("arena after compact: got %d, want 2", q.ArenaLength())
	}
	if head := q.Next(); head.Owner != a {
		t.Errorf("relative order must survive compaction")
	}
	last, err := q.Get(1)
	if err != nil {
		t.Fatalf("get after compact: %v", err)
	}
	if last.Owner != c {
		t.Errorf("second slot should be C")
	}
}

func TestCompact_InvalidatesStaleIndexes(t *testing.T) {
	q := queue.NewRedemptionQueue()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	q.Queue(a, a, 100, 0)
	mid, _ := q.Queue(b, b, 200, 0)
	last, _ := q.Queue(c, c, 300, 0)
	q.Cancel(mid)

	q.Compact()

	// Indexes captured before compaction no longer address the arena.
	if _, err := q.Get(last); err != queue.ErrInvalidQueueIndex {
		t.Errorf("stale index %d: got %v, want ErrInvalidQueueIndex", last, err)
	}
	entry, err := q.Get(1)
	if err != nil {
		t.Fatalf("get after compact: %v", err)
	}
	if entry.Owner != c {
		t.Errorf("slot 1 after compact should hold the last live entry")
	}
}

func TestClear_DropsEverything(t *testing.T) {
	q := queue.NewRedemptionQueue()
	q.Queue(uuid.New(), uuid.New(), 100, 0)
	q.Queue(uuid.New(), uuid.New(), 0, 200)

	q.Clear()

	if !q.IsEmpty() || q.ArenaLength() != 0 {
		t.Error("clear should drop all entries")
	}
	stats := q.GetStats()
	if stats.Length != 0 || stats.TotalShares != 0 || stats.TotalAssets != 0 {
		t.Errorf("stats after clear: %+v", stats)
	}
}

// ============================================================================
// Test: GetStats
// ============================================================================

func TestGetStats_MixedDenominations(t *testing.T) {
	q := queue.NewRedemptionQueue()
	q.Queue(uuid.New(), uuid.New(), 100, 0)
	q.Queue(uuid.New(), uuid.New(), 0, 250)
	q.Queue(uuid.New(), uuid.New(), 50, 0)

	s := q.GetStats()
	if s.Length != 3 {
		t.Errorf("length: got %d, want 3", s.Length)
	}
	if s.TotalShares != 150 {
		t.Errorf("total shares: got %d, want 150", s.TotalShares)
	}
	if s.TotalAssets != 250 {
		t.Errorf("total assets: got %d, want 250", s.TotalAssets)
	}
}
