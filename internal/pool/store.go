package pool

import (
	"sort"

	"github.com/google/uuid"

	"FactorVault/internal/invoice"
)

// Store is the fund's explicit mutable ledger state. It is passed by
// reference into every operation; there are no package-level singletons.
// All mutation happens under the engine's operation lock.
type Store struct {
	// Share accounting.
	totalShares int64
	shares      map[uuid.UUID]int64

	// Per-receivable records.
	approvals   map[uuid.UUID]*invoice.ApprovalRecord
	impairments map[uuid.UUID]*invoice.ImpairmentRecord
	states      map[uuid.UUID]invoice.State

	// Active set: funded receivables still participating in ordinary
	// reconciliation scanning, in funding order.
	active []uuid.UUID

	// Impaired receivables awaiting possible recovery, in impairment
	// order. Recovery scanning follows this order so replays settle
	// identically.
	impaired []uuid.UUID

	// Pool-wide accumulators. Cash earmarks (fee balances, reserve) are
	// held inside the pool's liquid balance; the capital account nets
	// them out.
	deployedCapital    int64
	adminFeeBalance    int64
	protocolFeeBalance int64
	spreadGainsBalance int64
	impairReserve      int64
	realizedGain       int64
	realizedLoss       int64
}

func NewStore() *Store {
	return &Store{
		shares:      make(map[uuid.UUID]int64),
		approvals:   make(map[uuid.UUID]*invoice.ApprovalRecord),
		impairments: make(map[uuid.UUID]*invoice.ImpairmentRecord),
		states:      make(map[uuid.UUID]invoice.State),
	}
}

// --- Share accounting ---

func (s *Store) TotalShares() int64 {
	return s.totalShares
}

func (s *Store) SharesOf(holder uuid.UUID) int64 {
	return s.shares[holder]
}

func (s *Store) mintShares(holder uuid.UUID, amount int64) {
	s.shares[holder] += amount
	s.totalShares += amount
}

func (s *Store) burnShares(holder uuid.UUID, amount int64) error {
	if s.shares[holder] < amount {
		return ErrInsufficientShares
	}
	s.shares[holder] -= amount
	s.totalShares -= amount
	return nil
}

func (s *Store) transferShares(from, to uuid.UUID, amount int64) error {
	if s.shares[from] < amount {
		return ErrInsufficientShares
	}
	s.shares[from] -= amount
	s.shares[to] += amount
	return nil
}

// --- Receivable records ---

func (s *Store) State(id uuid.UUID) invoice.State {
	return s.states[id]
}

func (s *Store) Approval(id uuid.UUID) (*invoice.ApprovalRecord, bool) {
	rec, ok := s.approvals[id]
	return rec, ok
}

func (s *Store) Impairment(id uuid.UUID) (*invoice.ImpairmentRecord, bool) {
	rec, ok := s.impairments[id]
	return rec, ok
}

func (s *Store) setApproval(rec *invoice.ApprovalRecord) {
	s.approvals[rec.InvoiceID] = rec
	s.states[rec.InvoiceID] = invoice.StateApproved
}

func (s *Store) markFunded(id uuid.UUID) {
	s.states[id] = invoice.StateFunded
	s.active = append(s.active, id)
}

// removeFromActive drops id from the active set, preserving order.
func (s *Store) removeFromActive(id uuid.UUID) {
	for i, a := range s.active {
		if a == id {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

// ActiveInvoices returns the funded, unsettled receivables in funding order.
func (s *Store) ActiveInvoices() []uuid.UUID {
	out := make([]uuid.UUID, len(s.active))
	copy(out, s.active)
	return out
}

func (s *Store) markImpaired(imp *invoice.ImpairmentRecord) {
	s.impairments[imp.InvoiceID] = imp
	s.states[imp.InvoiceID] = invoice.StateImpaired
	s.impaired = append(s.impaired, imp.InvoiceID)
}

// removeFromImpaired drops id from the impaired set, preserving order.
func (s *Store) removeFromImpaired(id uuid.UUID) {
	for i, a := range s.impaired {
		if a == id {
			s.impaired = append(s.impaired[:i], s.impaired[i+1:]...)
			return
		}
	}
}

// ImpairedInvoices returns the written-down receivables still awaiting a
// possible recovery, in impairment order.
func (s *Store) ImpairedInvoices() []uuid.UUID {
	out := make([]uuid.UUID, len(s.impaired))
	copy(out, s.impaired)
	return out
}

// --- Accumulators ---

func (s *Store) DeployedCapital() int64    { return s.deployedCapital }
func (s *Store) AdminFeeBalance() int64    { return s.adminFeeBalance }
func (s *Store) ProtocolFeeBalance() int64 { return s.protocolFeeBalance }
func (s *Store) SpreadGainsBalance() int64 { return s.spreadGainsBalance }
func (s *Store) ImpairReserve() int64      { return s.impairReserve }
func (s *Store) RealizedGain() int64       { return s.realizedGain }
func (s *Store) RealizedLoss() int64       { return s.realizedLoss }

// DigestBytes builds a deterministic byte digest of the store for the audit
// hash chain: accumulators first, then share balances sorted by holder.
func (s *Store) DigestBytes() []byte {
	digest := make([]byte, 0, 96+len(s.shares)*24)

	for _, v := range []int64{
		s.totalShares,
		s.deployedCapital,
		s.adminFeeBalance,
		s.protocolFeeBalance,
		s.spreadGainsBalance,
		s.impairReserve,
		s.realizedGain,
		s.realizedLoss,
	} {
		digest = appendInt64LE(digest, v)
	}

	holders := make([]uuid.UUID, 0, len(s.shares))
	for h := range s.shares {
		holders = append(holders, h)
	}
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].String() < holders[j].String()
	})
	for _, h := range holders {
		digest = append(digest, h[:]...)
		digest = appendInt64LE(digest, s.shares[h])
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
