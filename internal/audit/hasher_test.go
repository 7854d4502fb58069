package audit_test

import (
	"bytes"
	"testing"

	"FactorVault/internal/audit"
)

func TestStateHasher_Deterministic(t *testing.T) {
	a := audit.NewStateHasher()
	b := audit.NewStateHasher()

	digest := []byte("capital=100;shares=100")
	ha := a.ComputeHash(1, digest)
	hb := b.ComputeHash(1, digest)

	if !bytes.Equal(ha[:], hb[:]) {
		t.Error("identical inputs must produce identical chain hashes")
	}
}

func TestStateHasher_ChainLinks(t *testing.T) {
	h := audit.NewStateHasher()
	genesis := h.PrevHash()

	first := h.ComputeHash(1, []byte("state-1"))
	if bytes.Equal(first[:], genesis[:]) {
		t.Error("first hash must differ from the genesis tip")
	}
	if tip := h.PrevHash(); !bytes.Equal(tip[:], first[:]) {
		t.Error("chain tip should advance to the latest hash")
	}

	second := h.ComputeHash(2, []byte("state-1"))
	if bytes.Equal(second[:], first[:]) {
		t.Error("same digest at a new sequence must hash differently")
	}
}

func TestStateHasher_SequenceMatters(t *testing.T) {
	a := audit.NewStateHasher()
	b := audit.NewStateHasher()

	ha := a.ComputeHash(1, []byte("state"))
	hb := b.ComputeHash(2, []byte("state"))

	if bytes.Equal(ha[:], hb[:]) {
		t.Error("sequence number must be folded into the hash")
	}
}

func TestStateHasher_DigestMatters(t *testing.T) {
	a := audit.NewStateHasher()
	b := audit.NewStateHasher()

	ha := a.ComputeHash(1, []byte("state-a"))
	hb := b.ComputeHash(1, []byte("state-b"))

	if bytes.Equal(ha[:], hb[:]) {
		t.Error("state digest must be folded into the hash")
	}
}
