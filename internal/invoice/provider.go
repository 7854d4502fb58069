package invoice

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider is the external receivable registry. The engine only reads
// receivable state and moves claim ownership through the provider; it never
// marks invoices paid or canceled itself.
type Provider interface {
	// GetInvoiceDetails returns the current provider-reported state.
	GetInvoiceDetails(id uuid.UUID) (Details, error)

	// TransferOwnership moves the claim to a new owner. Used at funding
	// (claim → pool) and unfactoring (claim → financed party).
	TransferOwnership(id uuid.UUID, to uuid.UUID) error
}

// MemoryProvider is an in-process Provider used by tests and demo mode.
type MemoryProvider struct {
	invoices map[uuid.UUID]*Details
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		invoices: make(map[uuid.UUID]*Details),
	}
}

// CreateInvoice registers a receivable and returns its ID.
func (p *MemoryProvider) CreateInvoice(creditor, debtor, tokenID uuid.UUID, amount int64, dueDate time.Time) uuid.UUID {
	id := uuid.New()
	p.invoices[id] = &Details{
		InvoiceID:     id,
		Creditor:      creditor,
		Debtor:        debtor,
		TokenID:       tokenID,
		InvoiceAmount: amount,
		DueDate:       dueDate,
	}
	return id
}

func (p *MemoryProvider) GetInvoiceDetails(id uuid.UUID) (Details, error) {
	inv, ok := p.invoices[id]
	if !ok {
		return Details{}, fmt.Errorf("invoice %s not found", id)
	}
	return *inv, nil
}

func (p *MemoryProvider) TransferOwnership(id uuid.UUID, to uuid.UUID) error {
	inv, ok := p.invoices[id]
	if !ok {
		return fmt.Errorf("invoice %s not found", id)
	}
	if inv.IsCanceled {
		return fmt.Errorf("invoice %s is canceled", id)
	}
	inv.Creditor = to
	return nil
}

// RecordPayment credits a debtor payment against the receivable. Marks the
// invoice paid once the cumulative amount reaches face value.
func (p *MemoryProvider) RecordPayment(id uuid.UUID, amount int64) error {
	inv, ok := p.invoices[id]
	if !ok {
		return fmt.Errorf("invoice %s not found", id)
	}
	if inv.IsCanceled {
		return fmt.Errorf("invoice %s is canceled", id)
	}
	if amount <= 0 {
		return fmt.Errorf("payment amount must be positive, got %d", amount)
	}
	inv.PaidAmount += amount
	if inv.PaidAmount >= inv.InvoiceAmount {
		inv.IsPaid = true
	}
	return nil
}

// Cancel voids an unfunded receivable on the provider side.
func (p *MemoryProvider) Cancel(id uuid.UUID) error {
	inv, ok := p.invoices[id]
	if !ok {
		return fmt.Errorf("invoice %s not found", id)
	}
	if inv.IsPaid {
		return fmt.Errorf("invoice %s already paid", id)
	}
	inv.IsCanceled = true
	return nil
}
