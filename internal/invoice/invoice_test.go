package invoice_test

import (
	"testing"

	"FactorVault/internal/invoice"
)

// ============================================================================
// Test: lifecycle transitions
// ============================================================================

func TestState_CanTransitionTo(t *testing.T) {
	allowed := []struct{ from, to invoice.State }{
		{invoice.StateUnapproved, invoice.StateApproved},
		{invoice.StateApproved, invoice.StateFunded},
		{invoice.StateFunded, invoice.StatePaid},
		{invoice.StateFunded, invoice.StateImpaired},
		{invoice.StateFunded, invoice.StateUnfactored},
		{invoice.StateImpaired, invoice.StatePaid}, // recovery
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%v -> %v should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to invoice.State }{
		{invoice.StateUnapproved, invoice.StateFunded},
		{invoice.StateApproved, invoice.StatePaid},
		{invoice.StatePaid, invoice.StateFunded},
		{invoice.StateImpaired, invoice.StateUnfactored},
		{invoice.StateImpaired, invoice.StateFunded},
		{invoice.StateUnfactored, invoice.StatePaid},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%v -> %v should be rejected", tc.from, tc.to)
		}
	}
}
