package pool

import (
	"time"

	"FactorVault/internal/fees"
)

// FeeConfig is the pool-wide fee schedule applied to new approvals.
// Changing it never touches terms already locked into an approval record.
type FeeConfig struct {
	TargetYieldBps int64
	SpreadBps      int64
	AdminFeeBps    int64
	ProtocolFeeBps int64
	MinUpfrontBps  int64
	MaxUpfrontBps  int64
}

// Config carries the operational parameters of the fund.
type Config struct {
	Fees FeeConfig

	// ApprovalDuration bounds how long an approval stays fundable.
	ApprovalDuration time.Duration

	// GracePeriodDays is the overdue window before an invoice may be
	// marked impaired.
	GracePeriodDays int64

	// InterestCapBps bounds total periodic accrual past the due date.
	InterestCapBps int64

	// MinInterestDays floors the accrual window at settlement.
	MinInterestDays int64

	// Name is the fund's display name.
	Name string
}

// DefaultConfig mirrors the parameters the fund launches with.
func DefaultConfig() Config {
	return Config{
		Fees: FeeConfig{
			TargetYieldBps: 1000, // 10% p.a.
			SpreadBps:      0,
			AdminFeeBps:    0,
			ProtocolFeeBps: 0,
			MinUpfrontBps:  1,
			MaxUpfrontBps:  9999,
		},
		ApprovalDuration: 7 * 24 * time.Hour,
		GracePeriodDays:  60,
		InterestCapBps:   2000,
		MinInterestDays:  0,
		Name:             "FactorVault Fund",
	}
}

// terms locks the current fee schedule into per-approval terms.
func (c Config) terms(upfrontBps int64) fees.Terms {
	return fees.Terms{
		TargetYieldBps:  c.Fees.TargetYieldBps,
		SpreadBps:       c.Fees.SpreadBps,
		AdminFeeBps:     c.Fees.AdminFeeBps,
		ProtocolFeeBps:  c.Fees.ProtocolFeeBps,
		UpfrontBps:      upfrontBps,
		MinInterestDays: c.MinInterestDays,
		InterestCapBps:  c.InterestCapBps,
	}
}

// Clock abstracts wall-clock reads so accrual math is testable. The engine
// never calls time.Now() directly in accounting paths.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
