package usecases

import "github.com/shopspring/decimal"

// FeeMode controls who absorbs the fee.
type FeeMode string

const (
	// FeeModeInternal deducts the fee from the amount: payout = amount - fee.
	FeeModeInternal FeeMode = "INTERNAL"
	// FeeModeExternal charges the fee on top: total = amount + fee.
	FeeModeExternal FeeMode = "EXTERNAL"
)

// FeeConfig is a merchant's fee terms for one order type.
type FeeConfig struct {
	Rate    decimal.Decimal // fraction, e.g. 0.025 for 2.5%
	Fixed   decimal.Decimal
	Minimum decimal.Decimal
}

// CalculateFee returns max(amount*rate + fixed, minimum).
func CalculateFee(amount decimal.Decimal, cfg FeeConfig) decimal.Decimal {
	fee := amount.Mul(cfg.Rate).Add(cfg.Fixed)
	if fee.LessThan(cfg.Minimum) {
		return cfg.Minimum
	}
	return fee
}

// ApplyFee computes the fee and the resulting settled or charged amount.
// Internal mode returns the payout after deduction, external mode the total
// the counterparty owes.
func ApplyFee(amount decimal.Decimal, cfg FeeConfig, mode FeeMode) (fee, result decimal.Decimal) {
	fee = CalculateFee(amount, cfg)
	if mode == FeeModeExternal {
		return fee, amount.Add(fee)
	}
	return fee, amount.Sub(fee)
}
