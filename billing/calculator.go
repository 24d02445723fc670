/*
calculator.go - Planned and actual amount computation

PURPOSE:
  Pure, deterministic conversion of billing terms and billable hours into a
  payable VND amount. Two methods exist:

  FixedAmount:
    The actual amount IS the planned amount, for any positive hour count.
    Fixed-fee contracts are hour-insensitive by business rule. The man-month
    coefficient (hours / standard hours) is recorded for reporting only.

  Percentage (tiered overtime):
    Hours are consumed sequentially across progressive brackets, each paying
    a multiple of the hourly base rate (unit price / standard hours). The
    same shape as progressive tax brackets: the first 160 hours pay 1.00x,
    hours 181-200 pay 1.25x, and so on. The per-tier breakdown is returned
    alongside the total so it can be displayed and audited, not just summed.

PRECISION:
  All arithmetic uses decimal.Decimal. VND results are rounded to whole dong
  exactly once, at the end, so cent-level drift cannot accumulate across
  tiers. Per-tier VND amounts are rounded independently for display; the
  authoritative total always comes from the foreign-currency sum.

SEE ALSO:
  - types.go: BillingTerms and PlannedAmount
  - factory/tiers.go: JSON tier-schedule configuration
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER SCHEDULE - Data-driven overtime brackets
// =============================================================================

// Tier is one contiguous hour bracket billed at a multiple of the base rate.
// High == 0 marks the final, unbounded bracket.
type Tier struct {
	Low        int64
	High       int64
	Multiplier decimal.Decimal
}

// Unbounded reports whether the tier absorbs all remaining hours.
func (t Tier) Unbounded() bool { return t.High == 0 }

// width is the number of hours the tier can absorb. Bracket bounds are
// closed intervals, so width = high - low + 1, except the first bracket
// which starts at hour zero.
func (t Tier) width() decimal.Decimal {
	if t.Low == 0 {
		return decimal.NewFromInt(t.High)
	}
	return decimal.NewFromInt(t.High - t.Low + 1)
}

// TierSchedule is an ordered list of brackets, consumed low to high.
type TierSchedule []Tier

// DefaultTierSchedule returns the standard overtime table.
func DefaultTierSchedule() TierSchedule {
	mult := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return TierSchedule{
		{Low: 0, High: 160, Multiplier: mult("1.00")},
		{Low: 161, High: 180, Multiplier: mult("1.00")},
		{Low: 181, High: 200, Multiplier: mult("1.25")},
		{Low: 201, High: 220, Multiplier: mult("1.50")},
		{Low: 221, High: 240, Multiplier: mult("1.50")},
		{Low: 241, High: 260, Multiplier: mult("1.75")},
		{Low: 261, High: 0, Multiplier: mult("2.00")},
	}
}

// Validate checks that the schedule is non-empty, contiguous, ordered, and
// ends with exactly one unbounded bracket.
func (s TierSchedule) Validate() error {
	if len(s) == 0 {
		return newValidationError("tiers", "schedule must not be empty")
	}
	for i, t := range s {
		last := i == len(s)-1
		if !t.Multiplier.IsPositive() {
			return newValidationError("tiers", "every multiplier must be greater than zero")
		}
		if t.Unbounded() && !last {
			return newValidationError("tiers", "only the final tier may be unbounded")
		}
		if !t.Unbounded() && t.High < t.Low {
			return newValidationError("tiers", "tier upper bound must not precede lower bound")
		}
		if i == 0 {
			if t.Low != 0 {
				return newValidationError("tiers", "first tier must start at hour zero")
			}
			continue
		}
		if t.Low != s[i-1].High+1 {
			return newValidationError("tiers", "tiers must be contiguous")
		}
	}
	if !s[len(s)-1].Unbounded() {
		return newValidationError("tiers", "final tier must be unbounded")
	}
	return nil
}

// =============================================================================
// CALCULATION INPUT / RESULT
// =============================================================================

// CalculationInput carries everything the calculator needs. It deliberately
// mirrors the billing-terms fields rather than taking a ContractPayment, so
// the function stays pure and trivially testable.
type CalculationInput struct {
	Method           CalculationMethod
	BillableHours    decimal.Decimal
	UnitPriceForeign decimal.Decimal
	ExchangeRate     decimal.Decimal
	StandardHours    decimal.Decimal
	PercentageValue  decimal.Decimal
	FixedAmount      decimal.Decimal
	PlannedAmountVND VND
	Schedule         TierSchedule // nil selects the default schedule
}

// TierLine is one bracket's contribution to the actual amount.
type TierLine struct {
	Tier          int             // 1-based bracket index
	Low           int64           // bracket bounds, High 0 means unbounded
	High          int64
	Hours         decimal.Decimal // hours consumed by this bracket
	BaseRate      decimal.Decimal // foreign currency per hour
	Multiplier    decimal.Decimal
	AmountForeign decimal.Decimal
	AmountVND     VND // rounded independently, display only
}

// CalculationResult is the calculator's full output.
type CalculationResult struct {
	Method          CalculationMethod
	Lines           []TierLine      // empty for FixedAmount
	TotalForeign    decimal.Decimal // zero for FixedAmount
	ActualAmountVND VND
	Coefficient     decimal.Decimal // man-month or effective coefficient
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculate converts billable hours into the actual payable amount.
// Same inputs always produce the same result.
func Calculate(in CalculationInput) (*CalculationResult, error) {
	if !in.BillableHours.IsPositive() {
		return nil, newValidationError("billable_hours", "must be greater than zero")
	}
	if !in.StandardHours.IsPositive() {
		return nil, newValidationError("standard_hours", "must be greater than zero")
	}

	switch in.Method {
	case MethodFixedAmount:
		return calculateFixed(in), nil
	case MethodPercentage:
		return calculateTiered(in)
	default:
		return nil, newValidationError("calculation_method", "unknown method")
	}
}

// calculateFixed: the fee does not vary with hours. The coefficient is the
// plain hours-to-standard ratio, kept for reporting.
func calculateFixed(in CalculationInput) *CalculationResult {
	return &CalculationResult{
		Method:          MethodFixedAmount,
		ActualAmountVND: in.PlannedAmountVND,
		Coefficient:     in.BillableHours.Div(in.StandardHours),
	}
}

// calculateTiered walks the brackets in order, giving each bracket
// min(bracket width, remaining hours) until the hours run out.
func calculateTiered(in CalculationInput) (*CalculationResult, error) {
	if !in.UnitPriceForeign.IsPositive() {
		return nil, newValidationError("unit_price_foreign_currency", "must be greater than zero")
	}
	if !in.ExchangeRate.IsPositive() {
		return nil, newValidationError("exchange_rate", "must be greater than zero")
	}
	schedule := in.Schedule
	if schedule == nil {
		schedule = DefaultTierSchedule()
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	baseRate := in.UnitPriceForeign.Div(in.StandardHours)

	result := &CalculationResult{
		Method:       MethodPercentage,
		TotalForeign: decimal.Zero,
	}

	remaining := in.BillableHours
	for i, tier := range schedule {
		if !remaining.IsPositive() {
			break
		}

		consumed := remaining
		if !tier.Unbounded() {
			if w := tier.width(); w.LessThan(consumed) {
				consumed = w
			}
		}

		amountForeign := consumed.Mul(baseRate).Mul(tier.Multiplier)
		result.Lines = append(result.Lines, TierLine{
			Tier:          i + 1,
			Low:           tier.Low,
			High:          tier.High,
			Hours:         consumed,
			BaseRate:      baseRate,
			Multiplier:    tier.Multiplier,
			AmountForeign: amountForeign,
			AmountVND:     vnd(amountForeign.Mul(in.ExchangeRate)),
		})
		result.TotalForeign = result.TotalForeign.Add(amountForeign)
		remaining = remaining.Sub(consumed)
	}

	result.ActualAmountVND = vnd(result.TotalForeign.Mul(in.ExchangeRate))
	result.Coefficient = result.TotalForeign.Div(in.UnitPriceForeign)
	return result, nil
}
