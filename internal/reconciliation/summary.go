package reconciliation

import (
	"github.com/shopspring/decimal"

	"github.com/banking/verification-service/internal/domain"
)

// Financial analysis fields feeding the payment capacity rule
const (
	FieldMonthlyIncome        = "monthly_income"
	FieldMonthlyExpenses      = "monthly_expenses"
	FieldDebtPayments         = "debt_payments"
	FieldRequestedInstallment = "requested_installment"
)

var capacityDeductions = []string{
	FieldMonthlyExpenses,
	FieldDebtPayments,
	FieldRequestedInstallment,
}

// RecomputeSummary derives the application level summary from sections
// and diffs. Sections must already be recomputed.
func RecomputeSummary(inv *domain.Investigation) {
	var s domain.Summary
	touched := false
	resolved := 0

	for si := range inv.Sections {
		section := &inv.Sections[si]
		for fi := range section.Fields {
			f := &section.Fields[fi]
			s.TotalFields++
			switch f.Status {
			case domain.FieldStatusConfirmed:
				s.CompletedFields++
			case domain.FieldStatusAdjusted:
				s.AdjustedFields++
			case domain.FieldStatusBlocked:
				s.BlockedFields++
			}
			if f.IsTouched() {
				touched = true
			}
			if f.Status == domain.FieldStatusConfirmed || f.Status == domain.FieldStatusAdjusted {
				resolved++
			}
			if f.IsRequired && !f.IsResolved() {
				s.PendingRequired++
			}
		}
	}

	hasCritical := false
	for _, d := range inv.Diffs {
		if d.Severity == domain.SeverityCritical {
			hasCritical = true
			break
		}
	}

	if capacity, ok := PaymentCapacity(inv); ok {
		c := capacity.InexactFloat64()
		s.PaymentCapacity = &c
		s.NegativeCapacity = capacity.IsNegative()
	}

	s.OverallRisk = domain.CalculateRiskLevel(hasCritical, s.NegativeCapacity, s.AdjustedFields)
	s.RecommendedAction = domain.CalculateAction(s.OverallRisk, s.NegativeCapacity, s.BlockedFields)

	switch {
	case inv.IsFinalized():
		s.OverallStatus = domain.OverallStatusFinalized
	case s.BlockedFields > 0:
		s.OverallStatus = domain.OverallStatusBlocked
	case s.TotalFields > 0 && resolved == s.TotalFields:
		s.OverallStatus = domain.OverallStatusCompleted
	case touched:
		s.OverallStatus = domain.OverallStatusInProgress
	default:
		s.OverallStatus = domain.OverallStatusPending
	}

	inv.Summary = s
}

// PaymentCapacity computes income minus expenses, existing debt payments
// and the requested installment in the financial analysis section. Each
// term uses the observed value when captured, else the declared one. It
// reports false when the section or the income figure is missing.
func PaymentCapacity(inv *domain.Investigation) (decimal.Decimal, bool) {
	section, ok := inv.Section(domain.SectionFinancialAnalysis)
	if !ok {
		return decimal.Zero, false
	}

	income, ok := effectiveAmount(section, FieldMonthlyIncome)
	if !ok {
		return decimal.Zero, false
	}

	capacity := income
	for _, id := range capacityDeductions {
		if amount, ok := effectiveAmount(section, id); ok {
			capacity = capacity.Sub(amount)
		}
	}
	return capacity, true
}

func effectiveAmount(section *domain.Section, fieldID string) (decimal.Decimal, bool) {
	f, ok := section.Field(fieldID)
	if !ok {
		return decimal.Zero, false
	}
	if v, ok := f.ObservedValue.Decimal(); ok {
		return v, true
	}
	return f.DeclaredValue.Decimal()
}

// recompute refreshes every derived aggregate bottom-up
func recompute(inv *domain.Investigation) {
	for i := range inv.Sections {
		RecomputeSection(&inv.Sections[i])
	}
	RecomputeSummary(inv)
}
