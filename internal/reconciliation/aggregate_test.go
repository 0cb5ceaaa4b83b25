package reconciliation

import (
	"math/rand"
	"testing"

	"github.com/banking/verification-service/internal/domain"
)

func fieldsWith(statuses ...domain.FieldStatus) []domain.FieldRecord {
	out := make([]domain.FieldRecord, len(statuses))
	for i, s := range statuses {
		out[i] = domain.FieldRecord{ID: string(rune('a' + i)), Type: domain.FieldTypeNumber, Status: s}
	}
	return out
}

func TestRecomputeSection(t *testing.T) {
	const (
		p = domain.FieldStatusPending
		c = domain.FieldStatusConfirmed
		a = domain.FieldStatusAdjusted
		b = domain.FieldStatusBlocked
	)

	tests := []struct {
		name       string
		fields     []domain.FieldRecord
		wantStatus domain.SectionStatus
		wantPct    int
		wantDone   int
	}{
		{"empty section", nil, domain.SectionStatusPending, 0, 0},
		{"untouched", fieldsWith(p, p, p), domain.SectionStatusPending, 0, 0},
		{"one confirmed", fieldsWith(c, p, p), domain.SectionStatusInProgress, 33, 1},
		{"two of three", fieldsWith(c, c, p), domain.SectionStatusInProgress, 67, 2},
		{"all confirmed", fieldsWith(c, c, c), domain.SectionStatusCompleted, 100, 3},
		{"adjusted counts as touched", fieldsWith(a, p), domain.SectionStatusInProgress, 0, 0},
		{"adjusted is not completed", fieldsWith(c, a), domain.SectionStatusInProgress, 50, 1},
		{"blocked wins over progress", fieldsWith(c, b, p), domain.SectionStatusBlocked, 33, 1},
		{"blocked only", fieldsWith(b), domain.SectionStatusBlocked, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &domain.Section{ID: "s", Fields: tt.fields}
			RecomputeSection(s)

			if s.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", s.Status, tt.wantStatus)
			}
			if s.Progress.Percentage != tt.wantPct || s.Progress.Completed != tt.wantDone || s.Progress.Total != len(tt.fields) {
				t.Errorf("progress = %+v", s.Progress)
			}
		})
	}
}

func TestRecomputeSectionRoundedHundredIsNotCompleted(t *testing.T) {
	statuses := make([]domain.FieldStatus, 200)
	for i := range statuses {
		statuses[i] = domain.FieldStatusConfirmed
	}
	statuses[0] = domain.FieldStatusPending

	s := &domain.Section{Fields: fieldsWith(statuses...)}
	RecomputeSection(s)

	if s.Progress.Percentage != 100 || s.Progress.Completed != 199 {
		t.Fatalf("progress = %+v, want 100%% with 199 completed", s.Progress)
	}
	if s.Status != domain.SectionStatusInProgress {
		t.Fatalf("status = %s, want in_progress", s.Status)
	}
}

func TestRecomputeSectionObservedValueTouches(t *testing.T) {
	s := &domain.Section{Fields: fieldsWith(domain.FieldStatusPending, domain.FieldStatusPending)}
	s.Fields[1].ObservedValue = domain.NumberValue(3)
	RecomputeSection(s)
	if s.Status != domain.SectionStatusInProgress {
		t.Fatalf("status = %s, want in_progress", s.Status)
	}
}

func TestRecomputeSectionIgnoresFieldOrder(t *testing.T) {
	statuses := []domain.FieldStatus{
		domain.FieldStatusPending,
		domain.FieldStatusConfirmed,
		domain.FieldStatusAdjusted,
		domain.FieldStatusBlocked,
	}
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		n := rng.Intn(8)
		picked := make([]domain.FieldStatus, n)
		for i := range picked {
			picked[i] = statuses[rng.Intn(len(statuses))]
		}

		base := &domain.Section{Fields: fieldsWith(picked...)}
		RecomputeSection(base)

		shuffled := &domain.Section{Fields: fieldsWith(picked...)}
		rng.Shuffle(len(shuffled.Fields), func(i, j int) {
			shuffled.Fields[i], shuffled.Fields[j] = shuffled.Fields[j], shuffled.Fields[i]
		})
		RecomputeSection(shuffled)

		if base.Status != shuffled.Status || base.Progress != shuffled.Progress {
			t.Fatalf("statuses %v: %s %+v vs %s %+v", picked, base.Status, base.Progress, shuffled.Status, shuffled.Progress)
		}
	}
}

func TestRecomputeSummaryOverallStatus(t *testing.T) {
	const (
		p = domain.FieldStatusPending
		c = domain.FieldStatusConfirmed
		a = domain.FieldStatusAdjusted
		b = domain.FieldStatusBlocked
	)

	tests := []struct {
		name   string
		fields []domain.FieldRecord
		want   domain.OverallStatus
	}{
		{"pending", fieldsWith(p, p), domain.OverallStatusPending},
		{"in progress", fieldsWith(c, p), domain.OverallStatusInProgress},
		{"completed with adjustments", fieldsWith(c, a), domain.OverallStatusCompleted},
		{"blocked", fieldsWith(c, b), domain.OverallStatusBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &domain.Investigation{Sections: []domain.Section{{ID: "s", Fields: tt.fields}}}
			recompute(inv)
			if inv.Summary.OverallStatus != tt.want {
				t.Fatalf("overall status = %s, want %s", inv.Summary.OverallStatus, tt.want)
			}
		})
	}
}

func TestRecomputeSummaryCountsRequiredPending(t *testing.T) {
	fields := fieldsWith(domain.FieldStatusPending, domain.FieldStatusPending, domain.FieldStatusConfirmed)
	fields[0].IsRequired = true
	fields[2].IsRequired = true

	inv := &domain.Investigation{Sections: []domain.Section{{ID: "s", Fields: fields}}}
	RecomputeSummary(inv)
	if inv.Summary.PendingRequired != 1 || inv.Summary.CompletedFields != 1 || inv.Summary.TotalFields != 3 {
		t.Fatalf("summary = %+v", inv.Summary)
	}
}

func TestRecomputeSummaryRisk(t *testing.T) {
	financial := func(income, expenses float64) domain.Section {
		return domain.Section{
			ID: domain.SectionFinancialAnalysis,
			Fields: []domain.FieldRecord{
				{ID: FieldMonthlyIncome, Type: domain.FieldTypeCurrency, DeclaredValue: domain.CurrencyValue(income), Status: domain.FieldStatusPending},
				{ID: FieldMonthlyExpenses, Type: domain.FieldTypeCurrency, DeclaredValue: domain.CurrencyValue(expenses), Status: domain.FieldStatusPending},
			},
		}
	}

	tests := []struct {
		name       string
		section    domain.Section
		diffs      map[string]domain.DetectedDifference
		wantRisk   domain.RiskLevel
		wantAction domain.RecommendedAction
	}{
		{
			name:       "clean",
			section:    financial(4000, 1000),
			wantRisk:   domain.RiskLevelLow,
			wantAction: domain.ActionApprove,
		},
		{
			name:       "critical difference",
			section:    financial(4000, 1000),
			diffs:      map[string]domain.DetectedDifference{"x": {Severity: domain.SeverityCritical}},
			wantRisk:   domain.RiskLevelHigh,
			wantAction: domain.ActionAdjustCredit,
		},
		{
			name:       "negative capacity",
			section:    financial(1000, 1500),
			wantRisk:   domain.RiskLevelHigh,
			wantAction: domain.ActionReject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &domain.Investigation{Sections: []domain.Section{tt.section}, Diffs: tt.diffs}
			RecomputeSummary(inv)
			if inv.Summary.OverallRisk != tt.wantRisk || inv.Summary.RecommendedAction != tt.wantAction {
				t.Fatalf("summary = %+v", inv.Summary)
			}
		})
	}
}

func TestPaymentCapacityPrefersObservedValues(t *testing.T) {
	inv := &domain.Investigation{Sections: []domain.Section{{
		ID: domain.SectionFinancialAnalysis,
		Fields: []domain.FieldRecord{
			{ID: FieldMonthlyIncome, Type: domain.FieldTypeCurrency, DeclaredValue: domain.CurrencyValue(3000), ObservedValue: domain.CurrencyValue(2500.50)},
			{ID: FieldDebtPayments, Type: domain.FieldTypeCurrency, DeclaredValue: domain.CurrencyValue(400.25)},
			{ID: FieldRequestedInstallment, Type: domain.FieldTypeCurrency, DeclaredValue: domain.CurrencyValue(600)},
		},
	}}}

	capacity, ok := PaymentCapacity(inv)
	if !ok {
		t.Fatal("expected a capacity")
	}
	if capacity.String() != "1500.25" {
		t.Fatalf("capacity = %s, want 1500.25", capacity)
	}
}
