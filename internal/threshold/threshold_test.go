package threshold

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/banking/verification-service/internal/domain"
)

func TestComputeDifference(t *testing.T) {
	tests := []struct {
		name     string
		declared domain.Value
		observed domain.Value
		kind     domain.FieldType
		want     *float64
	}{
		{"currency increase", domain.CurrencyValue(5000), domain.CurrencyValue(6200), domain.FieldTypeCurrency, ptr(24)},
		{"number decrease", domain.NumberValue(200), domain.NumberValue(150), domain.FieldTypeNumber, ptr(-25)},
		{"equal", domain.CurrencyValue(10), domain.CurrencyValue(10), domain.FieldTypeCurrency, ptr(0)},
		{"declared zero", domain.CurrencyValue(0), domain.CurrencyValue(100), domain.FieldTypeCurrency, nil},
		{"declared unset", domain.Value{Kind: domain.FieldTypeNumber}, domain.NumberValue(1), domain.FieldTypeNumber, nil},
		{"observed unset", domain.NumberValue(3), domain.Value{Kind: domain.FieldTypeNumber}, domain.FieldTypeNumber, nil},
		{"declared text", domain.TextValue("abc"), domain.NumberValue(1), domain.FieldTypeNumber, nil},
		{"boolean", domain.BoolValue(true), domain.BoolValue(false), domain.FieldTypeBoolean, nil},
		{"text", domain.TextValue("a"), domain.TextValue("b"), domain.FieldTypeText, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDifference(tt.declared, tt.observed, tt.kind)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %v, got nil", *tt.want)
			}
			if math.Abs(*got-*tt.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", *tt.want, *got)
			}
		})
	}
}

func TestComputeDifferenceNeverNaNOrInf(t *testing.T) {
	property := func(declared, observed float64) bool {
		if math.IsNaN(declared) || math.IsInf(declared, 0) || math.IsNaN(observed) || math.IsInf(observed, 0) {
			return true
		}
		got := ComputeDifference(domain.CurrencyValue(declared), domain.CurrencyValue(observed), domain.FieldTypeCurrency)
		if declared == 0 {
			return got == nil
		}
		return got == nil || (!math.IsNaN(*got) && !math.IsInf(*got, 0))
	}
	if err := quick.Check(property, nil); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		diff float64
		want domain.Severity
	}{
		{0, domain.SeverityLow},
		{7.5, domain.SeverityLow},
		{-7.5, domain.SeverityLow},
		{7.6, domain.SeverityMedium},
		{15, domain.SeverityMedium},
		{-15, domain.SeverityMedium},
		{15.01, domain.SeverityHigh},
		{22.5, domain.SeverityHigh},
		{22.51, domain.SeverityCritical},
		{24, domain.SeverityCritical},
		{-300, domain.SeverityCritical},
	}
	for _, tt := range tests {
		if got := Classify(tt.diff, 15); got != tt.want {
			t.Errorf("Classify(%v, 15) = %s, want %s", tt.diff, got, tt.want)
		}
	}
}

func TestClassifyPartitionIsTotalAndContiguous(t *testing.T) {
	rank := map[domain.Severity]int{
		domain.SeverityLow:      0,
		domain.SeverityMedium:   1,
		domain.SeverityHigh:     2,
		domain.SeverityCritical: 3,
	}

	// Every difference lands in exactly one band consistent with its bounds.
	partition := func(diff, threshold float64) bool {
		if math.IsNaN(diff) || math.IsInf(diff, 0) || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			return true
		}
		threshold = math.Abs(threshold)
		if threshold == 0 {
			return true
		}
		abs := math.Abs(diff)
		got := Classify(diff, threshold)
		switch got {
		case domain.SeverityLow:
			return abs <= threshold*0.5
		case domain.SeverityMedium:
			return abs > threshold*0.5 && abs <= threshold
		case domain.SeverityHigh:
			return abs > threshold && abs <= threshold*1.5
		case domain.SeverityCritical:
			return abs > threshold*1.5
		}
		return false
	}
	if err := quick.Check(partition, nil); err != nil {
		t.Fatal(err)
	}

	// Severity never decreases as the magnitude grows.
	monotonic := func(a, b, threshold float64) bool {
		if math.IsNaN(a) || math.IsNaN(b) || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			return true
		}
		threshold = math.Abs(threshold)
		if threshold == 0 {
			return true
		}
		lo, hi := math.Abs(a), math.Abs(b)
		if lo > hi {
			lo, hi = hi, lo
		}
		return rank[Classify(lo, threshold)] <= rank[Classify(hi, threshold)]
	}
	if err := quick.Check(monotonic, nil); err != nil {
		t.Fatal(err)
	}

	// Exceeding the threshold is exactly the high and critical bands.
	exceeds := func(diff, threshold float64) bool {
		if math.IsNaN(diff) || math.IsInf(diff, 0) || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			return true
		}
		threshold = math.Abs(threshold)
		if threshold == 0 {
			return true
		}
		return ExceedsThreshold(diff, threshold) == (rank[Classify(diff, threshold)] >= 2)
	}
	if err := quick.Check(exceeds, nil); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	rule := &domain.ThresholdRule{FieldID: "monthly_income", MinPercentage: 10, MaxPercentage: 20}

	if got := Resolve(ptr(5), rule, 15, 30); got != 5 {
		t.Fatalf("expected field override 5, got %v", got)
	}
	if got := Resolve(nil, rule, 15, 30); got != 20 {
		t.Fatalf("expected max percentage 20, got %v", got)
	}
	if got := Resolve(nil, rule, 15, -30); got != 10 {
		t.Fatalf("expected min percentage 10, got %v", got)
	}
	if got := Resolve(nil, nil, 15, 30); got != 15 {
		t.Fatalf("expected fallback 15, got %v", got)
	}
	if got := Resolve(nil, &domain.ThresholdRule{FieldID: "x"}, 15, 30); got != 15 {
		t.Fatalf("expected fallback for empty rule, got %v", got)
	}
}

func TestEquivalent(t *testing.T) {
	if !Equivalent(domain.TextValue("Av. Siempre Viva 742"), domain.TextValue("av siempre  viva 742")) {
		t.Fatalf("expected normalized text to match")
	}
	if Equivalent(domain.TextValue("Bakery"), domain.TextValue("Hardware store")) {
		t.Fatalf("expected different text not to match")
	}
	if Equivalent(domain.BoolValue(true), domain.BoolValue(false)) {
		t.Fatalf("expected different booleans not to match")
	}
}

func TestEvaluate(t *testing.T) {
	field := &domain.FieldRecord{
		ID:            "monthly_income",
		Type:          domain.FieldTypeCurrency,
		DeclaredValue: domain.CurrencyValue(5000),
		ObservedValue: domain.CurrencyValue(6200),
	}
	diff, severity, used := Evaluate(field, nil, 15)
	if diff == nil || math.Abs(*diff-24) > 1e-9 {
		t.Fatalf("expected difference 24, got %v", diff)
	}
	if severity != domain.SeverityCritical {
		t.Fatalf("expected critical, got %s", severity)
	}
	if used != 15 {
		t.Fatalf("expected threshold 15, got %v", used)
	}

	text := &domain.FieldRecord{
		Type:          domain.FieldTypeText,
		DeclaredValue: domain.TextValue("Bakery"),
		ObservedValue: domain.TextValue("Hardware store"),
	}
	if _, severity, _ := Evaluate(text, nil, 15); severity != domain.SeverityMedium {
		t.Fatalf("expected medium for differing text, got %s", severity)
	}
}

func ptr(v float64) *float64 { return &v }
