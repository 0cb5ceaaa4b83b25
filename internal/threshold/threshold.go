// Package threshold computes declared/observed differences and classifies
// them against significance thresholds. Everything here is pure.
package threshold

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/banking/verification-service/internal/domain"
)

// Band multipliers over the configured threshold
const (
	lowBand    = 0.5
	mediumBand = 1.0
	highBand   = 1.5
)

var hundred = decimal.NewFromInt(100)

// ComputeDifference returns the signed percentage change from declared to
// observed for numeric field types. It returns nil when the declared value
// is zero, either side is unset or not numeric, or the type is compared by
// equality (boolean, text).
func ComputeDifference(declared, observed domain.Value, kind domain.FieldType) *float64 {
	if !kind.IsNumeric() {
		return nil
	}

	d, ok := declared.Decimal()
	if !ok || d.IsZero() {
		return nil
	}
	o, ok := observed.Decimal()
	if !ok {
		return nil
	}

	diff, _ := o.Sub(d).Div(d).Mul(hundred).Float64()
	if math.IsNaN(diff) || math.IsInf(diff, 0) {
		return nil
	}
	return &diff
}

// Classify maps a difference onto a severity band. Each band is inclusive
// on its upper bound, so a difference exactly at the threshold is medium.
func Classify(difference, threshold float64) domain.Severity {
	abs := math.Abs(difference)
	switch {
	case abs <= threshold*lowBand:
		return domain.SeverityLow
	case abs <= threshold*mediumBand:
		return domain.SeverityMedium
	case abs <= threshold*highBand:
		return domain.SeverityHigh
	default:
		return domain.SeverityCritical
	}
}

// ExceedsThreshold returns true if |difference| > threshold
func ExceedsThreshold(difference, threshold float64) bool {
	return math.Abs(difference) > threshold
}

// Resolve picks the threshold that applies to a difference. A field level
// override wins, then the investigation's snapshot rule (MinPercentage for
// negative differences, MaxPercentage for positive ones), then fallback.
func Resolve(override *float64, rule *domain.ThresholdRule, fallback, difference float64) float64 {
	if override != nil && *override > 0 {
		return *override
	}
	if rule != nil {
		bound := rule.MaxPercentage
		if difference < 0 {
			bound = rule.MinPercentage
		}
		if bound < 0 {
			bound = -bound
		}
		if bound > 0 {
			return bound
		}
	}
	return fallback
}

// Equivalent compares values of equality-typed fields. Text is compared
// after normalization so casing and punctuation do not count as differences.
func Equivalent(declared, observed domain.Value) bool {
	if declared.IsEmpty() || observed.IsEmpty() {
		return declared.IsEmpty() == observed.IsEmpty()
	}
	switch declared.Kind {
	case domain.FieldTypeBoolean:
		return declared.Bool == observed.Bool
	case domain.FieldTypeText:
		return normalizeText(declared.Text) == normalizeText(observed.Text)
	default:
		d, dok := declared.Decimal()
		o, ook := observed.Decimal()
		return dok && ook && d.Equal(o)
	}
}

// Evaluate returns the difference and severity recorded for an adjusted
// field. Differences that cannot be expressed as a percentage get medium
// when the values are not equivalent.
func Evaluate(field *domain.FieldRecord, rule *domain.ThresholdRule, fallback float64) (*float64, domain.Severity, float64) {
	diff := ComputeDifference(field.DeclaredValue, field.ObservedValue, field.Type)
	if diff == nil {
		if Equivalent(field.DeclaredValue, field.ObservedValue) {
			return nil, domain.SeverityLow, fallback
		}
		return nil, domain.SeverityMedium, fallback
	}
	t := Resolve(field.Threshold, rule, fallback, *diff)
	return diff, Classify(*diff, t), t
}

// normalizeText normalizes free text for comparison
func normalizeText(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
