package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		kind    FieldType
		raw     interface{}
		want    string
		wantErr bool
	}{
		{"currency float", FieldTypeCurrency, 5000.5, "5000.50", false},
		{"currency formatted string", FieldTypeCurrency, "$2,000.00", "2000.00", false},
		{"number int", FieldTypeNumber, 3, "3", false},
		{"number json", FieldTypeNumber, json.Number("12.25"), "12.25", false},
		{"number garbage", FieldTypeNumber, "twelve", "", true},
		{"number blank", FieldTypeNumber, "  ", "", true},
		{"number from bool", FieldTypeNumber, true, "", true},
		{"boolean yes", FieldTypeBoolean, "Sí", "true", false},
		{"boolean bad", FieldTypeBoolean, "maybe", "", true},
		{"text from number", FieldTypeText, 42, "42", false},
		{"unknown type", FieldType("date"), "2024-01-01", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseValue(tt.kind, tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("ParseValue() error = %v, want ErrInvalidValue", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseValue() error = %v", err)
			}
			if got := v.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseValueNilIsUnset(t *testing.T) {
	v, err := ParseValue(FieldTypeCurrency, nil)
	if err != nil {
		t.Fatalf("ParseValue() error = %v", err)
	}
	if v.Set || !v.IsEmpty() || v.Kind != FieldTypeCurrency {
		t.Fatalf("value = %+v", v)
	}
	if TextValue("   ").IsEmpty() != true {
		t.Fatal("blank text should be empty")
	}
}

func TestFieldRecordPersistsBareScalars(t *testing.T) {
	threshold := 25.0
	f := FieldRecord{
		ID:            "monthly_income",
		Type:          FieldTypeCurrency,
		DeclaredValue: CurrencyValue(5000),
		ObservedValue: DecimalValue(FieldTypeCurrency, decimal.RequireFromString("6200.10")),
		Status:        FieldStatusAdjusted,
		Threshold:     &threshold,
		Timestamp:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["declaredValue"] != float64(5000) || raw["observedValue"] != 6200.1 {
		t.Fatalf("encoded values = %v / %v", raw["declaredValue"], raw["observedValue"])
	}

	var back FieldRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	got, ok := back.ObservedValue.Decimal()
	if !ok || !got.Equal(decimal.RequireFromString("6200.1")) {
		t.Fatalf("observed = %v", back.ObservedValue)
	}
	if back.DeclaredValue.String() != "5000.00" || *back.Threshold != 25 {
		t.Fatalf("record = %+v", back)
	}
}

func TestUnsetValueEncodesNull(t *testing.T) {
	f := FieldRecord{ID: "phone", Type: FieldTypeText, DeclaredValue: TextValue("555-0101")}
	data, _ := json.Marshal(f)

	var back FieldRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.ObservedValue.Set || back.ObservedValue.Kind != FieldTypeText {
		t.Fatalf("observed = %+v", back.ObservedValue)
	}
}

func TestLegacyView(t *testing.T) {
	tests := []struct {
		status FieldStatus
		want   LegacyFlags
	}{
		{FieldStatusPending, LegacyFlags{}},
		{FieldStatusConfirmed, LegacyFlags{Verified: true}},
		{FieldStatusAdjusted, LegacyFlags{HasDifference: true}},
		{FieldStatusBlocked, LegacyFlags{Blocked: true}},
	}
	for _, tt := range tests {
		f := &FieldRecord{Status: tt.status}
		if got := f.LegacyView(); got != tt.want {
			t.Errorf("LegacyView(%s) = %+v, want %+v", tt.status, got, tt.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	threshold := 10.0
	inv := &Investigation{
		ApplicationID: "APP-1",
		Sections: []Section{{
			ID: SectionPersonalData,
			Fields: []FieldRecord{{
				ID:        "full_name",
				Evidence:  []Evidence{{Reference: "img-1"}},
				Threshold: &threshold,
			}},
		}},
		Diffs: map[string]DetectedDifference{"full_name": {Field: "full_name"}},
	}

	c := inv.Clone()
	c.Sections[0].Fields[0].Evidence[0].Reference = "changed"
	*c.Sections[0].Fields[0].Threshold = 99
	c.Diffs["other"] = DetectedDifference{}

	orig := inv.Sections[0].Fields[0]
	if orig.Evidence[0].Reference != "img-1" || *orig.Threshold != 10 || len(inv.Diffs) != 1 {
		t.Fatalf("clone shares memory with original: %+v", orig)
	}
}

func TestRejectionMatchesReasons(t *testing.T) {
	rej := &Rejection{Op: "finalize", Reasons: []error{ErrBlockedFields, ErrGeolocationInvalid}}
	var err error = fmt.Errorf("wrapped: %w", rej)

	if !errors.Is(err, ErrBlockedFields) || !errors.Is(err, ErrGeolocationInvalid) {
		t.Fatal("rejection should match both reasons")
	}
	if errors.Is(err, ErrFinalized) {
		t.Fatal("rejection matched an unrelated reason")
	}
	codes := rej.Codes()
	if len(codes) != 2 || codes[0] != "BLOCKED_FIELDS" || codes[1] != "GEOLOCATION_INVALID" {
		t.Fatalf("codes = %v", codes)
	}
	if ReasonCode(err) != "BLOCKED_FIELDS" {
		t.Fatalf("ReasonCode() = %s", ReasonCode(err))
	}
	if ReasonCode(errors.New("boom")) != "UNKNOWN" {
		t.Fatal("unknown errors should map to UNKNOWN")
	}
}
