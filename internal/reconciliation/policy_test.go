package reconciliation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banking/verification-service/internal/domain"
)

func TestDefaultPolicyCoversInvestigationDomains(t *testing.T) {
	p := DefaultPolicy()

	var ids []string
	for _, s := range p.Sections {
		ids = append(ids, s.ID)
	}
	want := []string{domain.SectionPersonalData, domain.SectionEconomicActivity, domain.SectionFinancialAnalysis}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("sections = %v, want %v", ids, want)
	}
}

func TestParsePolicyRejectsInvalidDocuments(t *testing.T) {
	tests := map[string]string{
		"no sections":       "sections: []",
		"missing id":        "sections:\n  - title: x\n",
		"unknown type":      "sections:\n  - id: a\n    fields:\n      - id: f\n        type: date\n",
		"duplicate field":   "sections:\n  - id: a\n    fields:\n      - id: f\n        type: text\n  - id: b\n    fields:\n      - id: f\n        type: number\n",
		"duplicate section": "sections:\n  - id: a\n  - id: a\n",
		"not yaml":          "sections: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePolicy([]byte(doc)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestPolicyBuildReadsNestedSources(t *testing.T) {
	doc := `
sections:
  - id: household
    title: Household
    fields:
      - id: spouse_income
        source: spouse.income
        type: currency
        threshold: 20
      - id: has_vehicle
        source: assets.vehicle
        type: boolean
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	inv, err := p.Build("APP-9", ApplicationData{
		"spouse": map[string]interface{}{"income": "1,250.00"},
		"assets": map[string]interface{}{"vehicle": "si"},
	}, []domain.ThresholdRule{{FieldID: "spouse_income", MaxPercentage: 40}, {MaxPercentage: 1}}, now)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	section, ok := inv.Section("household")
	if !ok || len(section.Fields) != 2 {
		t.Fatalf("household section = %+v", inv.Sections)
	}
	income, _ := section.Field("spouse_income")
	if income.DeclaredValue.String() != "1250.00" || income.Threshold == nil || *income.Threshold != 20 || income.FieldName != "spouse.income" {
		t.Fatalf("spouse_income = %+v", income)
	}
	vehicle, _ := section.Field("has_vehicle")
	if !vehicle.DeclaredValue.Bool {
		t.Fatal("has_vehicle should be true")
	}

	if len(inv.Thresholds) != 1 || inv.Thresholds["spouse_income"].MaxPercentage != 40 {
		t.Fatalf("thresholds = %+v", inv.Thresholds)
	}
	if !inv.Metadata.StartedAt.Equal(now) || inv.Metadata.CompletedAt != nil {
		t.Fatalf("metadata = %+v", inv.Metadata)
	}
}

func TestPolicyBuildSkipsNullValues(t *testing.T) {
	inv, err := DefaultPolicy().Build("APP-10", ApplicationData{"full_name": nil, "phone": "9999-0000"}, nil, time.Now())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	section, _ := inv.Section(domain.SectionPersonalData)
	if _, ok := section.Field("full_name"); ok {
		t.Fatal("null declared value should be skipped")
	}
	if _, ok := section.Field("phone"); !ok {
		t.Fatal("phone should be present")
	}
}
