package domain

import (
	"encoding/json"
	"time"
)

// Well-known section identifiers produced by the default section policy
const (
	SectionPersonalData      = "personal_data"
	SectionEconomicActivity  = "economic_activity"
	SectionFinancialAnalysis = "financial_analysis"
)

// Investigation is the field verification state of one loan application
type Investigation struct {
	ApplicationID string                        `json:"applicationId"`
	Sections      []Section                     `json:"sections"`
	Diffs         map[string]DetectedDifference `json:"diffs"`
	Summary       Summary                       `json:"summary"`
	Thresholds    map[string]ThresholdRule      `json:"thresholds,omitempty"`
	Metadata      Metadata                      `json:"metadata"`
}

// Metadata holds investigation timestamps
type Metadata struct {
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// ThresholdRule is the per-field significance configuration captured at
// initialization. MinPercentage bounds negative differences and
// MaxPercentage bounds positive ones.
type ThresholdRule struct {
	FieldID       string  `json:"fieldId" mapstructure:"field_id" yaml:"field_id"`
	MinPercentage float64 `json:"minPercentage" mapstructure:"min_percentage" yaml:"min_percentage"`
	MaxPercentage float64 `json:"maxPercentage" mapstructure:"max_percentage" yaml:"max_percentage"`
}

// DetectedDifference is the classified delta recorded when a field is adjusted
type DetectedDifference struct {
	Field         string    `json:"field"`
	Type          FieldType `json:"type"`
	DeclaredValue Value     `json:"declaredValue"`
	ObservedValue Value     `json:"observedValue"`
	Difference    *float64  `json:"difference"`
	Severity      Severity  `json:"severity"`
	AutoDetected  bool      `json:"autoDetected"`
	DetectedAt    time.Time `json:"detectedAt"`
}

// Summary is the application level aggregate
type Summary struct {
	TotalFields       int               `json:"totalFields"`
	CompletedFields   int               `json:"completedFields"`
	AdjustedFields    int               `json:"adjustedFields"`
	BlockedFields     int               `json:"blockedFields"`
	PendingRequired   int               `json:"pendingRequired"`
	OverallStatus     OverallStatus     `json:"overallStatus"`
	OverallRisk       RiskLevel         `json:"overallRisk"`
	RecommendedAction RecommendedAction `json:"recommendedAction"`
	PaymentCapacity   *float64          `json:"paymentCapacity,omitempty"`
	NegativeCapacity  bool              `json:"negativeCapacity"`
}

// IsFinalized returns true once the investigation has been closed
func (i *Investigation) IsFinalized() bool {
	return i.Metadata.CompletedAt != nil
}

// Section returns the section with the given id
func (i *Investigation) Section(sectionID string) (*Section, bool) {
	for idx := range i.Sections {
		if i.Sections[idx].ID == sectionID {
			return &i.Sections[idx], true
		}
	}
	return nil, false
}

// Clone returns a deep copy safe to hand to readers
func (i *Investigation) Clone() *Investigation {
	out := *i
	out.Sections = make([]Section, len(i.Sections))
	for idx, s := range i.Sections {
		out.Sections[idx] = s.Clone()
	}
	out.Diffs = make(map[string]DetectedDifference, len(i.Diffs))
	for k, d := range i.Diffs {
		out.Diffs[k] = d.Clone()
	}
	if i.Thresholds != nil {
		out.Thresholds = make(map[string]ThresholdRule, len(i.Thresholds))
		for k, r := range i.Thresholds {
			out.Thresholds[k] = r
		}
	}
	if i.Metadata.CompletedAt != nil {
		t := *i.Metadata.CompletedAt
		out.Metadata.CompletedAt = &t
	}
	out.Summary = i.Summary.Clone()
	return &out
}

// Clone returns a deep copy
func (d DetectedDifference) Clone() DetectedDifference {
	if d.Difference != nil {
		v := *d.Difference
		d.Difference = &v
	}
	return d
}

// Clone returns a deep copy
func (s Summary) Clone() Summary {
	if s.PaymentCapacity != nil {
		v := *s.PaymentCapacity
		s.PaymentCapacity = &v
	}
	return s
}

type detectedDifferenceJSON struct {
	Field         string          `json:"field"`
	Type          FieldType       `json:"type"`
	DeclaredValue json.RawMessage `json:"declaredValue"`
	ObservedValue json.RawMessage `json:"observedValue"`
	Difference    *float64        `json:"difference"`
	Severity      Severity        `json:"severity"`
	AutoDetected  bool            `json:"autoDetected"`
	DetectedAt    time.Time       `json:"detectedAt"`
}

// UnmarshalJSON decodes the values using the difference's type tag
func (d *DetectedDifference) UnmarshalJSON(data []byte) error {
	var raw detectedDifferenceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	declared, err := decodeValue(raw.Type, raw.DeclaredValue)
	if err != nil {
		return err
	}
	observed, err := decodeValue(raw.Type, raw.ObservedValue)
	if err != nil {
		return err
	}
	*d = DetectedDifference{
		Field:         raw.Field,
		Type:          raw.Type,
		DeclaredValue: declared,
		ObservedValue: observed,
		Difference:    raw.Difference,
		Severity:      raw.Severity,
		AutoDetected:  raw.AutoDetected,
		DetectedAt:    raw.DetectedAt,
	}
	return nil
}

// FinalizationCheck explains whether an investigation may be finalized
type FinalizationCheck struct {
	ApplicationID    string   `json:"applicationId"`
	Allowed          bool     `json:"allowed"`
	BlockedFields    int      `json:"blockedFields"`
	GeolocationValid bool     `json:"geolocationValid"`
	Reasons          []string `json:"reasons,omitempty"`
}

// InvestigationSummary is a lean DTO for list views
type InvestigationSummary struct {
	ApplicationID string     `json:"applicationId"`
	Summary       Summary    `json:"summary"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// ToSummary converts Investigation to InvestigationSummary
func (i *Investigation) ToSummary() *InvestigationSummary {
	c := i.Clone()
	return &InvestigationSummary{
		ApplicationID: c.ApplicationID,
		Summary:       c.Summary,
		StartedAt:     c.Metadata.StartedAt,
		CompletedAt:   c.Metadata.CompletedAt,
	}
}
