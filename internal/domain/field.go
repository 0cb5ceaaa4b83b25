package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FieldStatus represents the resolution state of a field record
type FieldStatus string

const (
	FieldStatusPending   FieldStatus = "pending"
	FieldStatusConfirmed FieldStatus = "confirmed"
	FieldStatusAdjusted  FieldStatus = "adjusted"
	FieldStatusBlocked   FieldStatus = "blocked"
)

// AutoDetectedComment is stored on fields escalated by threshold validation
const AutoDetectedComment = "automatically detected difference"

// FieldRecord is one declared/observed comparison unit
type FieldRecord struct {
	ID            string      `json:"id"`
	FieldName     string      `json:"fieldName"`
	Label         string      `json:"label,omitempty"`
	Type          FieldType   `json:"type"`
	DeclaredValue Value       `json:"declaredValue"`
	ObservedValue Value       `json:"observedValue"`
	Status        FieldStatus `json:"status"`
	Comment       string      `json:"comment,omitempty"`
	Evidence      []Evidence  `json:"evidence,omitempty"`
	Threshold     *float64    `json:"threshold,omitempty"`
	IsRequired    bool        `json:"isRequired"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Evidence is an attachment reference captured on site
type Evidence struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind,omitempty"` // photo, document, note
	Reference string    `json:"reference"`
	AddedAt   time.Time `json:"addedAt"`
}

// LegacyFlags is the boolean view older clients read. It is derived from
// Status on every read and never stored.
type LegacyFlags struct {
	Verified      bool `json:"verified"`
	HasDifference bool `json:"hasDifference"`
	Blocked       bool `json:"blocked"`
}

// LegacyView derives the boolean flags from the status enum
func (f *FieldRecord) LegacyView() LegacyFlags {
	return LegacyFlags{
		Verified:      f.Status == FieldStatusConfirmed,
		HasDifference: f.Status == FieldStatusAdjusted,
		Blocked:       f.Status == FieldStatusBlocked,
	}
}

// IsLocked returns true if the observed value can no longer be written
func (f *FieldRecord) IsLocked() bool {
	return f.Status == FieldStatusConfirmed || f.Status == FieldStatusBlocked
}

// CanObserve returns true if a new observed value may be recorded
func (f *FieldRecord) CanObserve() bool {
	return f.Status == FieldStatusPending || f.Status == FieldStatusAdjusted
}

// CanConfirm returns true if the field may transition to confirmed
func (f *FieldRecord) CanConfirm() bool {
	return f.Status == FieldStatusPending && !f.ObservedValue.IsEmpty()
}

// CanAdjust returns true if the field may transition to adjusted
func (f *FieldRecord) CanAdjust() bool {
	return f.Status == FieldStatusPending || f.Status == FieldStatusAdjusted
}

// IsTouched returns true once the agent has acted on the field
func (f *FieldRecord) IsTouched() bool {
	return f.Status != FieldStatusPending || f.ObservedValue.Set
}

// IsResolved returns true for statuses that close the comparison
func (f *FieldRecord) IsResolved() bool {
	return f.Status != FieldStatusPending
}

// Clone returns a deep copy
func (f FieldRecord) Clone() FieldRecord {
	if f.Evidence != nil {
		f.Evidence = append([]Evidence(nil), f.Evidence...)
	}
	if f.Threshold != nil {
		t := *f.Threshold
		f.Threshold = &t
	}
	return f
}

type fieldRecordJSON struct {
	ID            string          `json:"id"`
	FieldName     string          `json:"fieldName"`
	Label         string          `json:"label,omitempty"`
	Type          FieldType       `json:"type"`
	DeclaredValue json.RawMessage `json:"declaredValue"`
	ObservedValue json.RawMessage `json:"observedValue"`
	Status        FieldStatus     `json:"status"`
	Comment       string          `json:"comment,omitempty"`
	Evidence      []Evidence      `json:"evidence,omitempty"`
	Threshold     *float64        `json:"threshold,omitempty"`
	IsRequired    bool            `json:"isRequired"`
	Timestamp     time.Time       `json:"timestamp"`
}

// UnmarshalJSON decodes the values using the record's type tag
func (f *FieldRecord) UnmarshalJSON(data []byte) error {
	var raw fieldRecordJSON
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
	*f = FieldRecord{
		ID:            raw.ID,
		FieldName:     raw.FieldName,
		Label:         raw.Label,
		Type:          raw.Type,
		DeclaredValue: declared,
		ObservedValue: observed,
		Status:        raw.Status,
		Comment:       raw.Comment,
		Evidence:      raw.Evidence,
		Threshold:     raw.Threshold,
		IsRequired:    raw.IsRequired,
		Timestamp:     raw.Timestamp,
	}
	return nil
}
