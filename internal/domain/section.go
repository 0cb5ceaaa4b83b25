package domain

// SectionStatus is derived from the section's field records
type SectionStatus string

const (
	SectionStatusPending    SectionStatus = "pending"
	SectionStatusInProgress SectionStatus = "in_progress"
	SectionStatusCompleted  SectionStatus = "completed"
	SectionStatusBlocked    SectionStatus = "blocked"
)

// Progress counts confirmed fields in a section
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Section groups the field records of one investigation domain.
// Progress and Status are only ever written by the aggregator.
type Section struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Fields      []FieldRecord `json:"fields"`
	Progress    Progress      `json:"progress"`
	Status      SectionStatus `json:"status"`
}

// Field returns the field record with the given id
func (s *Section) Field(fieldID string) (*FieldRecord, bool) {
	for i := range s.Fields {
		if s.Fields[i].ID == fieldID {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy
func (s Section) Clone() Section {
	fields := make([]FieldRecord, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = f.Clone()
	}
	s.Fields = fields
	return s
}

// SectionProgress is the lean view rendered by progress widgets
type SectionProgress struct {
	SectionID string        `json:"sectionId"`
	Title     string        `json:"title"`
	Required  bool          `json:"required"`
	Progress  Progress      `json:"progress"`
	Status    SectionStatus `json:"status"`
}

// ToProgress converts a Section to SectionProgress
func (s *Section) ToProgress() *SectionProgress {
	return &SectionProgress{
		SectionID: s.ID,
		Title:     s.Title,
		Required:  s.Required,
		Progress:  s.Progress,
		Status:    s.Status,
	}
}
