package reconciliation

import (
	"math"

	"github.com/banking/verification-service/internal/domain"
)

// RecomputeSection derives progress and status from the section's fields.
// The result does not depend on field order. A section is completed only
// when every field is confirmed, even if the rounded percentage reads 100.
func RecomputeSection(section *domain.Section) {
	total := len(section.Fields)
	completed := 0
	blocked := false
	touched := false

	for i := range section.Fields {
		f := &section.Fields[i]
		switch f.Status {
		case domain.FieldStatusConfirmed:
			completed++
		case domain.FieldStatusBlocked:
			blocked = true
		}
		if f.IsTouched() {
			touched = true
		}
	}

	percentage := 0
	if total > 0 {
		percentage = int(math.Round(float64(completed) / float64(total) * 100))
	}

	section.Progress = domain.Progress{
		Completed:  completed,
		Total:      total,
		Percentage: percentage,
	}

	switch {
	case total > 0 && completed == total:
		section.Status = domain.SectionStatusCompleted
	case blocked:
		section.Status = domain.SectionStatusBlocked
	case (percentage > 0 && percentage < 100) || touched:
		section.Status = domain.SectionStatusInProgress
	default:
		section.Status = domain.SectionStatusPending
	}
}
