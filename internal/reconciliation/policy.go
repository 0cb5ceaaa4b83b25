package reconciliation

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banking/verification-service/internal/domain"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// ApplicationData carries the declared values of an application. Its shape
// depends on the originating application.
type ApplicationData map[string]interface{}

// Policy describes which sections and fields an investigation starts with
type Policy struct {
	Sections []SectionPolicy `yaml:"sections"`
}

// SectionPolicy is one logical investigation domain
type SectionPolicy struct {
	ID          string        `yaml:"id"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	Required    bool          `yaml:"required"`
	Fields      []FieldPolicy `yaml:"fields"`
}

// FieldPolicy maps an application data key to a field record
type FieldPolicy struct {
	ID        string           `yaml:"id"`
	Label     string           `yaml:"label"`
	Source    string           `yaml:"source"`
	Type      domain.FieldType `yaml:"type"`
	Required  bool             `yaml:"required"`
	Threshold *float64         `yaml:"threshold"`
}

// DefaultPolicy returns the built-in section policy
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("default section policy: %v", err))
	}
	return p
}

// LoadPolicy reads a policy file
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) validate() error {
	if len(p.Sections) == 0 {
		return fmt.Errorf("policy has no sections")
	}
	sections := make(map[string]struct{}, len(p.Sections))
	fields := make(map[string]struct{})
	for _, s := range p.Sections {
		if s.ID == "" {
			return fmt.Errorf("policy section without id")
		}
		if _, dup := sections[s.ID]; dup {
			return fmt.Errorf("duplicate section %q", s.ID)
		}
		sections[s.ID] = struct{}{}

		for _, f := range s.Fields {
			if f.ID == "" {
				return fmt.Errorf("section %q: field without id", s.ID)
			}
			if !f.Type.Valid() {
				return fmt.Errorf("field %q: unknown type %q", f.ID, f.Type)
			}
			// Diffs are keyed by field id, so ids are unique per investigation
			if _, dup := fields[f.ID]; dup {
				return fmt.Errorf("duplicate field %q", f.ID)
			}
			fields[f.ID] = struct{}{}
		}
	}
	return nil
}

// Build creates a fresh investigation from application data. Sections
// left without fields are omitted.
func (p *Policy) Build(applicationID string, data ApplicationData, rules []domain.ThresholdRule, now time.Time) (*domain.Investigation, error) {
	inv := &domain.Investigation{
		ApplicationID: applicationID,
		Sections:      make([]domain.Section, 0, len(p.Sections)),
		Diffs:         make(map[string]domain.DetectedDifference),
		Metadata:      domain.Metadata{StartedAt: now},
	}

	if len(rules) > 0 {
		inv.Thresholds = make(map[string]domain.ThresholdRule, len(rules))
		for _, r := range rules {
			if r.FieldID != "" {
				inv.Thresholds[r.FieldID] = r
			}
		}
	}

	for _, sp := range p.Sections {
		section := domain.Section{
			ID:          sp.ID,
			Title:       sp.Title,
			Description: sp.Description,
			Required:    sp.Required,
			Fields:      make([]domain.FieldRecord, 0, len(sp.Fields)),
		}

		for _, fp := range sp.Fields {
			source := fp.Source
			if source == "" {
				source = fp.ID
			}
			raw, ok := lookup(data, source)
			if !ok {
				continue
			}
			declared, err := domain.ParseValue(fp.Type, raw)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fp.ID, err)
			}

			record := domain.FieldRecord{
				ID:            fp.ID,
				FieldName:     source,
				Label:         fp.Label,
				Type:          fp.Type,
				DeclaredValue: declared,
				ObservedValue: domain.Value{Kind: fp.Type},
				Status:        domain.FieldStatusPending,
				IsRequired:    fp.Required,
				Timestamp:     now,
			}
			if fp.Threshold != nil {
				t := *fp.Threshold
				record.Threshold = &t
			}
			section.Fields = append(section.Fields, record)
		}

		if len(section.Fields) > 0 {
			inv.Sections = append(inv.Sections, section)
		}
	}

	recompute(inv)
	return inv, nil
}

// lookup resolves a dotted path through nested objects
func lookup(data map[string]interface{}, path string) (interface{}, bool) {
	if v, ok := data[path]; ok {
		return v, v != nil
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	switch nested := data[head].(type) {
	case map[string]interface{}:
		return lookup(nested, rest)
	case ApplicationData:
		return lookup(nested, rest)
	}
	return nil, false
}
