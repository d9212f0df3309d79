package domain

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Step is one touchpoint in a sequence: a day offset from enrollment and a
// content intent driving composition.
type Step struct {
	// OffsetDays is relative to enrollment time, not to the previous step.
	// Due times stay anchored to enrollment so a missed tick never
	// compounds delay for later steps.
	OffsetDays int    `yaml:"offset_days"`
	Intent     string `yaml:"intent"`
	// Prompt is an optional Liquid template overriding the default step
	// prompt given to the generative backend.
	Prompt string `yaml:"prompt"`
}

// SequenceTemplate is the immutable ordered list of steps. Loaded once at
// startup; a template change never retroactively alters in-flight state.
type SequenceTemplate struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Len returns the number of steps.
func (t *SequenceTemplate) Len() int {
	return len(t.Steps)
}

// Step returns the step at index i.
func (t *SequenceTemplate) Step(i int) Step {
	return t.Steps[i]
}

// DueAt computes the absolute due time of step i for a contact enrolled at
// enrolledAt.
func (t *SequenceTemplate) DueAt(enrolledAt time.Time, i int) time.Time {
	return enrolledAt.Add(time.Duration(t.Steps[i].OffsetDays) * 24 * time.Hour)
}

// ParseTemplate parses and validates a sequence template from YAML.
// Template errors are fatal at startup, never handled per contact.
func ParseTemplate(data []byte) (*SequenceTemplate, error) {
	var t SequenceTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse sequence template: %w", err)
	}

	if err := ValidateTemplate(&t); err != nil {
		return nil, err
	}

	return &t, nil
}

// LoadTemplateFile reads and parses a sequence template from a YAML file.
func LoadTemplateFile(path string) (*SequenceTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence template %s: %w", path, err)
	}
	return ParseTemplate(data)
}

// ValidateTemplate validates a SequenceTemplate instance.
func ValidateTemplate(t *SequenceTemplate) error {
	if t == nil {
		return fmt.Errorf("sequence template cannot be nil")
	}

	if t.Name == "" {
		return fmt.Errorf("sequence template Name is required")
	}

	if len(t.Steps) == 0 {
		return fmt.Errorf("sequence template must have at least one step")
	}

	prev := -1
	for i, step := range t.Steps {
		if step.OffsetDays < 0 {
			return fmt.Errorf("step %d: offset_days must not be negative", i)
		}
		if step.OffsetDays < prev {
			return fmt.Errorf("step %d: offset_days must not decrease (got %d after %d)", i, step.OffsetDays, prev)
		}
		if step.Intent == "" {
			return fmt.Errorf("step %d: intent is required", i)
		}
		prev = step.OffsetDays
	}

	return nil
}
