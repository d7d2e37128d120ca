package models

import id "sprout/pkg/domain"

// StepID identifies a step within a flow.
type StepID string

// StepDefinition is immutable once a flow is loaded.
type StepDefinition struct {
	ID          StepID
	Title       string
	Fields      []FieldSpec
	Groups      []GroupSpec
	Attachments []AttachmentSpec
	// DependsOn lists steps that must be valid before this one can be entered
	// by a jump.
	DependsOn []StepID
	// Terminal marks the review step; it carries no data of its own.
	Terminal bool
}

// RequiredFieldKeys returns every field, group and attachment key bound to the step.
func (s *StepDefinition) RequiredFieldKeys() []string {
	keys := make([]string, 0, len(s.Fields)+len(s.Groups)+len(s.Attachments))
	for _, f := range s.Fields {
		keys = append(keys, f.Key)
	}
	for _, g := range s.Groups {
		keys = append(keys, g.Key)
	}
	for _, a := range s.Attachments {
		keys = append(keys, a.Key)
	}
	return keys
}

// Owns reports whether key is bound to this step.
func (s *StepDefinition) Owns(key string) bool {
	for _, k := range s.RequiredFieldKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func (s *StepDefinition) Field(key string) (*FieldSpec, bool) {
	for i := range s.Fields {
		if s.Fields[i].Key == key {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

func (s *StepDefinition) Group(key string) (*GroupSpec, bool) {
	for i := range s.Groups {
		if s.Groups[i].Key == key {
			return &s.Groups[i], true
		}
	}
	return nil, false
}

func (s *StepDefinition) Attachment(key string) (*AttachmentSpec, bool) {
	for i := range s.Attachments {
		if s.Attachments[i].Key == key {
			return &s.Attachments[i], true
		}
	}
	return nil, false
}

// PayloadSection groups aggregate keys under one nested payload name.
type PayloadSection struct {
	Name string
	Keys []string
}

// PayloadLayout shapes the submitted payload: a flat key list, nested
// sections, or both (flat keys at the top level alongside sections).
type PayloadLayout struct {
	Flat     []string
	Sections []PayloadSection
}

// Flow is a complete guided submission flow definition.
type Flow struct {
	ID         id.FlowID
	Title      string
	Steps      []StepDefinition
	CrossRules []CrossFieldRule
	Payload    PayloadLayout
}

func (f *Flow) LastIndex() int {
	return len(f.Steps) - 1
}

// Step returns the step at index i, or nil when out of range.
func (f *Flow) Step(i int) *StepDefinition {
	if i < 0 || i >= len(f.Steps) {
		return nil
	}
	return &f.Steps[i]
}

func (f *Flow) StepIndex(stepID StepID) (int, bool) {
	for i := range f.Steps {
		if f.Steps[i].ID == stepID {
			return i, true
		}
	}
	return -1, false
}

// StepOf returns the step owning key.
func (f *Flow) StepOf(key string) (*StepDefinition, bool) {
	for i := range f.Steps {
		if f.Steps[i].Owns(key) {
			return &f.Steps[i], true
		}
	}
	return nil, false
}

// GroupSpec finds a group spec anywhere in the flow.
func (f *Flow) GroupSpec(key string) (*GroupSpec, *StepDefinition, bool) {
	for i := range f.Steps {
		if g, ok := f.Steps[i].Group(key); ok {
			return g, &f.Steps[i], true
		}
	}
	return nil, nil, false
}

// AttachmentSpec finds an attachment spec anywhere in the flow.
func (f *Flow) AttachmentSpec(key string) (*AttachmentSpec, *StepDefinition, bool) {
	for i := range f.Steps {
		if a, ok := f.Steps[i].Attachment(key); ok {
			return a, &f.Steps[i], true
		}
	}
	return nil, nil, false
}
