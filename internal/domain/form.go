// Package domain contains core domain types for the IntelliForm application.
package domain

import (
	"maps"
	"slices"
)

// FormDefinition describes a government form type.
type FormDefinition struct {
	Type           string   `json:"type" yaml:"type"`
	Name           string   `json:"name" yaml:"name"`
	Authority      string   `json:"authority" yaml:"authority"`
	FormNumber     string   `json:"form_number" yaml:"form_number"`
	Fields         []string `json:"fields,omitempty" yaml:"fields"`
	Documents      []string `json:"documents,omitempty" yaml:"documents"`
	Fee            string   `json:"fee,omitempty" yaml:"fee"`
	ProcessingTime string   `json:"processing_time,omitempty" yaml:"processing_time"`
	Eligibility    string   `json:"eligibility,omitempty" yaml:"eligibility"`
	TotalFields    int      `json:"total_fields,omitempty" yaml:"total_fields"`

	// Universal marks a definition discovered by the backend rather than
	// taken from the static catalog.
	Universal bool `json:"universal" yaml:"-"`
	Verified  bool `json:"verified" yaml:"verified"`
}

// Clone returns a deep copy of the definition.
func (f FormDefinition) Clone() FormDefinition {
	f.Fields = slices.Clone(f.Fields)
	f.Documents = slices.Clone(f.Documents)
	return f
}

// FieldCount returns TotalFields, falling back to the number of listed fields.
func (f FormDefinition) FieldCount() int {
	if f.TotalFields > 0 {
		return f.TotalFields
	}
	return len(f.Fields)
}

// DisplayName returns the form name or its type when unnamed.
func (f FormDefinition) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Type
}

// CollectedData maps field names to the values the user supplied.
type CollectedData map[string]string

// Clone returns a copy; a nil map clones to nil.
func (d CollectedData) Clone() CollectedData {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// Keys returns the field names in sorted order.
func (d CollectedData) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}
