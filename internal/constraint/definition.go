package constraint

import "strings"

// Parameters is the raw parameter bag of a constraint as seen by callers.
type Parameters map[string]any

// Clone returns a shallow copy.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with the keys of patch overlaid.
func (p Parameters) Merge(patch Parameters) Parameters {
	out := p.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Definition is the metadata describing one rule.
type Definition struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Description           string     `json:"description"`
	Category              Category   `json:"category"`
	Enabled               bool       `json:"enabled"`
	Priority              int        `json:"priority"`
	Parameters            Parameters `json:"parameters"`
	ApplicableSchoolTypes []string   `json:"applicableSchoolTypes,omitempty"`
	Version               string     `json:"version"`
}

// AppliesToSchoolType reports whether the definition allows the school type.
// An empty type set allows every school.
func (d Definition) AppliesToSchoolType(schoolType string) bool {
	if len(d.ApplicableSchoolTypes) == 0 {
		return true
	}
	for _, t := range d.ApplicableSchoolTypes {
		if strings.EqualFold(t, schoolType) {
			return true
		}
	}
	return false
}

// withSettings composes the static definition with the current settings.
func (d Definition) withSettings(s Settings) Definition {
	d.Enabled = s.Enabled
	d.Parameters = s.Parameters.Clone()
	if len(d.ApplicableSchoolTypes) > 0 {
		types := make([]string, len(d.ApplicableSchoolTypes))
		copy(types, d.ApplicableSchoolTypes)
		d.ApplicableSchoolTypes = types
	}
	return d
}

// clampPriority keeps priorities inside the 1..10 range.
func clampPriority(p int) int {
	switch {
	case p < 1:
		return 1
	case p > 10:
		return 10
	default:
		return p
	}
}
