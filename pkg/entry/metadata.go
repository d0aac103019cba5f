package entry

import (
	"encoding/json"
	"fmt"
)

// Metadata keys with validated semantics. Everything else in the bag passes
// through untouched.
const (
	MetaProgressStatus = "progress_status"
	MetaDomains        = "domains"
	MetaPhase          = "phase"
)

// Progress status values (single-valued).
const (
	StatusDone       = "done"
	StatusInProgress = "in-progress"
	StatusDraft      = "draft"
	StatusDeprecated = "deprecated"
)

// Research phase values (single-valued).
const (
	PhaseResearch   = "research"
	PhasePlanning   = "planning"
	PhaseExecution  = "execution"
	PhaseCheckpoint = "checkpoint"
)

var validStatuses = map[string]bool{
	StatusDone:       true,
	StatusInProgress: true,
	StatusDraft:      true,
	StatusDeprecated: true,
}

var validPhases = map[string]bool{
	PhaseResearch:   true,
	PhasePlanning:   true,
	PhaseExecution:  true,
	PhaseCheckpoint: true,
}

// validDomains is the fixed target-domain vocabulary.
var validDomains = map[string]bool{
	"core":     true,
	"api":      true,
	"storage":  true,
	"search":   true,
	"infra":    true,
	"testing":  true,
	"docs":     true,
	"security": true,
}

// Metadata is an open key/value bag. Three dimensions carry validated
// semantics (progress status, target domains, research phase); arbitrary
// passthrough keys are allowed and preserved verbatim.
type Metadata map[string]any

// Validate checks the recognized dimensions and leaves passthrough keys
// alone. Validation happens at the boundary; stored metadata is trusted.
func (m Metadata) Validate() error {
	if m == nil {
		return nil
	}
	if v, ok := m[MetaProgressStatus]; ok {
		s, ok := v.(string)
		if !ok || !validStatuses[s] {
			return &ValidationError{Field: MetaProgressStatus, Reason: fmt.Sprintf("%v is not a valid progress status", v)}
		}
	}
	if v, ok := m[MetaPhase]; ok {
		s, ok := v.(string)
		if !ok || !validPhases[s] {
			return &ValidationError{Field: MetaPhase, Reason: fmt.Sprintf("%v is not a valid research phase", v)}
		}
	}
	if v, ok := m[MetaDomains]; ok {
		domains, err := toStringSlice(v)
		if err != nil {
			return &ValidationError{Field: MetaDomains, Reason: "domains must be a list of strings"}
		}
		for _, d := range domains {
			if !validDomains[d] {
				return &ValidationError{Field: MetaDomains, Reason: fmt.Sprintf("%q is not in the domain vocabulary", d)}
			}
		}
	}
	return nil
}

// ProgressStatus returns the progress_status dimension, or "" if unset.
func (m Metadata) ProgressStatus() string {
	s, _ := m[MetaProgressStatus].(string)
	return s
}

// Phase returns the research phase dimension, or "" if unset.
func (m Metadata) Phase() string {
	s, _ := m[MetaPhase].(string)
	return s
}

// Domains returns the target-domain set, empty if unset.
func (m Metadata) Domains() []string {
	v, ok := m[MetaDomains]
	if !ok {
		return nil
	}
	domains, err := toStringSlice(v)
	if err != nil {
		return nil
	}
	return domains
}

// Deprecated reports whether the entry has been logically superseded.
func (m Metadata) Deprecated() bool {
	return m.ProgressStatus() == StatusDeprecated
}

// MarshalJSON keeps nil metadata serializing as an empty object so the
// stored column is always valid JSON.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

func toStringSlice(v any) ([]string, error) {
	switch vv := v.(type) {
	case []string:
		return vv, nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("non-string element %v", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
