package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultModelID is the model selected when none is requested.
const DefaultModelID = "merlin"

// Fallback bounds used for unknown model ids.
const (
	FallbackRowsMin = 1
	FallbackRowsMax = 100
)

// Registry maps model ids to their profiles. It is immutable once built.
type Registry struct {
	profiles  map[string]ModelProfile
	order     []string
	defaultID string
}

// NewRegistry builds a registry from profiles. The default id must be one of
// the profiles. Profiles are kept in the order given.
func NewRegistry(defaultID string, profiles ...ModelProfile) (*Registry, error) {
	r := &Registry{
		profiles:  make(map[string]ModelProfile, len(profiles)),
		defaultID: defaultID,
	}

	for _, p := range profiles {
		if err := validateProfile(p); err != nil {
			return nil, err
		}
		if _, exists := r.profiles[p.ID]; exists {
			return nil, fmt.Errorf("model already registered: %s", p.ID)
		}
		if p.Label == "" {
			p.Label = p.ID
		}
		r.profiles[p.ID] = p
		r.order = append(r.order, p.ID)
	}

	if _, ok := r.profiles[defaultID]; !ok {
		return nil, fmt.Errorf("default model %q is not registered", defaultID)
	}

	return r, nil
}

// DefaultRegistry returns the built-in roster.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultModelID,
		ModelProfile{ID: "merlin", Label: "Merlin Generator", Modality: ModalityText, RowsMin: 1, RowsMax: 100000},
		ModelProfile{ID: "gold", Label: "Gold Generator", Modality: ModalityText, RowsMin: 1, RowsMax: 200},
		ModelProfile{ID: "premium", Label: "Premium Generator", Modality: ModalityText, RowsMin: 1, RowsMax: 200},
		ModelProfile{ID: "oracle", Label: "Oracle Generator", Modality: ModalityText, RowsMin: 1, RowsMax: 200},
		ModelProfile{ID: "ydata", Label: "Ydata Generator", Modality: ModalityFile, RowsMin: 1, RowsMax: 50},
	)
	if err != nil {
		panic(fmt.Sprintf("built-in model roster: %v", err))
	}
	return r
}

// FallbackProfile is the profile returned for an unknown model id.
func FallbackProfile(id string) ModelProfile {
	return ModelProfile{
		ID:       id,
		Label:    id,
		Modality: ModalityText,
		RowsMin:  FallbackRowsMin,
		RowsMax:  FallbackRowsMax,
	}
}

// Lookup returns the profile for id. Unknown ids (stale or malformed query
// parameters) get FallbackProfile so callers always have usable bounds.
func (r *Registry) Lookup(id string) ModelProfile {
	if p, ok := r.profiles[id]; ok {
		return p
	}
	return FallbackProfile(id)
}

// Get returns the profile for id and whether it is registered.
func (r *Registry) Get(id string) (ModelProfile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

// All returns every registered profile in roster order.
func (r *Registry) All() []ModelProfile {
	result := make([]ModelProfile, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.profiles[id])
	}
	return result
}

// DefaultModel returns the id selected when no model is requested.
func (r *Registry) DefaultModel() string {
	return r.defaultID
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	return len(r.order)
}

func validateProfile(p ModelProfile) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("model id is required")
	}
	if !p.Modality.Valid() {
		return fmt.Errorf("model %s: unknown modality %q", p.ID, p.Modality)
	}
	if p.RowsMin < 1 {
		return fmt.Errorf("model %s: rows_min (%d) must be >= 1", p.ID, p.RowsMin)
	}
	if p.RowsMax < p.RowsMin {
		return fmt.Errorf("model %s: rows_max (%d) must be >= rows_min (%d)", p.ID, p.RowsMax, p.RowsMin)
	}
	return nil
}

// rosterFile is the YAML layout accepted by LoadRegistryFile.
type rosterFile struct {
	Default string `yaml:"default"`
	Models  []struct {
		ID       string `yaml:"id"`
		Label    string `yaml:"label"`
		Modality string `yaml:"modality"`
		RowsMin  int    `yaml:"rows_min"`
		RowsMax  int    `yaml:"rows_max"`
	} `yaml:"models"`
}

// ParseRegistry builds a registry from a YAML roster document:
//
//	default: merlin
//	models:
//	  - id: merlin
//	    label: Merlin Generator
//	    modality: text
//	    rows_min: 1
//	    rows_max: 100000
func ParseRegistry(data []byte) (*Registry, error) {
	var doc rosterFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model roster: %w", err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("model roster has no models")
	}

	profiles := make([]ModelProfile, 0, len(doc.Models))
	for _, m := range doc.Models {
		profiles = append(profiles, ModelProfile{
			ID:       strings.TrimSpace(m.ID),
			Label:    m.Label,
			Modality: Modality(strings.ToLower(strings.TrimSpace(m.Modality))),
			RowsMin:  m.RowsMin,
			RowsMax:  m.RowsMax,
		})
	}

	defaultID := doc.Default
	if defaultID == "" {
		defaultID = profiles[0].ID
	}

	return NewRegistry(defaultID, profiles...)
}

// LoadRegistryFile reads a YAML roster from path.
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model roster: %w", err)
	}
	return ParseRegistry(data)
}
