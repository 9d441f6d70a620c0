// Package registry holds the static catalog of capabilities Aida can invoke.
//
// A capability is a named action (weather lookup, wiki search, ...) with a
// description, example phrases, keywords, and a declared list of parameter
// slots. The catalog is loaded once at startup from a declarative YAML
// document and is read-only afterwards; nothing in the pipeline mutates a
// Descriptor after construction.
package registry

import (
	"fmt"
	"sort"
	"strings"
)

// SlotType is the semantic type of a parameter slot. It tells the extractor
// which heuristics apply when pulling a value for the slot out of an
// utterance.
type SlotType string

const (
	SlotLocation SlotType = "location"
	SlotPerson   SlotType = "person"
	SlotFreetext SlotType = "freetext"
	SlotDatetime SlotType = "datetime"
	SlotNumber   SlotType = "number"
)

// knownSlotTypes is the closed set of slot types the extractor understands.
var knownSlotTypes = map[SlotType]struct{}{
	SlotLocation: {},
	SlotPerson:   {},
	SlotFreetext: {},
	SlotDatetime: {},
	SlotNumber:   {},
}

// Slot is one named parameter of a capability.
type Slot struct {
	Name     string   `yaml:"name"`
	Type     SlotType `yaml:"type"`
	Required bool     `yaml:"required"`
}

// Descriptor describes a single capability. Instances are owned by the
// Registry and must be treated as immutable by callers.
type Descriptor struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Examples    []string `yaml:"examples"`
	Keywords    []string `yaml:"keywords"`
	Slots       []Slot   `yaml:"parameters"`
}

// RequiredSlots returns the descriptor's required slots in declaration order.
func (d *Descriptor) RequiredSlots() []Slot {
	var req []Slot
	for _, s := range d.Slots {
		if s.Required {
			req = append(req, s)
		}
	}
	return req
}

// MissingSlots returns the names of required slots that have no value in
// entities, in declaration order.
func (d *Descriptor) MissingSlots(entities map[string]string) []string {
	var missing []string
	for _, s := range d.Slots {
		if !s.Required {
			continue
		}
		if v, ok := entities[s.Name]; !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

// Registry is the read-only catalog of capabilities, keyed by name.
type Registry struct {
	byName  map[string]*Descriptor
	ordered []*Descriptor
}

// New builds a Registry from a list of descriptors. Descriptor names must be
// unique; slot types must be known; every descriptor needs at least one
// example or keyword so the classifier has a signal to score against.
func New(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Descriptor, len(descriptors))}
	for i := range descriptors {
		d := &descriptors[i]
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("registry: descriptor[%d]: name must not be empty", i)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate capability name %q", d.Name)
		}
		if len(d.Examples) == 0 && len(d.Keywords) == 0 {
			return nil, fmt.Errorf("registry: capability %q has neither examples nor keywords", d.Name)
		}
		seenSlots := make(map[string]struct{}, len(d.Slots))
		for j, s := range d.Slots {
			if strings.TrimSpace(s.Name) == "" {
				return nil, fmt.Errorf("registry: capability %q: parameters[%d]: name must not be empty", d.Name, j)
			}
			if _, ok := knownSlotTypes[s.Type]; !ok {
				return nil, fmt.Errorf("registry: capability %q: parameter %q has unknown type %q", d.Name, s.Name, s.Type)
			}
			if _, dup := seenSlots[s.Name]; dup {
				return nil, fmt.Errorf("registry: capability %q: duplicate parameter name %q", d.Name, s.Name)
			}
			seenSlots[s.Name] = struct{}{}
		}
		r.byName[d.Name] = d
		r.ordered = append(r.ordered, d)
	}
	if len(r.ordered) == 0 {
		return nil, fmt.Errorf("registry: catalog is empty")
	}
	return r, nil
}

// Get returns the descriptor for name, or false when the capability is not
// registered.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns the descriptors in catalog order. The returned slice is shared;
// callers must not modify it.
func (r *Registry) All() []*Descriptor {
	return r.ordered
}

// Names returns the sorted list of capability names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	return len(r.ordered)
}
