package sensitivity

import (
	"encoding/json"
	"fmt"
	"sort"

	"atomsense/domain/core"
)

// Annotation is the per-atom side record produced by sampling and binning.
// A nil Dispersion means the atom was not sufficiently sampled; a nil Level
// means no level was assigned.
type Annotation struct {
	AtomIndex  int      `json:"atom_index"`
	Dispersion *float64 `json:"dispersion,omitempty"`
	Level      *int     `json:"level,omitempty"`
	Samples    int      `json:"samples"`
	Attempts   int      `json:"attempts"`
}

// Scored reports whether a dispersion was recorded.
func (a Annotation) Scored() bool { return a.Dispersion != nil }

// AnnotationTable maps atom index to annotation. It is kept apart from the
// molecule; each field is written at most once per atom.
type AnnotationTable struct {
	byAtom map[int]*Annotation
}

// NewAnnotationTable returns an empty table.
func NewAnnotationTable() *AnnotationTable {
	return &AnnotationTable{byAtom: make(map[int]*Annotation)}
}

func (t *AnnotationTable) entry(atomIndex int) *Annotation {
	a, ok := t.byAtom[atomIndex]
	if !ok {
		a = &Annotation{AtomIndex: atomIndex}
		t.byAtom[atomIndex] = a
	}
	return a
}

// RecordSampling stores the attempt/accept counts for an atom.
func (t *AnnotationTable) RecordSampling(atomIndex, attempts, samples int) {
	a := t.entry(atomIndex)
	a.Attempts = attempts
	a.Samples = samples
}

// SetDispersion records the dispersion score of an atom.
func (t *AnnotationTable) SetDispersion(atomIndex int, d float64) error {
	a := t.entry(atomIndex)
	if a.Dispersion != nil {
		return fmt.Errorf("%w: dispersion of atom %d", core.ErrAnnotationOverwrite, atomIndex)
	}
	a.Dispersion = &d
	return nil
}

// SetLevel records the level of an atom. Only scored atoms can carry a level.
func (t *AnnotationTable) SetLevel(atomIndex int, level int) error {
	a, ok := t.byAtom[atomIndex]
	if !ok || a.Dispersion == nil {
		return fmt.Errorf("atom %d has no dispersion", atomIndex)
	}
	if a.Level != nil {
		return fmt.Errorf("%w: level of atom %d", core.ErrAnnotationOverwrite, atomIndex)
	}
	a.Level = &level
	return nil
}

// Get returns a copy of an atom's annotation.
func (t *AnnotationTable) Get(atomIndex int) (Annotation, bool) {
	a, ok := t.byAtom[atomIndex]
	if !ok {
		return Annotation{}, false
	}
	return *a, true
}

// Dispersion returns the recorded dispersion of an atom.
func (t *AnnotationTable) Dispersion(atomIndex int) (float64, bool) {
	a, ok := t.byAtom[atomIndex]
	if !ok || a.Dispersion == nil {
		return 0, false
	}
	return *a.Dispersion, true
}

// Level returns the assigned level of an atom.
func (t *AnnotationTable) Level(atomIndex int) (int, bool) {
	a, ok := t.byAtom[atomIndex]
	if !ok || a.Level == nil {
		return 0, false
	}
	return *a.Level, true
}

// Dispersions returns every recorded dispersion keyed by atom index.
func (t *AnnotationTable) Dispersions() map[int]float64 {
	out := make(map[int]float64, len(t.byAtom))
	for idx, a := range t.byAtom {
		if a.Dispersion != nil {
			out[idx] = *a.Dispersion
		}
	}
	return out
}

// Levels returns every assigned level keyed by atom index.
func (t *AnnotationTable) Levels() map[int]int {
	out := make(map[int]int)
	for idx, a := range t.byAtom {
		if a.Level != nil {
			out[idx] = *a.Level
		}
	}
	return out
}

// List returns copies of all annotations ordered by atom index.
func (t *AnnotationTable) List() []Annotation {
	out := make([]Annotation, 0, len(t.byAtom))
	for _, a := range t.byAtom {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AtomIndex < out[j].AtomIndex })
	return out
}

// TableFromList rebuilds a table from stored annotations.
func TableFromList(list []Annotation) *AnnotationTable {
	t := NewAnnotationTable()
	for _, a := range list {
		cp := a
		t.byAtom[a.AtomIndex] = &cp
	}
	return t
}

// Thresholds are the global quantile cut points computed over all scored atoms.
type Thresholds struct {
	Bottom     float64 `json:"bottom"`
	Top        float64 `json:"top"`
	Population int     `json:"population"`
	Defined    bool    `json:"defined"`
	Degenerate bool    `json:"degenerate"`
}

// Highlight is one legend entry: a level and its colour.
type Highlight struct {
	Level int    `json:"level"`
	Color string `json:"color"`
}

// MarshalJSON encodes a highlight as a [level, "#rrggbb"] pair, the shape
// the molecule renderer consumes.
func (h Highlight) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{h.Level, h.Color})
}

// UnmarshalJSON accepts the [level, "#rrggbb"] pair form.
func (h *Highlight) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("highlight must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &h.Level); err != nil {
		return fmt.Errorf("highlight level: %w", err)
	}
	if err := json.Unmarshal(pair[1], &h.Color); err != nil {
		return fmt.Errorf("highlight color: %w", err)
	}
	return nil
}

// RenderPayload is what the visualization front end consumes.
type RenderPayload struct {
	CanonicalEncoding string      `json:"smiles"`
	Highlights        []Highlight `json:"highlights"`
}

// ColorForLevel returns the legend colour of a level.
func (p RenderPayload) ColorForLevel(level int) (string, bool) {
	for _, h := range p.Highlights {
		if h.Level == level {
			return h.Color, true
		}
	}
	return "", false
}
