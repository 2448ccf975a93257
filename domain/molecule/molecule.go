package molecule

import (
	"fmt"

	"atomsense/domain/core"
)

// Atom is a single node of the structural graph. Index is 0-based and stable
// for the lifetime of the Molecule it belongs to.
type Atom struct {
	Index   int    `json:"index"`
	Element string `json:"element"`
}

// Bond connects two atoms by index.
type Bond struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Order int `json:"order"`
}

// Molecule is an immutable structural graph. Callers must not mutate the
// slices returned by Atoms and Bonds; use Clone to obtain a private copy.
type Molecule struct {
	encoding string
	atoms    []Atom
	bonds    []Bond
}

// New validates the graph and builds a Molecule.
// Atom indices must be exactly 0..n-1 in order and bond endpoints must exist.
func New(encoding string, atoms []Atom, bonds []Bond) (*Molecule, error) {
	if len(atoms) == 0 {
		return nil, core.NewInvalidMoleculeError("molecule has no atoms")
	}
	for i, a := range atoms {
		if a.Index != i {
			return nil, core.NewInvalidMoleculeError(fmt.Sprintf("atom at position %d has index %d", i, a.Index))
		}
	}
	for _, b := range bonds {
		if b.From < 0 || b.From >= len(atoms) || b.To < 0 || b.To >= len(atoms) {
			return nil, core.NewInvalidMoleculeError(fmt.Sprintf("bond %d-%d references a missing atom", b.From, b.To))
		}
		if b.From == b.To {
			return nil, core.NewInvalidMoleculeError(fmt.Sprintf("bond %d-%d is a self loop", b.From, b.To))
		}
	}

	m := &Molecule{
		encoding: encoding,
		atoms:    make([]Atom, len(atoms)),
		bonds:    make([]Bond, len(bonds)),
	}
	copy(m.atoms, atoms)
	copy(m.bonds, bonds)
	return m, nil
}

// Encoding returns the structural encoding the molecule was parsed from.
func (m *Molecule) Encoding() string { return m.encoding }

// Atoms returns the ordered atoms.
func (m *Molecule) Atoms() []Atom { return m.atoms }

// Bonds returns the bond list.
func (m *Molecule) Bonds() []Bond { return m.bonds }

// AtomCount returns the number of atoms.
func (m *Molecule) AtomCount() int { return len(m.atoms) }

// Atom returns the atom with the given index.
func (m *Molecule) Atom(index int) (Atom, bool) {
	if index < 0 || index >= len(m.atoms) {
		return Atom{}, false
	}
	return m.atoms[index], true
}

// Clone returns a deep copy. Perturbation always starts from a clone of the
// pristine molecule so edits never accumulate.
func (m *Molecule) Clone() *Molecule {
	c := &Molecule{
		encoding: m.encoding,
		atoms:    make([]Atom, len(m.atoms)),
		bonds:    make([]Bond, len(m.bonds)),
	}
	copy(c.atoms, m.atoms)
	copy(c.bonds, m.bonds)
	return c
}

// Neighbors returns the indices bonded to the given atom, in bond order.
func (m *Molecule) Neighbors(index int) []int {
	var out []int
	for _, b := range m.bonds {
		switch index {
		case b.From:
			out = append(out, b.To)
		case b.To:
			out = append(out, b.From)
		}
	}
	return out
}

// Neighborhood returns every atom within radius bonds of center (center
// included), in breadth-first order.
func (m *Molecule) Neighborhood(center, radius int) []int {
	if center < 0 || center >= len(m.atoms) {
		return nil
	}
	dist := map[int]int{center: 0}
	queue := []int{center}
	order := []int{center}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if dist[cur] == radius {
			continue
		}
		for _, nb := range m.Neighbors(cur) {
			if _, seen := dist[nb]; seen {
				continue
			}
			dist[nb] = dist[cur] + 1
			queue = append(queue, nb)
			order = append(order, nb)
		}
	}
	return order
}
