package molecule

import (
	"testing"

	"atomsense/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ethanol-like chain C0-C1-O2 plus a branch C1-N3
func chain(t *testing.T) *Molecule {
	t.Helper()
	m, err := New("CC(N)O", []Atom{
		{Index: 0, Element: "C"},
		{Index: 1, Element: "C"},
		{Index: 2, Element: "O"},
		{Index: 3, Element: "N"},
	}, []Bond{
		{From: 0, To: 1, Order: 1},
		{From: 1, To: 2, Order: 1},
		{From: 1, To: 3, Order: 1},
	})
	require.NoError(t, err)
	return m
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		atoms []Atom
		bonds []Bond
	}{
		{"no atoms", nil, nil},
		{"gap in indices", []Atom{{Index: 0}, {Index: 2}}, nil},
		{"dangling bond", []Atom{{Index: 0}, {Index: 1}}, []Bond{{From: 0, To: 5}}},
		{"self loop", []Atom{{Index: 0}}, []Bond{{From: 0, To: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("x", tt.atoms, tt.bonds)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidMolecule)
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := chain(t)
	c := m.Clone()

	c.atoms[0].Element = "Si"
	c.bonds[0].Order = 2

	assert.Equal(t, "C", m.Atoms()[0].Element)
	assert.Equal(t, 1, m.Bonds()[0].Order)
	assert.Equal(t, m.Encoding(), c.Encoding())
	assert.Equal(t, m.AtomCount(), c.AtomCount())
}

func TestNeighborhood(t *testing.T) {
	m := chain(t)

	assert.Equal(t, []int{0}, m.Neighborhood(0, 0))
	assert.Equal(t, []int{0, 1}, m.Neighborhood(0, 1))
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, m.Neighborhood(0, 2))
	assert.ElementsMatch(t, []int{1, 0, 2, 3}, m.Neighborhood(1, 1))
	assert.Nil(t, m.Neighborhood(9, 2))
}

func TestAtomLookup(t *testing.T) {
	m := chain(t)

	a, ok := m.Atom(2)
	require.True(t, ok)
	assert.Equal(t, "O", a.Element)

	_, ok = m.Atom(-1)
	assert.False(t, ok)
	_, ok = m.Atom(4)
	assert.False(t, ok)
}
