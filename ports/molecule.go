package ports

import (
	"context"

	"atomsense/domain/molecule"
)

// MoleculeCodecPort parses and canonicalizes structural encodings (SMILES).
type MoleculeCodecPort interface {
	// Parse returns an error when the encoding is not a valid molecule.
	Parse(ctx context.Context, encoding string) (*molecule.Molecule, error)

	// Canonicalize returns the canonical encoding of a molecule. Each atom
	// index in atomMap is written with its value as the atom map number, so
	// the encoding carries per-atom labels through canonical reordering.
	// Atoms not in atomMap carry no map number.
	Canonicalize(ctx context.Context, mol *molecule.Molecule, atomMap map[int]int) (string, error)
}
