package ports

import (
	"context"

	"atomsense/domain/molecule"
)

// MutationGeneratorPort produces local structural perturbations.
type MutationGeneratorPort interface {
	// Perturb returns a perturbed encoding centered on atomIndex, limited to
	// radius bonds. ok is false when no variant was produced; an error
	// wrapping core.ErrInvalidMolecule marks a variant that failed
	// sanitization. Both count as discarded attempts, any other error is
	// fatal. Repeated calls may return different variants.
	Perturb(ctx context.Context, mol *molecule.Molecule, atomIndex int, radius int) (encoding string, ok bool, err error)
}
