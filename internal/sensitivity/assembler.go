package sensitivity

import (
	"context"
	"fmt"

	"atomsense/domain/core"
	"atomsense/domain/molecule"
	domain "atomsense/domain/sensitivity"
	"atomsense/ports"
)

// Assembler packages the level-mapped canonical encoding and the level legend.
type Assembler struct {
	codec  ports.MoleculeCodecPort
	colors ports.ColorScalePort
}

// NewAssembler creates an assembler.
func NewAssembler(codec ports.MoleculeCodecPort, colors ports.ColorScalePort) *Assembler {
	return &Assembler{codec: codec, colors: colors}
}

// Assemble builds the render payload. Each levelled atom is written into
// the canonical encoding with its level as atom map number, and the
// highlights are a legend with one entry per level 1..NBins.
func (a *Assembler) Assemble(ctx context.Context, mol *molecule.Molecule, levels map[int]int, cfg domain.Config) (*domain.RenderPayload, error) {
	canonical, err := a.codec.Canonicalize(ctx, mol, levels)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	legend, err := a.Legend(cfg)
	if err != nil {
		return nil, err
	}

	return &domain.RenderPayload{
		CanonicalEncoding: canonical,
		Highlights:        legend,
	}, nil
}

// Legend samples the colour scale at level/NBins for each level.
func (a *Assembler) Legend(cfg domain.Config) ([]domain.Highlight, error) {
	if !a.colors.Has(cfg.ColorScale) {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownColorScale, cfg.ColorScale)
	}

	legend := make([]domain.Highlight, 0, cfg.NBins)
	for level := 1; level <= cfg.NBins; level++ {
		c, err := a.colors.Sample(cfg.ColorScale, float64(level)/float64(cfg.NBins))
		if err != nil {
			return nil, fmt.Errorf("sample %s at level %d: %w", cfg.ColorScale, level, err)
		}
		legend = append(legend, domain.Highlight{Level: level, Color: c.Clamped().Hex()})
	}
	return legend, nil
}
