package sensitivity

import (
	"context"
	"errors"
	"fmt"

	"atomsense/domain/core"
	"atomsense/domain/molecule"
	domain "atomsense/domain/sensitivity"
	"atomsense/internal"
	"atomsense/ports"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

// Sampler estimates per-atom dispersion scores by perturbing the molecule
// around each atom and scoring the perturbed batch with the predictor.
type Sampler struct {
	codec     ports.MoleculeCodecPort
	mutator   ports.MutationGeneratorPort
	predictor ports.PredictorPort
	logger    *internal.Logger
}

// NewSampler creates a sampler. A nil logger uses internal.DefaultLogger.
func NewSampler(codec ports.MoleculeCodecPort, mutator ports.MutationGeneratorPort, predictor ports.PredictorPort, logger *internal.Logger) *Sampler {
	return &Sampler{
		codec:     codec,
		mutator:   mutator,
		predictor: predictor,
		logger:    logger.OrDefault(),
	}
}

// Sampling is the outcome of one sampling pass.
type Sampling struct {
	Table    *domain.AnnotationTable
	Unscored []int
}

// Dispersions returns the recorded dispersion per scored atom.
func (s *Sampling) Dispersions() map[int]float64 {
	return s.Table.Dispersions()
}

type atomSample struct {
	index      int
	attempts   int
	accepted   int
	dispersion float64
	scored     bool
}

// Sample runs the perturbation loop for every atom. Variants that are null or
// not a valid molecule are discarded. Any other failure aborts the whole
// pass and no partial result is returned.
func (s *Sampler) Sample(ctx context.Context, mol *molecule.Molecule, cfg domain.Config) (*Sampling, error) {
	atoms := mol.Atoms()
	results := make([]atomSample, len(atoms))

	if cfg.Workers <= 1 {
		for i, a := range atoms {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := s.sampleAtom(ctx, mol, a.Index, cfg)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Workers)
		for i, a := range atoms {
			i, idx := i, a.Index
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := s.sampleAtom(gctx, mol, idx, cfg)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := &Sampling{Table: domain.NewAnnotationTable()}
	for _, res := range results {
		out.Table.RecordSampling(res.index, res.attempts, res.accepted)
		if !res.scored {
			out.Unscored = append(out.Unscored, res.index)
			continue
		}
		if err := out.Table.SetDispersion(res.index, res.dispersion); err != nil {
			return nil, err
		}
	}

	s.logger.Info("sampled %d atoms: %d scored, %d unscored", len(atoms), len(atoms)-len(out.Unscored), len(out.Unscored))
	return out, nil
}

func (s *Sampler) sampleAtom(ctx context.Context, mol *molecule.Molecule, atomIndex int, cfg domain.Config) (atomSample, error) {
	res := atomSample{index: atomIndex}
	batch := make([]string, 0, cfg.N)

	for attempt := 0; attempt < cfg.N; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.attempts++

		encoding, ok, err := s.mutator.Perturb(ctx, mol.Clone(), atomIndex, cfg.Radius)
		if err != nil {
			if !errors.Is(err, core.ErrInvalidMolecule) {
				return res, core.NewPerturbationError(atomIndex, err)
			}
			s.logger.Trace("atom %d attempt %d: discarding invalid variant: %v", atomIndex, attempt, err)
			continue
		}
		if !ok || encoding == "" {
			continue
		}
		if _, err := s.codec.Parse(ctx, encoding); err != nil {
			if !errors.Is(err, core.ErrInvalidMolecule) {
				return res, core.NewPerturbationError(atomIndex, fmt.Errorf("parse %q: %w", encoding, err))
			}
			s.logger.Trace("atom %d attempt %d: discarding unparseable %q", atomIndex, attempt, encoding)
			continue
		}
		batch = append(batch, encoding)
	}
	res.accepted = len(batch)

	if res.accepted <= cfg.MinValidSamples {
		s.logger.Warn("not enough perturbations for atom %d: %v",
			atomIndex, core.NewInsufficientSamplesError(atomIndex, res.accepted, res.attempts))
		return res, nil
	}

	preds, err := s.predictor.Predict(ctx, batch)
	if err != nil {
		return res, core.NewPredictorError(atomIndex, err)
	}
	if len(preds) != len(batch) {
		return res, core.NewPredictorError(atomIndex,
			fmt.Errorf("got %d predictions for %d inputs", len(preds), len(batch)))
	}

	sd, err := stats.StandardDeviationPopulation(preds)
	if err != nil {
		return res, fmt.Errorf("dispersion for atom %d: %w", atomIndex, err)
	}

	res.dispersion = sd
	res.scored = true
	s.logger.Debug("atom %d: %d/%d perturbations, dispersion=%.6g", atomIndex, res.accepted, res.attempts, sd)
	return res, nil
}
