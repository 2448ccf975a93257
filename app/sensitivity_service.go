package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atomsense/domain/core"
	"atomsense/domain/molecule"
	domain "atomsense/domain/sensitivity"
	"atomsense/internal"
	apperrors "atomsense/internal/errors"
	"atomsense/internal/sensitivity"
	"atomsense/ports"
)

// SensitivityService runs the sample → bin → assemble pipeline and keeps the
// resulting runs.
type SensitivityService struct {
	codec     ports.MoleculeCodecPort
	sampler   *sensitivity.Sampler
	binner    *sensitivity.Binner
	assembler *sensitivity.Assembler
	runs      ports.RunRepository
	logger    *internal.Logger
}

// NewSensitivityService wires the pipeline over its ports. runs may be nil,
// in which case results are returned but not stored.
func NewSensitivityService(
	codec ports.MoleculeCodecPort,
	mutator ports.MutationGeneratorPort,
	predictor ports.PredictorPort,
	colors ports.ColorScalePort,
	runs ports.RunRepository,
	logger *internal.Logger,
) *SensitivityService {
	logger = logger.OrDefault()
	return &SensitivityService{
		codec:     codec,
		sampler:   sensitivity.NewSampler(codec, mutator, predictor, logger),
		binner:    sensitivity.NewBinner(logger),
		assembler: sensitivity.NewAssembler(codec, colors),
		runs:      runs,
		logger:    logger,
	}
}

// Analyze parses an encoding and runs the full pipeline on it.
func (s *SensitivityService) Analyze(ctx context.Context, encoding string, cfg domain.Config) (*ports.RunRecord, error) {
	if encoding == "" {
		return nil, apperrors.Wrap(core.NewInvalidMoleculeError("empty encoding"), "parse molecule")
	}
	mol, err := s.codec.Parse(ctx, encoding)
	if err != nil {
		if apperrors.IsAppError(err) || errors.Is(err, core.ErrInvalidMolecule) {
			return nil, apperrors.Wrap(err, "parse molecule")
		}
		return nil, apperrors.Wrap(core.NewInvalidMoleculeError(err.Error()), "parse molecule")
	}
	return s.AnalyzeMolecule(ctx, mol, cfg)
}

// AnalyzeMolecule runs sampling, binning and assembly for an already parsed
// molecule. Levels are written into the annotation table once thresholds
// are known.
func (s *SensitivityService) AnalyzeMolecule(ctx context.Context, mol *molecule.Molecule, cfg domain.Config) (*ports.RunRecord, error) {
	startTime := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "invalid analysis config")
	}
	// an unknown colour scale fails before any sampling is spent
	if _, err := s.assembler.Legend(cfg); err != nil {
		return nil, apperrors.Wrap(err, "invalid analysis config")
	}

	s.logger.Info("analyzing %s: %d atoms, n=%d, radius=%d", mol.Encoding(), mol.AtomCount(), cfg.N, cfg.Radius)

	sampling, err := s.sampler.Sample(ctx, mol, cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "sampling failed")
	}

	levels, thresholds := s.binner.Bin(sampling.Dispersions(), cfg)
	for idx, level := range levels {
		if err := sampling.Table.SetLevel(idx, level); err != nil {
			return nil, apperrors.Wrap(err, "record level")
		}
	}

	payload, err := s.assembler.Assemble(ctx, mol, levels, cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "assemble render payload")
	}

	elements := make([]string, 0, mol.AtomCount())
	for _, a := range mol.Atoms() {
		elements = append(elements, a.Element)
	}

	run := &ports.RunRecord{
		ID:          core.NewRunID(),
		Encoding:    mol.Encoding(),
		Fingerprint: core.ComputeFingerprint(mol.Encoding(), cfg.Params()),
		Config:      cfg,
		Thresholds:  thresholds,
		Annotations: sampling.Table.List(),
		Elements:    elements,
		Payload:     *payload,
		Unscored:    sampling.Unscored,
		RuntimeMs:   time.Since(startTime).Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.save(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("run %s: %d atoms levelled, thresholds=[%.4g, %.4g], %dms",
		run.ID, len(levels), thresholds.Bottom, thresholds.Top, run.RuntimeMs)
	return run, nil
}

// Rebin recomputes thresholds and levels of a stored run under new binning
// options, then rebuilds its payload. Sampling is not repeated: the stored
// dispersions are reused and the sampling options of the original run are
// kept.
func (s *SensitivityService) Rebin(ctx context.Context, id core.RunID, binning domain.Config) (*ports.RunRecord, error) {
	prev, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Reassemble(ctx, prev, binning)
}

// Reassemble derives a new run from prev with the binning options of cfg.
func (s *SensitivityService) Reassemble(ctx context.Context, prev *ports.RunRecord, binning domain.Config) (*ports.RunRecord, error) {
	startTime := time.Now()

	cfg := prev.Config
	cfg.BottomQuantile = binning.BottomQuantile
	cfg.TopQuantile = binning.TopQuantile
	cfg.NBins = binning.NBins
	cfg.ColorScale = binning.ColorScale
	cfg.QuantileMethod = binning.QuantileMethod
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "invalid binning config")
	}

	// copy with levels cleared; dispersions and counts carry over
	list := make([]domain.Annotation, 0, len(prev.Annotations))
	for _, a := range prev.Annotations {
		a.Level = nil
		list = append(list, a)
	}
	table := domain.TableFromList(list)

	levels, thresholds := s.binner.Bin(table.Dispersions(), cfg)
	for idx, level := range levels {
		if err := table.SetLevel(idx, level); err != nil {
			return nil, apperrors.Wrap(err, "record level")
		}
	}

	mol, err := s.codec.Parse(ctx, prev.Encoding)
	if err != nil {
		return nil, apperrors.Wrapf(err, "parse stored encoding of run %s", prev.ID)
	}
	payload, err := s.assembler.Assemble(ctx, mol, levels, cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "assemble render payload")
	}

	run := &ports.RunRecord{
		ID:          core.NewRunID(),
		Encoding:    prev.Encoding,
		Fingerprint: core.ComputeFingerprint(prev.Encoding, cfg.Params()),
		Config:      cfg,
		Thresholds:  thresholds,
		Annotations: table.List(),
		Elements:    append([]string(nil), prev.Elements...),
		Payload:     *payload,
		Unscored:    append([]int(nil), prev.Unscored...),
		RuntimeMs:   time.Since(startTime).Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.save(ctx, run); err != nil {
		return nil, err
	}
	s.logger.Info("rebinned run %s as %s with nbins=%d, quantiles=[%v, %v]",
		prev.ID, run.ID, cfg.NBins, cfg.BottomQuantile, cfg.TopQuantile)
	return run, nil
}

// GetRun loads a stored run.
func (s *SensitivityService) GetRun(ctx context.Context, id core.RunID) (*ports.RunRecord, error) {
	if s.runs == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("run %s", id))
	}
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Wrapf(err, "load run %s", id)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SensitivityService) ListRuns(ctx context.Context, limit int) ([]*ports.RunRecord, error) {
	if s.runs == nil {
		return []*ports.RunRecord{}, nil
	}
	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "list runs")
	}
	return runs, nil
}

func (s *SensitivityService) save(ctx context.Context, run *ports.RunRecord) error {
	if s.runs == nil {
		return nil
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return apperrors.Wrap(err, "store run")
	}
	return nil
}
